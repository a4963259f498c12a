package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileFor(t *testing.T) {
	assert.Equal(t, ProfileVariant, ProfileFor(GroupVariant))
	assert.Equal(t, ProfileStandard, ProfileFor(GroupStandard))
	assert.Equal(t, ProfileStandard, ProfileFor(GroupTag("anything-else")))
}
