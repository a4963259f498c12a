package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["enhance"])
	assert.True(t, names["variants"])
}

func TestInputFlagsDeclared(t *testing.T) {
	for _, name := range []string{"enhance", "variants"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, c.Flags().Lookup("input"), name)
		assert.NotNil(t, c.Flags().Lookup("output"), name)
	}
}
