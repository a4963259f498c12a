package enhance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gastroline/catalog-cli/internal/model"
	"github.com/gastroline/catalog-cli/internal/resilience"
	"github.com/gastroline/catalog-cli/pkg/anthropic"
)

// mockClient implements anthropic.Client for service tests.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func testServiceConfig() ServiceConfig {
	return ServiceConfig{
		Model:         "claude-haiku-4-5-20251001",
		MaxTokens:     4096,
		Temperature:   0.3,
		IdentifierKey: "catalog_number",
		NameKey:       "name",
	}
}

func testProfiles() PromptProfiles {
	return PromptProfiles{
		Standard: "Enhance the product descriptions.",
		Variant:  "Enhance the product descriptions without dimensions.",
	}
}

func TestEnhance_ParsesResults(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{
			Type: "text",
			Text: `[{"catalog_number":"A1","name":"Fritéza","short_description":"nový popis"}]`,
		}},
		Usage: anthropic.TokenUsage{InputTokens: 100, OutputTokens: 40},
	}, nil)

	svc := NewService(mc, testServiceConfig(), testProfiles())
	enh, err := svc.Enhance(context.Background(), []model.Item{
		{Identifier: "A1", Name: "Fritéza", Content: map[string]string{"short_description": ""}},
	}, model.ProfileStandard)

	require.NoError(t, err)
	require.Len(t, enh.Results, 1)
	assert.Equal(t, "A1", enh.Results[0].Identifier)
	assert.Equal(t, "nový popis", enh.Results[0].Content["short_description"])
	assert.Equal(t, 140, enh.TokensUsed)
	mc.AssertExpectations(t)
}

func TestEnhance_ExtractsArrayFromProse(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{
			Type: "text",
			Text: "Here are the enhanced products:\n```json\n[{\"catalog_number\":\"A1\",\"name\":\"Fritéza\"}]\n```",
		}},
	}, nil)

	svc := NewService(mc, testServiceConfig(), testProfiles())
	enh, err := svc.Enhance(context.Background(), []model.Item{{Identifier: "A1"}}, model.ProfileStandard)

	require.NoError(t, err)
	require.Len(t, enh.Results, 1)
	assert.Equal(t, "A1", enh.Results[0].Identifier)
}

func TestEnhance_MalformedResponseIsTransient(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "no json here"}},
	}, nil)

	svc := NewService(mc, testServiceConfig(), testProfiles())
	_, err := svc.Enhance(context.Background(), []model.Item{{Identifier: "A1"}}, model.ProfileStandard)

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestEnhance_UsesVariantPrompt(t *testing.T) {
	profiles := testProfiles()
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.System) == 1 && req.System[0].Text == profiles.Variant
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "[]"}},
	}, nil)

	svc := NewService(mc, testServiceConfig(), profiles)
	_, err := svc.Enhance(context.Background(), []model.Item{{Identifier: "A1"}}, model.ProfileVariant)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestClassifyCallError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		rateLimit bool
		transient bool
		fatal     bool
	}{
		{"quota phrasing", errors.New("monthly quota exceeded"), true, false, false},
		{"rate limit phrasing", errors.New("rate limit exceeded, slow down"), true, false, false},
		{"overloaded phrasing", errors.New("overloaded_error: try later"), true, false, false},
		{"network timeout", errors.New("dial tcp: i/o timeout"), false, true, false},
		{"auth failure", errors.New("invalid x-api-key"), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyCallError(tt.err)
			assert.Equal(t, tt.rateLimit, resilience.IsRateLimited(got))
			if !tt.rateLimit {
				assert.Equal(t, tt.transient, resilience.IsTransient(got))
			}
			assert.Equal(t, tt.fatal, IsFatal(got))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	svc := NewService(new(mockClient), testServiceConfig(), testProfiles())

	items := []model.Item{{
		Identifier: "A1",
		Name:       "Fritéza elektrická",
		Content:    map[string]string{"short_description": "starý popis"},
	}}

	est := svc.EstimateTokens(items, model.ProfileStandard)
	// The estimate always covers at least the response budget.
	assert.GreaterOrEqual(t, est, 4096)
}

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[1,2]`, extractJSONArray("noise [1,2] noise"))
	assert.Equal(t, `[]`, extractJSONArray("[]"))
	assert.Equal(t, "", extractJSONArray("no array"))
	assert.Equal(t, "", extractJSONArray("] backwards ["))
}

func TestLoadPromptProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"standard: Enhance descriptions.\nvariant: Enhance without dimensions.\n",
	), 0o644))

	p, err := LoadPromptProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, "Enhance descriptions.", p.Standard)
	assert.Equal(t, "Enhance without dimensions.", p.Variant)
}

func TestLoadPromptProfiles_MissingProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("standard: only one\n"), 0o644))

	_, err := LoadPromptProfiles(path)
	assert.Error(t, err)
}
