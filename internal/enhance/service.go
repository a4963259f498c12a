package enhance

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gastroline/catalog-cli/internal/model"
	"github.com/gastroline/catalog-cli/internal/resilience"
	"github.com/gastroline/catalog-cli/pkg/anthropic"
)

// Service produces enhanced content for a batch of catalog items.
type Service interface {
	// Enhance sends the items to the model under the given prompt profile.
	// Returned results are untrusted: identifiers may be reworded or missing
	// and the result count may differ from the item count.
	Enhance(ctx context.Context, items []model.Item, profile model.PromptProfile) (*Enhancement, error)

	// EstimateTokens predicts the token charge of an Enhance call before it
	// is made, for quota reservation.
	EstimateTokens(items []model.Item, profile model.PromptProfile) int
}

// Enhancement is the outcome of one service call.
type Enhancement struct {
	Results    []model.EnhancementResult
	TokensUsed int
}

// PromptProfiles holds the system prompts per policy group. The variant
// profile instructs the model to omit dimensions and size designations so
// that variants of one product share identical descriptions.
type PromptProfiles struct {
	Standard string `yaml:"standard"`
	Variant  string `yaml:"variant"`
}

// LoadPromptProfiles reads prompt profiles from a YAML file.
func LoadPromptProfiles(path string) (PromptProfiles, error) {
	var p PromptProfiles
	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrap(err, "enhance: read prompt profiles")
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, eris.Wrap(err, "enhance: parse prompt profiles")
	}
	if p.Standard == "" || p.Variant == "" {
		return p, eris.New("enhance: prompt profiles must define both standard and variant")
	}
	return p, nil
}

func (p PromptProfiles) prompt(profile model.PromptProfile) string {
	if profile == model.ProfileVariant {
		return p.Variant
	}
	return p.Standard
}

// ServiceConfig configures the Anthropic-backed enhancement service.
type ServiceConfig struct {
	Model         string
	MaxTokens     int64
	Temperature   float64
	IdentifierKey string // JSON key carrying the catalog number
	NameKey       string // JSON key carrying the product name
}

type anthropicService struct {
	client   anthropic.Client
	cfg      ServiceConfig
	profiles PromptProfiles
}

// NewService creates a Service backed by the Anthropic API.
func NewService(client anthropic.Client, cfg ServiceConfig, profiles PromptProfiles) Service {
	return &anthropicService{client: client, cfg: cfg, profiles: profiles}
}

func (s *anthropicService) Enhance(ctx context.Context, items []model.Item, profile model.PromptProfile) (*Enhancement, error) {
	payload, err := s.buildPayload(items)
	if err != nil {
		return nil, NewFatalBatchError(eris.Wrap(err, "enhance: build payload"))
	}

	temp := s.cfg.Temperature
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(s.profiles.prompt(profile)),
		Messages:    []anthropic.Message{{Role: "user", Content: string(payload)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classifyCallError(err)
	}

	resp.Usage.LogCost(s.cfg.Model, "enhance")

	results, err := s.parseResults(resp.Text())
	if err != nil {
		// A garbled response is worth another attempt; the model output is
		// not deterministic.
		return nil, resilience.NewTransientError(eris.Wrap(err, "enhance: parse response"), 0)
	}

	return &Enhancement{
		Results:    results,
		TokensUsed: int(resp.Usage.Total()),
	}, nil
}

func (s *anthropicService) EstimateTokens(items []model.Item, profile model.PromptProfile) int {
	payload, err := s.buildPayload(items)
	if err != nil {
		return 1
	}
	// Rough chars-per-token heuristic, deliberately generous for Slovak
	// diacritics. The reservation is corrected with the actual usage after
	// the call returns.
	est := (len(payload) + len(s.profiles.prompt(profile))) / 3
	est += int(s.cfg.MaxTokens)
	if est < 1 {
		est = 1
	}
	return est
}

// buildPayload serializes items as a JSON array of flat objects keyed by the
// configured identifier and name keys plus the content column names.
func (s *anthropicService) buildPayload(items []model.Item) ([]byte, error) {
	arr := make([]map[string]string, 0, len(items))
	for _, it := range items {
		obj := map[string]string{
			s.cfg.IdentifierKey: it.Identifier,
			s.cfg.NameKey:       it.Name,
		}
		for col, val := range it.Content {
			obj[col] = val
		}
		arr = append(arr, obj)
	}
	return json.Marshal(arr)
}

// parseResults decodes the model's response into enhancement results. The
// response should be a JSON array but models occasionally wrap it in prose
// or a code fence, so a bracket-extraction fallback is applied first.
func (s *anthropicService) parseResults(text string) ([]model.EnhancementResult, error) {
	raw := extractJSONArray(text)
	if raw == "" {
		return nil, eris.New("no JSON array in response")
	}

	var arr []map[string]string
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return nil, eris.Wrap(err, "decode result array")
	}

	results := make([]model.EnhancementResult, 0, len(arr))
	for _, obj := range arr {
		res := model.EnhancementResult{
			Identifier: strings.TrimSpace(obj[s.cfg.IdentifierKey]),
			Name:       strings.TrimSpace(obj[s.cfg.NameKey]),
			Content:    map[string]string{},
		}
		for k, v := range obj {
			if k == s.cfg.IdentifierKey || k == s.cfg.NameKey {
				continue
			}
			res.Content[k] = v
		}
		results = append(results, res)
	}
	return results, nil
}

// extractJSONArray returns the outermost [...] span of text, or "" when the
// text contains no array.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// classifyCallError maps a failed API call onto the retry taxonomy: 429 and
// quota phrasing cool down, server-side and network trouble backs off, and
// everything else abandons the batch.
func classifyCallError(err error) error {
	if code, ok := anthropic.StatusCode(err); ok {
		switch {
		case resilience.IsRateLimitHTTPStatus(code):
			return resilience.NewRateLimitError(err, 0)
		case resilience.IsTransientHTTPStatus(code):
			return resilience.NewTransientError(err, code)
		default:
			zap.L().Warn("non-retryable api error", zap.Int("status", code), zap.Error(err))
			return NewFatalBatchError(err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"rate limit", "quota", "overloaded"} {
		if strings.Contains(msg, p) {
			return resilience.NewRateLimitError(err, 0)
		}
	}

	if resilience.IsTransient(err) {
		return resilience.NewTransientError(err, 0)
	}

	return NewFatalBatchError(err)
}
