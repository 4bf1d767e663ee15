package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/sawpanic/alphaloop/internal/retry"
)

// ContentAPI is the part of the genai API the generator uses.
type ContentAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	CountTokens(ctx context.Context, model string, contents []*genai.Content, config *genai.CountTokensConfig) (*genai.CountTokensResponse, error)
}

// ClientFactory opens a genai models client for an API key.
type ClientFactory func(ctx context.Context, apiKey string) (ContentAPI, error)

// GeminiClientFactory talks to the Gemini API.
func GeminiClientFactory(ctx context.Context, apiKey string) (ContentAPI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// GeminiOption customises a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithClientFactory replaces the genai client constructor.
func WithClientFactory(f ClientFactory) GeminiOption {
	return func(g *GeminiGenerator) { g.factory = f }
}

// WithRetryHook is called for every failed generation attempt.
func WithRetryHook(fn func(err error)) GeminiOption {
	return func(g *GeminiGenerator) { g.onRetry = fn }
}

// GeminiGenerator asks Gemini for structured answers, rotating API keys
// when a request fails.
type GeminiGenerator struct {
	cfg     Config
	keys    *KeyRing
	factory ClientFactory
	onRetry func(error)
	content *genai.GenerateContentConfig

	mu      sync.Mutex
	clients map[int]ContentAPI
}

// NewGeminiGenerator builds a generator with systemPrompt as the system
// instruction.
func NewGeminiGenerator(cfg Config, systemPrompt string, keys *KeyRing, opts ...GeminiOption) (*GeminiGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	if keys == nil {
		return nil, ErrNoKeys
	}

	g := &GeminiGenerator{
		cfg:     cfg,
		keys:    keys,
		factory: GeminiClientFactory,
		clients: make(map[int]ContentAPI),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.content = generateConfig(cfg, systemPrompt)
	return g, nil
}

func generateConfig(cfg Config, systemPrompt string) *genai.GenerateContentConfig {
	props := make(map[string]*genai.Schema, len(cfg.Schema.Fields))
	names := make([]string, 0, len(cfg.Schema.Fields))
	for _, f := range cfg.Schema.Fields {
		props[f.Name] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
		names = append(names, f.Name)
	}

	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(cfg.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:             genai.TypeObject,
			Description:      cfg.Schema.Description,
			Required:         names,
			Properties:       props,
			PropertyOrdering: names,
		},
	}
	if cfg.ThinkingBudget != 0 {
		gc.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(cfg.ThinkingBudget)}
	}
	if strings.TrimSpace(systemPrompt) != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)}}
	}
	return gc
}

func (g *GeminiGenerator) client(ctx context.Context) (ContentAPI, int, error) {
	idx, key := g.keys.Current()

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[idx]; ok {
		return c, idx, nil
	}
	c, err := g.factory(ctx, key)
	if err != nil {
		return nil, idx, fmt.Errorf("open model client %d: %w", idx, err)
	}
	g.clients[idx] = c
	return c, idx, nil
}

func contents(t Transcript) []*genai.Content {
	out := make([]*genai.Content, 0, len(t.Turns))
	for _, turn := range t.Turns {
		out = append(out, genai.NewContentFromText(turn.Text, genai.Role(turn.Role)))
	}
	return out
}

// Generate returns the next answer. A failed request rotates to the next
// key before the retry policy schedules another attempt.
func (g *GeminiGenerator) Generate(ctx context.Context, t Transcript) (Output, error) {
	turns := contents(t)
	return retry.Do(ctx, g.cfg.Retry, "model", func(ctx context.Context, attempt int) (Output, error) {
		log.Debug().Int("attempt", attempt).Str("model", g.cfg.Model).Msg("Retrieving model output")

		c, idx, err := g.client(ctx)
		if err != nil {
			return Output{}, err
		}

		start := time.Now()
		resp, err := c.GenerateContent(ctx, g.cfg.Model, turns, g.content)
		if err != nil {
			if ctx.Err() != nil {
				return Output{}, retry.Permanent(ctx.Err())
			}
			next := g.keys.Rotate()
			log.Warn().Err(err).Int("key", idx).Int("next_key", next).Msg("Model request failed, changing API key")
			g.hook(err)
			return Output{}, err
		}

		out, err := parseResponse(resp)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Unusable model output")
			g.hook(err)
			return Output{}, err
		}
		log.Info().Int("attempt", attempt).Dur("latency", time.Since(start)).Msg("Model output retrieved")
		return out, nil
	})
}

func (g *GeminiGenerator) hook(err error) {
	if g.onRetry != nil {
		g.onRetry(err)
	}
}

func parseResponse(resp *genai.GenerateContentResponse) (Output, error) {
	if resp == nil {
		return Output{}, ErrEmptyOutput
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Output{}, ErrEmptyOutput
	}
	out, err := ParseOutput([]byte(text))
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if strings.TrimSpace(out.Expression()) == "" {
		return Output{}, fmt.Errorf("%w: missing %q", ErrEmptyOutput, FieldExpression)
	}
	return out, nil
}

// CountTokens reports the prompt size of t.
func (g *GeminiGenerator) CountTokens(ctx context.Context, t Transcript) (int, error) {
	c, _, err := g.client(ctx)
	if err != nil {
		return 0, err
	}
	resp, err := c.CountTokens(ctx, g.cfg.Model, contents(t), nil)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

// KeyIndex reports which API key is active.
func (g *GeminiGenerator) KeyIndex() int {
	idx, _ := g.keys.Current()
	return idx
}
