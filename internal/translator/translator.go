package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subrender/internal/subtitle"
	"github.com/MimeLyc/subrender/pkg/log"
)

var (
	ErrNotConfigured = errors.New("translator is not configured")
	ErrEmptyResponse = errors.New("translator returned no content")
)

// Config selects the OpenAI compatible endpoint and target language.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Target  language.Tag
	Enabled bool
}

// completer sends one system+user exchange and returns the reply text.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type openAICompleter struct {
	client openai.Client
	model  string
}

func newOpenAICompleter(cfg Config) *openAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &openAICompleter{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (c *openAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: c.model,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// Translator performs one batch completion per caption document.
// It can be reconfigured at runtime; in-flight calls keep the old settings.
type Translator struct {
	mu        sync.RWMutex
	completer completer
	target    language.Tag
	enabled   bool
}

func New(cfg Config) *Translator {
	t := &Translator{}
	t.Reconfigure(cfg)
	return t
}

// Reconfigure swaps the endpoint, model, and target language.
func (t *Translator) Reconfigure(cfg Config) {
	var c completer
	if strings.TrimSpace(cfg.APIKey) != "" {
		c = newOpenAICompleter(cfg)
	}
	target := cfg.Target
	if target == language.Und {
		target = language.Hindi
	}

	t.mu.Lock()
	t.completer = c
	t.target = target
	t.enabled = cfg.Enabled
	t.mu.Unlock()

	log.Info("Translator configured: model=%s target=%s available=%t", cfg.Model, target, c != nil && cfg.Enabled)
}

// Available reports whether a call could be attempted.
func (t *Translator) Available() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completer != nil && t.enabled
}

func (t *Translator) Target() language.Tag {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.target
}

// Batch translates texts in a single request. Any failure yields an Unavailable result.
func (t *Translator) Batch(ctx context.Context, texts []string) subtitle.BatchResult {
	t.mu.RLock()
	c, target, enabled := t.completer, t.target, t.enabled
	t.mu.RUnlock()

	if c == nil || !enabled {
		return subtitle.Unavailable(ErrNotConfigured)
	}

	reply, err := c.Complete(ctx, systemPrompt, buildUserPrompt(target, texts))
	if err != nil {
		log.Warn("Batch translation failed: %v", err)
		return subtitle.Unavailable(fmt.Errorf("%w: %v", subtitle.ErrTranslatorUnavailable, err))
	}

	decoded := subtitle.DecodeBatch(reply)
	log.Info("Batch translation complete (%d of %d segments)", len(decoded), len(texts))
	return subtitle.Translated(decoded)
}
