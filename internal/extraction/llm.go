package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const intentPrompt = `Classify the user capture below for a personal assistant.
Return JSON only, no prose.

JSON schema:
{"intent":"task|idea|note|person|place|project","title":"short title","confidence":0-100}

Rules:
- confidence is how sure you are of the intent, 0-100.
- title keeps the user's words, shortened.

Capture:
%s`

// LLMProvider implements IntentProvider using a langchaingo chat model.
type LLMProvider struct {
	model   llms.Model
	timeout time.Duration
}

// NewLLMProvider creates an OpenAI-backed intent provider.
func NewLLMProvider(model, apiKey string, timeout time.Duration) (*LLMProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	llm, err := openai.New(openai.WithModel(model), openai.WithToken(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LLMProvider{model: llm, timeout: timeout}, nil
}

// Guess asks the model for a structured intent guess. Any failure is wrapped
// in ErrProviderFailed so the pipeline falls back to the heuristic classifier.
func (p *LLMProvider) Guess(ctx context.Context, text string) (IntentGuess, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, p.model, fmt.Sprintf(intentPrompt, text))
	if err != nil {
		return IntentGuess{}, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	guess, err := parseIntentGuess(out)
	if err != nil {
		return IntentGuess{}, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return guess, nil
}

// Available reports whether the provider is ready.
func (p *LLMProvider) Available() bool {
	return p.model != nil
}

func parseIntentGuess(text string) (IntentGuess, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return IntentGuess{}, fmt.Errorf("json object not found in output")
	}

	var guess IntentGuess
	if err := json.Unmarshal([]byte(text[start:end+1]), &guess); err != nil {
		return IntentGuess{}, err
	}
	guess.Intent = Intent(strings.ToLower(strings.TrimSpace(string(guess.Intent))))
	if !validIntent(guess.Intent) {
		return IntentGuess{}, fmt.Errorf("invalid intent %q", guess.Intent)
	}
	if guess.Confidence < 0 {
		guess.Confidence = 0
	}
	if guess.Confidence > 100 {
		guess.Confidence = 100
	}
	return guess, nil
}

// Ensure LLMProvider implements IntentProvider.
var _ IntentProvider = (*LLMProvider)(nil)
