package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
	"github.com/kaanbsaglam/studyai-backend/internal/utils"
)

// GenerateRequest is a single text-generation call. Model is selected by the
// caller per phase/depth; when empty the client's configured default is used.
type GenerateRequest struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// Generation is the provider response: plain text plus the token usage the
// provider reported (prompt + completion).
type Generation struct {
	Text       string
	TokensUsed int
}

// Client is the generation capability used by the pipeline. Implementations
// must be safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries  int
	temperature *float64
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log), "/")
	model := utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log)

	timeoutSec := utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 120, log)
	if timeoutSec <= 0 {
		timeoutSec = 120
	}
	maxRetries := utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 3, log)
	if maxRetries < 0 {
		maxRetries = 3
	}
	temperature := utils.GetEnvAsFloat("OPENAI_TEMPERATURE", 0.2, log)

	return &client{
		log:         log.With("service", "OpenAIClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:  maxRetries,
		temperature: &temperature,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *client) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   req.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Generation{}, fmt.Errorf("marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return Generation{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		gen, retryable, err := c.doChat(ctx, payload, model)
		if err == nil {
			return gen, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.log.Warn("generation call failed, retrying", "model", model, "attempt", attempt+1, "error", err)
	}
	return Generation{}, lastErr
}

func (c *client) doChat(ctx context.Context, payload []byte, model string) (Generation, bool, error) {
	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Generation{}, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Generation{}, false, err
		}
		// Network-level failures are worth one more attempt.
		return Generation{}, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Generation{}, true, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Generation{}, true, fmt.Errorf("openai %s: status %d: %s", model, resp.StatusCode, truncateForLog(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return Generation{}, false, fmt.Errorf("openai %s: status %d: %s", model, resp.StatusCode, truncateForLog(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Generation{}, false, fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return Generation{}, false, fmt.Errorf("openai %s: %s", model, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Generation{}, false, fmt.Errorf("openai %s: empty choices", model)
	}

	text := parsed.Choices[0].Message.Content
	used := parsed.Usage.TotalTokens
	if used == 0 {
		used = parsed.Usage.PromptTokens + parsed.Usage.CompletionTokens
	}
	if used == 0 {
		// Some gateways omit usage entirely; approximate by size.
		used = (len(payload) + len(text)) / 4
	}
	return Generation{Text: text, TokensUsed: used}, false, nil
}

func truncateForLog(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
