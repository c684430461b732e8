// Package genai is a minimal REST client for the Gemini generateContent and
// embedContent endpoints. Responses are surfaced as the raw part envelope so
// callers can pick structured output apart from reasoning parts themselves.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/mindgraph-backend/internal/pkg/httpx"
	"github.com/yungbote/mindgraph-backend/internal/platform/envutil"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	maxRetries int
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("genai: logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("genai: missing GEMINI_API_KEY")
	}

	timeoutSec := envutil.Int("GEMINI_TIMEOUT_SECONDS", 90)

	return &Client{
		log:        log.With("client", "GenAI"),
		baseURL:    envutil.Str("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		apiKey:     apiKey,
		model:      envutil.Str("GEMINI_MODEL", "gemini-flash-latest"),
		embedModel: envutil.Str("GEMINI_EMBED_MODEL", "gemini-embedding-001"),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: envutil.Int("GEMINI_MAX_RETRIES", 3),
	}, nil
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("genai http %d: %s", e.StatusCode, e.Body)
}

func (e *apiError) HTTPStatusCode() int { return e.StatusCode }

func (c *Client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &apiError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *Client) do(ctx context.Context, path string, body, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("genai decode: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("genai request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// ---- generateContent ----

type generateContentRequest struct {
	Contents         []requestContent  `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

// GenerateContent issues exactly one generation call. responseMIMEType hints
// the desired output format ("application/json" for structured output).
func (c *Client) GenerateContent(ctx context.Context, prompt, responseMIMEType string) (*GenerateContentResponse, error) {
	req := generateContentRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
	}
	if responseMIMEType != "" {
		req.GenerationConfig = &generationConfig{ResponseMIMEType: responseMIMEType}
	}

	var resp GenerateContentResponse
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	if err := c.do(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---- embedContent ----

type embedContentRequest struct {
	Content requestContent `json:"content"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (c *Client) EmbedContent(ctx context.Context, text string) ([]float32, error) {
	req := embedContentRequest{Content: requestContent{Parts: []requestPart{{Text: text}}}}

	var resp embedContentResponse
	path := fmt.Sprintf("/v1beta/models/%s:embedContent", c.embedModel)
	if err := c.do(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("genai: empty embedding")
	}
	return resp.Embedding.Values, nil
}
