package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OpenAI implements the Describer interface against an OpenAI-compatible
// chat/completions endpoint that accepts image_url content parts
type OpenAI struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOpenAI creates a new OpenAI Describer instance
func NewOpenAI(baseURL, apiKey, modelName string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &OpenAI{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     modelName,
		maxTokens: 2000, // room for several receipts in one photo
		client:    &http.Client{Timeout: 120 * time.Second},
	}, nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Describe sends the page image and prompt to the chat/completions endpoint
func (o *OpenAI) Describe(ctx context.Context, imageData []byte, contentType string, prompt string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	finalImageData, mimeType, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	body := chatRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{
						URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(finalImageData),
					}},
				},
			},
		},
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("openai.describe.request", "req_id", rid, "model", o.model, "image_bytes", len(finalImageData))

	resp, err := o.client.Do(req)
	if err != nil {
		slog.Error("openai.describe.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", unavailable("calling openai API", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unavailable("reading openai response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai status %d: %s: %w", resp.StatusCode, string(raw), ErrBackendUnavailable)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decoding openai response: %w: %w", ErrEmptyResult, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response: %w", ErrEmptyResult)
	}
	text := strings.TrimSpace(cc.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned no text: %w", ErrEmptyResult)
	}

	slog.Debug("openai.describe.ok", "req_id", rid, "bytes", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Close is a no-op for the HTTP client
func (o *OpenAI) Close() error {
	return nil
}
