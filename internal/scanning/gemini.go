package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// contentGenerator is the part of *genai.GenerativeModel used here
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini implements the Describer interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  contentGenerator
}

// NewGemini creates a new Gemini Describer instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// receipts are transcribed, not paraphrased
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Describe sends the page image and prompt to Gemini and returns the concatenated
// text parts of the first candidate
func (g *Gemini) Describe(ctx context.Context, imageData []byte, contentType string, prompt string) (string, error) {
	finalImageData, mimeType, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData(strings.TrimPrefix(mimeType, "image/"), finalImageData),
		genai.Text(prompt),
	)
	if err != nil {
		return "", unavailable("generating content", err)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("gemini blocked the request (%s): %w", fb.BlockReason, ErrEmptyResult)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates from gemini: %w", ErrEmptyResult)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("gemini returned no text (finish reason %s): %w", candidate.FinishReason, ErrEmptyResult)
	}
	return out, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
