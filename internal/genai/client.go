package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

// Client wraps a Gemini model as the assistant's reply backend. It
// implements services.ResponderBackend; callers fall back to the rule-based
// responder when it errors.
type Client struct {
	model  *genai.GenerativeModel
	client *genai.Client
}

// NewClient creates a Gemini-backed responder client.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := client.GenerativeModel("gemini-2.0-flash-001")
	return &Client{model: model, client: client}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.client.Close()
}

// GenerateReply asks the model for a short agronomy answer grounded in the
// consultation's diagnosis context.
func (c *Client) GenerateReply(ctx context.Context, consultation *models.Consultation, incoming string) (string, error) {
	promptText := fmt.Sprintf(`
You are a plant-health assistant on a farming advice platform, covering for a
human agronomist who has not joined the consultation yet.

**Consultation Context:**
- Plant: %s
- Reported symptoms: %s
- Preliminary diagnosis: %s
- Region: %s
- Season: %s

**Farmer's Message:**
"%s"

**Instructions:**
1. Answer the farmer's question directly, in plain language a non-specialist
   understands.
2. Stay within the consultation context above. Do not invent a different
   diagnosis.
3. If the message suggests the situation is urgent or rapidly worsening,
   advise isolating affected plants and contacting the local agricultural
   extension office.
4. Keep the answer under 120 words. Plain text only, no markdown.
`, consultation.PlantName, consultation.Symptoms, labelOrUnknown(consultation), consultation.Region, consultation.Season, incoming)

	resp, err := c.model.GenerateContent(ctx, genai.Text(promptText))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected gemini response type %T", part)
	}

	reply := strings.TrimSpace(string(text))
	if reply == "" {
		return "", fmt.Errorf("blank reply from gemini")
	}
	return reply, nil
}

func labelOrUnknown(c *models.Consultation) string {
	if c.DiagnosisLabel != "" {
		return c.DiagnosisLabel
	}
	return "not yet determined"
}
