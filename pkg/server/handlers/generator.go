package handlers

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/rostra-live/rostra/pkg/core/timer"
)

const defaultGeneratorModel = "gemini-2.5-flash"

var slotPrompts = map[timer.Slot]string{
	timer.SlotOpeningPro:  "Deliver an opening statement arguing for the motion.",
	timer.SlotOpeningCon:  "Deliver an opening statement arguing against the motion.",
	timer.SlotRebuttalPro: "Rebut the opposing side's points while defending the motion.",
	timer.SlotRebuttalCon: "Rebut the opposing side's points while attacking the motion.",
	timer.SlotClosingPro:  "Deliver a closing statement for the motion.",
}

// GeminiGenerator composes bot speeches with the Gemini text API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator dials the Gemini API for content generation.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generator: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("generator: create client: %w", err)
	}
	if model == "" {
		model = defaultGeneratorModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Compose implements ContentGenerator.
func (g *GeminiGenerator) Compose(ctx context.Context, roomID string, slot timer.Slot) (string, error) {
	prompt, ok := slotPrompts[slot]
	if !ok {
		return "", fmt.Errorf("generator: unknown slot %q", slot)
	}
	prompt += " Keep it under 200 spoken words."
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generator: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("generator: empty response")
	}
	return text, nil
}
