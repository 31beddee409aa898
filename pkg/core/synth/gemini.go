package synth

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice = "Kore"
	defaultChunkSize   = 32 * 1024
)

// GeminiConfig configures the Gemini speech backend.
type GeminiConfig struct {
	APIKey    string
	Model     string // defaults to the flash TTS model
	Voice     string // default voice when a request does not pick one
	ChunkSize int    // fragment size in bytes, defaults to 32KiB
}

// Gemini synthesizes speech with the Gemini speech-generation API. The API
// returns whole utterances; the adapter slices them into fixed-size
// fragments so downstream playback starts before the full audio is handled.
type Gemini struct {
	client    *genai.Client
	model     string
	voice     string
	chunkSize int
}

// NewGemini dials the Gemini API.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	g := &Gemini{
		client:    client,
		model:     cfg.Model,
		voice:     cfg.Voice,
		chunkSize: cfg.ChunkSize,
	}
	if g.model == "" {
		g.model = defaultGeminiModel
	}
	if g.voice == "" {
		g.voice = defaultGeminiVoice
	}
	if g.chunkSize <= 0 {
		g.chunkSize = defaultChunkSize
	}
	return g, nil
}

// Name implements Synthesizer.
func (g *Gemini) Name() string { return "gemini" }

// SynthesizeStream implements Synthesizer.
func (g *Gemini) SynthesizeStream(ctx context.Context, text string, opts Options) (*Stream, error) {
	if text == "" {
		return nil, fmt.Errorf("gemini: empty text")
	}
	voice := opts.Voice
	if voice == "" {
		voice = g.voice
	}
	stream := NewStream()
	go func() {
		audio, err := g.generate(ctx, text, voice, opts.Language)
		if err != nil {
			stream.Fail(err)
			return
		}
		for off := 0; off < len(audio); off += g.chunkSize {
			end := off + g.chunkSize
			if end > len(audio) {
				end = len(audio)
			}
			if err := stream.Push(audio[off:end]); err != nil {
				// Consumer went away; nothing left to deliver.
				return
			}
		}
		stream.Finish()
	}()
	return stream, nil
}

func (g *Gemini) generate(ctx context.Context, text, voice, language string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
			LanguageCode: language,
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate speech: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: response has no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, fmt.Errorf("gemini: response has no audio data")
}
