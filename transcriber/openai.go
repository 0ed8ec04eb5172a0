package transcriber

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAI struct {
	client *openai.Client
	lang   string
}

func NewOpenAI(apiKey, lang string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(apiKey),
		lang:   lang,
	}
}

func newOpenAIWithBaseURL(apiKey, lang, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		lang:   lang,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, audioData []byte, format string) (Result, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: "order." + format,
		Language: o.lang,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: openai: %v", ErrTranscriptionFailed, err)
	}
	return Result{Text: resp.Text}, nil
}
