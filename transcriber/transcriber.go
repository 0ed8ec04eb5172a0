// Package transcriber sends recorded audio to a speech-to-text provider
// and returns the raw transcript. Providers are selected by name or, in
// auto mode, by whichever API key is present in the environment.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrTranscriptionFailed wraps every provider failure so callers can
// branch on the class without parsing provider-specific messages.
var ErrTranscriptionFailed = errors.New("transcription failed")

type Result struct {
	Text       string
	Confidence float64
	Duration   float64
}

type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioData []byte, format string) (Result, error)
}

// New builds the provider named by provider. With "auto" it picks the
// first of deepgram, groq, openai whose API key is set.
func New(provider, language string) (Transcriber, error) {
	dgKey := os.Getenv("DEEPGRAM_API_KEY")
	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")

	switch provider {
	case "deepgram":
		if dgKey == "" {
			return nil, fmt.Errorf("DEEPGRAM_API_KEY is not set")
		}
		return NewDeepgram(dgKey, language), nil
	case "groq":
		if groqKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY is not set")
		}
		return NewGroq(groqKey, language), nil
	case "openai":
		if openaiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return NewOpenAI(openaiKey, language), nil
	case "auto", "":
		if dgKey != "" {
			return NewDeepgram(dgKey, language), nil
		}
		if groqKey != "" {
			return NewGroq(groqKey, language), nil
		}
		if openaiKey != "" {
			return NewOpenAI(openaiKey, language), nil
		}
		return nil, fmt.Errorf("set DEEPGRAM_API_KEY, GROQ_API_KEY or OPENAI_API_KEY environment variable")
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", provider)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        1,
			MaxIdleConnsPerHost: 1,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}
