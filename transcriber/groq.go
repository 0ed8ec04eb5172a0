package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
)

const groqBaseURL = "https://api.groq.com/openai/v1/audio/transcriptions"

type Groq struct {
	apiKey string
	lang   string
	apiURL string
	client *http.Client
}

func NewGroq(apiKey, lang string) *Groq {
	return &Groq{
		apiKey: apiKey,
		lang:   lang,
		apiURL: groqBaseURL,
		client: newHTTPClient(),
	}
}

func (g *Groq) Name() string { return "groq" }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		AvgLogProb float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, audioData []byte, format string) (Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "order."+format)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if _, err := part.Write(audioData); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	writer.WriteField("model", "whisper-large-v3-turbo")
	writer.WriteField("response_format", "verbose_json")
	if g.lang != "" {
		writer.WriteField("language", g.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", g.apiURL, &body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading groq response: %v", ErrTranscriptionFailed, err)
	}

	if resp.StatusCode != 200 {
		return Result{}, fmt.Errorf("%w: groq API error %d: %s",
			ErrTranscriptionFailed, resp.StatusCode, string(respBody))
	}

	var gResp groqResponse
	if err := json.Unmarshal(respBody, &gResp); err != nil {
		return Result{}, fmt.Errorf("%w: groq response parse error: %v", ErrTranscriptionFailed, err)
	}

	// Whisper reports log probabilities per segment, not a confidence.
	// exp of the mean gives a usable 0..1 proxy.
	var confidence float64
	if len(gResp.Segments) > 0 {
		var sum float64
		for _, seg := range gResp.Segments {
			sum += seg.AvgLogProb
		}
		confidence = math.Exp(sum / float64(len(gResp.Segments)))
		if confidence > 1 {
			confidence = 1
		}
	}

	return Result{
		Text:       gResp.Text,
		Confidence: confidence,
		Duration:   gResp.Duration,
	}, nil
}
