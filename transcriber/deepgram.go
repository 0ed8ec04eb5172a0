package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"garcon/encoder"
	"garcon/log"
)

const deepgramBaseURL = "https://api.deepgram.com/v1/listen"

type Deepgram struct {
	apiKey string
	lang   string
	apiURL string
	client *http.Client
}

func NewDeepgram(apiKey, lang string) *Deepgram {
	return &Deepgram{
		apiKey: apiKey,
		lang:   lang,
		apiURL: deepgramBaseURL,
		client: newHTTPClient(),
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, audioData []byte, format string) (Result, error) {
	params := url.Values{}
	params.Set("model", "nova-3")
	params.Set("smart_format", "true")
	if d.lang != "" {
		params.Set("language", d.lang)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		d.apiURL+"?"+params.Encode(), bytes.NewReader(audioData))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", encoder.MIMEType(format))

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading deepgram response: %v", ErrTranscriptionFailed, err)
	}

	if resp.StatusCode != 200 {
		return Result{}, fmt.Errorf("%w: deepgram API error %d: %s",
			ErrTranscriptionFailed, resp.StatusCode, string(respBody))
	}

	var dgResp deepgramResponse
	if err := json.Unmarshal(respBody, &dgResp); err != nil {
		return Result{}, fmt.Errorf("%w: deepgram response parse error: %v", ErrTranscriptionFailed, err)
	}

	var text string
	var confidence float64
	if len(dgResp.Results.Channels) > 0 && len(dgResp.Results.Channels[0].Alternatives) > 0 {
		alt := dgResp.Results.Channels[0].Alternatives[0]
		text = alt.Transcript
		confidence = alt.Confidence
	}

	remaining := firstNonEmpty(resp.Header,
		"x-dg-ratelimit-remaining", "x-ratelimit-remaining", "ratelimit-remaining")
	log.Infof("deepgram rate limit remaining: %s", remaining)

	return Result{
		Text:       text,
		Confidence: confidence,
		Duration:   dgResp.Metadata.Duration,
	}, nil
}
