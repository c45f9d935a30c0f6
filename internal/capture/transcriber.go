package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPTranscriber calls an external speech-to-text service over HTTP. The
// service accepts raw audio bytes on POST /transcribe and returns a
// Transcription JSON body.
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPTranscriber creates a transcriber client.
func NewHTTPTranscriber(baseURL string, timeout time.Duration, logger *zap.Logger) (*HTTPTranscriber, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("transcriber base URL required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTranscriber{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Transcribe converts audio bytes to text. All failures wrap ErrTranscription
// so callers can treat them uniformly.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte) (Transcription, error) {
	if len(audio) == 0 {
		return Transcription{}, fmt.Errorf("%w: empty audio", ErrTranscription)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transcribe", bytes.NewReader(audio))
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transcription{}, fmt.Errorf("%w: service returned %d: %s", ErrTranscription, resp.StatusCode, body)
	}

	var tr Transcription
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Transcription{}, fmt.Errorf("%w: decode response: %v", ErrTranscription, err)
	}
	if tr.Text == "" {
		return Transcription{}, fmt.Errorf("%w: empty transcript", ErrTranscription)
	}

	t.logger.Debug("transcribed audio",
		zap.Int("audio_bytes", len(audio)),
		zap.Float64("confidence", tr.Confidence))
	return tr, nil
}
