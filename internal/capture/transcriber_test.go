package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPTranscriber_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transcribe", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"buy milk tomorrow","confidence":0.94,"language":"en"}`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(srv.URL, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	got, err := tr.Transcribe(context.Background(), []byte("fake-audio"))
	require.NoError(t, err)
	assert.Equal(t, "buy milk tomorrow", got.Text)
	assert.InDelta(t, 0.94, got.Confidence, 0.001)
}

func TestHTTPTranscriber_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(srv.URL, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), []byte("fake-audio"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTranscription))
}

func TestHTTPTranscriber_EmptyAudio(t *testing.T) {
	tr, err := NewHTTPTranscriber("http://localhost:1", 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTranscription))
}

func TestNewHTTPTranscriber_RequiresURL(t *testing.T) {
	_, err := NewHTTPTranscriber("", 0, zap.NewNop())
	require.Error(t, err)
}
