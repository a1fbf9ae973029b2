package openai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-voice/config"
	"home-voice/internal/infra/openai"
)

func TestWhisperClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "es", r.FormValue("language"))

		file, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			data, _ := io.ReadAll(file)
			assert.Equal(t, "RIFF....WAVE", string(data))
		}

		_, _ = w.Write([]byte(`{"text":" prende la luz de la cocina "}`))
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL(config.OpenAIConfig{APIKey: "sk-test", Language: "es"}, server.URL)

	text, err := client.Transcribe(context.Background(), []byte("RIFF....WAVE"))
	require.NoError(t, err)
	assert.Equal(t, "prende la luz de la cocina", text)
}

func TestWhisperClient_OmitsEmptyLanguage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		_, present := r.MultipartForm.Value["language"]
		assert.False(t, present)
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL(config.OpenAIConfig{APIKey: "k"}, server.URL)
	_, err := client.Transcribe(context.Background(), []byte("audio"))
	require.NoError(t, err)
}

func TestWhisperClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
		wantErr   string
	}{
		{"unauthorized is not retried", http.StatusUnauthorized, `{"error":"bad key"}`, 1, "whisper API error 401"},
		{"server error is retried", http.StatusBadGateway, "upstream", 3, "whisper API error 502"},
		{"empty transcript", http.StatusOK, `{"text":"  "}`, 1, "empty transcript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := openai.NewWhisperClientWithURL(config.OpenAIConfig{APIKey: "k"}, server.URL)
			_, err := client.Transcribe(context.Background(), []byte("audio"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
