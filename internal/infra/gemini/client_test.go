package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-voice/internal/application"
	"home-voice/internal/infra/gemini"
)

func TestClient_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "k&y", r.URL.Query().Get("key"))

		var req struct {
			SystemInstruction struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			GenerationConfig struct {
				ResponseMIMEType string `json:"responseMimeType"`
			} `json:"generationConfig"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.SystemInstruction.Parts[0].Text, "coffee maker")
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"commands\":[{\"action\":\"turn_on\",\"target\":\"coffee maker\"}]}"}]}}]}`))
	}))
	defer server.Close()

	client := gemini.NewClientWithURL("k&y", "gemini-test", server.URL)

	batch, err := client.Parse(context.Background(), "make coffee", application.IntentContext{
		Devices: `{"devices": {"coffee maker": ["turn on"]}}`,
	})
	require.NoError(t, err)
	require.Len(t, batch.Commands, 1)
	assert.Equal(t, "coffee maker", batch.Commands[0].Target)
}

func TestClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error object", http.StatusOK, `{"error":{"message":"quota exceeded","code":429}}`, "gemini error: quota exceeded"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, "gemini: empty response"},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model"}}`, "gemini API error 400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := gemini.NewClientWithURL("key", "gemini-test", server.URL)
			_, err := client.Parse(context.Background(), "anything", application.IntentContext{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
