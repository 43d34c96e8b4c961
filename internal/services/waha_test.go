package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estate_backoffice/internal/config"
)

func TestNormalizeChatID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		country  string
		expected string
	}{
		{
			name:     "phone number without country code",
			input:    "081246361829",
			country:  "62",
			expected: "6281246361829@c.us",
		},
		{
			name:     "phone number with country code",
			input:    "6281246361829",
			country:  "62",
			expected: "6281246361829@c.us",
		},
		{
			name:     "group id",
			input:    "120363407813232111@g.us",
			country:  "62",
			expected: "120363407813232111@g.us",
		},
		{
			name:     "phone number without country code, with suffix",
			input:    "081246361829@c.us",
			country:  "62",
			expected: "6281246361829@c.us",
		},
		{
			name:     "international format with spaces",
			input:    "+254 712-345 678",
			country:  "62",
			expected: "254712345678@c.us",
		},
		{
			name:     "other default country",
			input:    "0712345678",
			country:  "254",
			expected: "254712345678@c.us",
		},
		{
			name:     "no default country",
			input:    "0712345678",
			country:  "",
			expected: "0712345678@c.us",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeChatID(tt.input, tt.country))
		})
	}
}

func TestWahaService_SendMessage(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
		text  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "6281246361829@c.us", body["chatId"])

		mu.Lock()
		calls = append(calls, r.URL.Path)
		if r.URL.Path == "/api/sendText" {
			text = body["text"]
		}
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	svc := NewWahaService(config.WahaConfig{BaseURL: srv.URL + "/", APIKey: "secret", DefaultCountryCode: "62"})
	svc.pauses = [3]time.Duration{}

	require.NoError(t, svc.SendMessage(context.Background(), "081246361829", "hello"))
	assert.Equal(t, []string{"/api/sendSeen", "/api/startTyping", "/api/stopTyping", "/api/sendText"}, calls)
	assert.Equal(t, "hello", text)
}

func TestWahaService_SendMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not started", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	svc := NewWahaService(config.WahaConfig{BaseURL: srv.URL})
	svc.pauses = [3]time.Duration{}

	err := svc.SendMessage(context.Background(), "6281", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send seen")
	assert.Contains(t, err.Error(), "422")
}
