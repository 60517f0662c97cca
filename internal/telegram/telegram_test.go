package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendMessage_Success(t *testing.T) {
	var got sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/botTOKEN123/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "TOKEN123", time.Second)
	if err := c.SendMessage(context.Background(), "-100123", "hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got.ChatID != "-100123" || got.Text != "hello" {
		t.Errorf("request = %+v", got)
	}
}

func TestSendMessage_APIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"chat not found", http.StatusBadRequest, `{"ok":false,"description":"Bad Request: chat not found"}`, "chat not found"},
		{"ok false on 200", http.StatusOK, `{"ok":false,"description":"blocked"}`, "blocked"},
		{"non json", http.StatusBadGateway, `<html>`, "HTTP 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewClient(server.URL, "t", time.Second).SendMessage(context.Background(), "1", "x")
			if !errors.Is(err, ErrSendFailed) {
				t.Fatalf("error = %v, want ErrSendFailed", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSendMessage_NotConfigured(t *testing.T) {
	c := NewClient("", "", 0)
	if c.Configured() {
		t.Fatal("Configured() = true with empty token")
	}
	if err := c.SendMessage(context.Background(), "1", "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestSendMessage_RedactsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url, "SECRET-TOKEN", time.Second).SendMessage(context.Background(), "1", "x")
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if strings.Contains(err.Error(), "SECRET-TOKEN") {
		t.Errorf("error leaks token: %v", err)
	}
}
