package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestHTTPSenderSend(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "msg-42"}`))
	}))
	defer ts.Close()

	s := NewHTTPSender(ts.URL, "key", "leadflow", zap.NewNop())
	id, err := s.Send(context.Background(), Message{
		Channel: ChannelEmail,
		To:      "ann@x.com",
		Subject: "Hello",
		Body:    "Hi Ann",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg-42" {
		t.Errorf("id = %q", id)
	}
	if got["channel"] != "email" || got["to"] != "ann@x.com" || got["from"] != "leadflow" {
		t.Errorf("payload: %v", got)
	}
}

func TestHTTPSenderRateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	s := NewHTTPSender(ts.URL, "k", "f", zap.NewNop())
	_, err := s.Send(context.Background(), Message{Channel: ChannelSMS, To: "+1"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestHTTPSenderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad recipient", http.StatusBadRequest)
	}))
	defer ts.Close()

	s := NewHTTPSender(ts.URL, "k", "f", zap.NewNop())
	if _, err := s.Send(context.Background(), Message{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogSenderReturnsSyntheticID(t *testing.T) {
	s := NewLogSender(zap.NewNop())
	id, err := s.Send(context.Background(), Message{Channel: ChannelEmail, To: "a@x.com"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty id")
	}
}
