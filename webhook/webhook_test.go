package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEndpointFromAppURL(t *testing.T) {
	got := EndpointFromAppURL("https://app.example.com/")
	want := "https://app.example.com/functions/v1/instagram-webhook/subscribe"
	if got != want {
		t.Errorf("EndpointFromAppURL() = %q, want %q", got, want)
	}
}

func TestNewSubscriber(t *testing.T) {
	if _, err := NewSubscriber(Config{}); err == nil {
		t.Error("NewSubscriber() without endpoint should fail")
	}
}

func TestSubscriber_Subscribe(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  bool
		wantText string
	}{
		{name: "accepted", status: http.StatusOK},
		{name: "created", status: http.StatusCreated},
		{name: "rejected", status: http.StatusBadRequest, body: `{"error":"bad verify token"}`, wantErr: true, wantText: "bad verify token"},
		{name: "server error", status: http.StatusBadGateway, body: strings.Repeat("e", 2000), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer service-key" {
					t.Errorf("Authorization = %q", got)
				}
				if got := r.Header.Get("Content-Type"); got != "application/json" {
					t.Errorf("Content-Type = %q", got)
				}
				var body subscribeRequest
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body.AccessToken != "long" || body.VerifyToken != "verify-me" {
					t.Errorf("body = %+v", body)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s, err := NewSubscriber(Config{
				Endpoint:    srv.URL + SubscribePath,
				ServiceKey:  "service-key",
				VerifyToken: "verify-me",
				HTTPClient:  srv.Client(),
			})
			if err != nil {
				t.Fatalf("NewSubscriber() error = %v", err)
			}

			err = s.Subscribe(context.Background(), "long")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Subscribe() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrSubscriptionFailed) {
				t.Fatalf("Subscribe() error = %v, want ErrSubscriptionFailed", err)
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not carry response body", err)
			}
			if len(err.Error()) > 400 {
				t.Errorf("error message not truncated: %d bytes", len(err.Error()))
			}
		})
	}
}

func TestSubscriber_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	s, _ := NewSubscriber(Config{Endpoint: endpoint})
	if err := s.Subscribe(context.Background(), "long"); !errors.Is(err, ErrSubscriptionFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscriptionFailed", err)
	}
}
