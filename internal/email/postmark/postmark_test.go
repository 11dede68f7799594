package postmark_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/email/postmark"
	"github.com/willemschots/volunteerhub/internal/krypto"
)

func Test_Sender_Send(t *testing.T) {
	msg := email.Message{
		From:    "noreply@example.com",
		To:      "ann@example.com",
		Subject: "Hello",
		Text:    "text body",
		HTML:    "<p>html body</p>",
	}

	t.Run("ok, message is posted", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Postmark-Server-Token") != "server-token" {
				t.Errorf("unexpected server token header %q", r.Header.Get("X-Postmark-Server-Token"))
			}

			err := json.NewDecoder(r.Body).Decode(&got)
			if err != nil {
				t.Errorf("failed to decode request: %v", err)
			}

			_, _ = w.Write([]byte(`{"ErrorCode":0,"Message":"OK","MessageID":"msg-1"}`))
		}))
		defer srv.Close()

		s := postmark.NewSender(srv.Client(), settings(t, srv.URL))
		id, err := s.Send(context.Background(), msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if id != "msg-1" {
			t.Errorf("got id %q, want %q", id, "msg-1")
		}

		want := map[string]string{
			"From":          "noreply@example.com",
			"To":            "ann@example.com",
			"Subject":       "Hello",
			"TextBody":      "text body",
			"HtmlBody":      "<p>html body</p>",
			"MessageStream": "outbound",
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("field %s: got %q, want %q", k, got[k], v)
			}
		}
	})

	tests := map[string]struct {
		status int
		body   string
	}{
		"fail, error code in body": {
			status: http.StatusUnprocessableEntity,
			body:   `{"ErrorCode":300,"Message":"Invalid email request"}`,
		},
		"fail, non-json response": {
			status: http.StatusInternalServerError,
			body:   `oops`,
		},
		"fail, non-ok status without error code": {
			status: http.StatusUnauthorized,
			body:   `{"ErrorCode":0,"Message":""}`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s := postmark.NewSender(srv.Client(), settings(t, srv.URL))
			_, err := s.Send(context.Background(), msg)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func settings(t *testing.T, raw string) postmark.Settings {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url: %v", err)
	}

	return postmark.Settings{
		APIURL:        u,
		ServerToken:   krypto.NewSecret("server-token"),
		MessageStream: "outbound",
	}
}
