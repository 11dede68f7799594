package mailgun_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/email/mailgun"
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
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v3/mg.example.com/messages" {
				t.Errorf("unexpected path %q", r.URL.Path)
			}

			user, pass, ok := r.BasicAuth()
			if !ok || user != "api" || pass != "key-123" {
				t.Errorf("unexpected basic auth %q %q", user, pass)
			}

			err := r.ParseMultipartForm(1 << 20)
			if err != nil {
				t.Errorf("failed to parse form: %v", err)
			}

			want := map[string]string{
				"from":    "noreply@example.com",
				"to":      "ann@example.com",
				"subject": "Hello",
				"text":    "text body",
				"html":    "<p>html body</p>",
			}
			for k, v := range want {
				if got := r.FormValue(k); got != v {
					t.Errorf("field %s: got %q, want %q", k, got, v)
				}
			}

			_, _ = w.Write([]byte(`{"id":"<msg-1@mg.example.com>","message":"Queued. Thank you."}`))
		}))
		defer srv.Close()

		s := mailgun.NewSender(srv.Client(), settings(srv.URL))
		id, err := s.Send(context.Background(), msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if id != "<msg-1@mg.example.com>" {
			t.Errorf("got id %q", id)
		}
	})

	t.Run("fail, non-ok status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`Forbidden`))
		}))
		defer srv.Close()

		s := mailgun.NewSender(srv.Client(), settings(srv.URL))
		_, err := s.Send(context.Background(), msg)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
	})
}

func settings(baseURL string) mailgun.Settings {
	return mailgun.Settings{
		BaseURL: baseURL,
		Domain:  "mg.example.com",
		APIKey:  krypto.NewSecret("key-123"),
	}
}
