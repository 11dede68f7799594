package email_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"testing/fstest"
	"time"

	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/email/view"
)

var testTemplates = fstest.MapFS{
	"greeting.tmpl": {Data: []byte(
		`{{ define "subject" }}Hi {{ .Name }}{{ end }}` +
			`{{ define "text" }}Go to {{ .URL }}{{ end }}` +
			`{{ define "html" }}<a href="{{ .URL }}">go</a>{{ end }}`,
	)},
}

func Test_Service_Send(t *testing.T) {
	from := must(email.ParseAddress("noreply@example.com"))
	to := must(email.ParseAddress("ann@example.com"))
	data := map[string]string{"Name": "Ann", "URL": "https://example.com/a"}

	t.Run("ok, renders and sends", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(view.NewFSRenderer(testTemplates), sender, from)

		err := svc.Send(context.Background(), "greeting", to, data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := email.Message{
			From:    from,
			To:      to,
			Subject: "Hi Ann",
			Text:    "Go to https://example.com/a",
			HTML:    `<a href="https://example.com/a">go</a>`,
		}

		msgs := sender.Messages()
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}

		if msgs[0] != want {
			t.Errorf("got\n%#v\nwant\n%#v", msgs[0], want)
		}
	})

	t.Run("fail, unknown template", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(view.NewFSRenderer(testTemplates), sender, from)

		err := svc.Send(context.Background(), "unknown", to, data)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}

		if len(sender.Messages()) != 0 {
			t.Errorf("expected no messages to be sent")
		}
	})

	t.Run("fail, renderer fails", func(t *testing.T) {
		errTest := errors.New("render failed")
		sender := email.NewMemorySender()
		svc := email.NewService(failingRenderer{err: errTest}, sender, from)

		err := svc.Send(context.Background(), "greeting", to, data)
		if !errors.Is(err, errTest) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errTest, err)
		}
	})

	t.Run("fail, sender fails", func(t *testing.T) {
		errTest := errors.New("send failed")
		sender := email.NewMemorySender()
		sender.FailFunc = func(email.Message) error { return errTest }
		svc := email.NewService(view.NewFSRenderer(testTemplates), sender, from)

		err := svc.Send(context.Background(), "greeting", to, data)
		if !errors.Is(err, errTest) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errTest, err)
		}
	})
}

func Test_RateLimitedSender(t *testing.T) {
	msg := email.Message{To: "ann@example.com"}

	t.Run("ok, burst is sent immediately", func(t *testing.T) {
		mem := email.NewMemorySender()
		s := email.NewRateLimitedSender(mem, time.Hour, 3)

		for i := 0; i < 3; i++ {
			_, err := s.Send(context.Background(), msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if got := len(mem.Messages()); got != 3 {
			t.Fatalf("got %d messages, want 3", got)
		}
	})

	t.Run("fail, context ends while waiting", func(t *testing.T) {
		mem := email.NewMemorySender()
		s := email.NewRateLimitedSender(mem, time.Hour, 1)

		_, err := s.Send(context.Background(), msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err = s.Send(ctx, msg)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}

		if got := len(mem.Messages()); got != 1 {
			t.Fatalf("got %d messages, want 1", got)
		}
	})
}

type failingRenderer struct {
	err error
}

func (r failingRenderer) Render(io.Writer, string, email.TemplateElement, any) error {
	return r.err
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
