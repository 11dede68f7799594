package email

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/willemschots/volunteerhub/internal/obs"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementText    TemplateElement = "text"
	ElementHTML    TemplateElement = "html"
)

// Message is a fully rendered email.
type Message struct {
	From    Address
	To      Address
	Subject string
	Text    string
	HTML    string
}

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
}

// Sender is responsible for actually sending an email. It returns
// the message id assigned by the transport.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Service renders templated emails and hands them to a Sender.
type Service struct {
	renderer Renderer
	sender   Sender
	from     Address
}

func NewService(renderer Renderer, sender Sender, from Address) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		from:     from,
	}
}

// Send renders the named template with data and sends it to the recipient.
func (s *Service) Send(ctx context.Context, template string, to Address, data any) error {
	msg := Message{
		From: s.from,
		To:   to,
	}

	parts := []struct {
		element TemplateElement
		target  *string
	}{
		{ElementSubject, &msg.Subject},
		{ElementText, &msg.Text},
		{ElementHTML, &msg.HTML},
	}

	for _, p := range parts {
		var buf bytes.Buffer
		err := s.renderer.Render(&buf, template, p.element, data)
		if err != nil {
			obs.EmailsSent.WithLabelValues(template, obs.OutcomeError).Inc()
			return fmt.Errorf("failed to render %s of %s: %w", p.element, template, err)
		}
		*p.target = buf.String()
	}

	_, err := s.sender.Send(ctx, msg)
	if err != nil {
		obs.EmailsSent.WithLabelValues(template, obs.OutcomeError).Inc()
		return fmt.Errorf("failed to send %s: %w", template, err)
	}

	obs.EmailsSent.WithLabelValues(template, obs.OutcomeOK).Inc()
	return nil
}
