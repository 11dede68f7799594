package mailgun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/krypto"
)

// Settings contains the settings for the Mailgun API.
type Settings struct {
	// BaseURL defaults to https://<APIHost> when empty.
	BaseURL string
	APIHost string
	Domain  string
	APIKey  krypto.Secret
}

// Sender is an email sender that sends emails using the Mailgun API.
type Sender struct {
	client   *http.Client
	settings Settings
}

// NewSender creates a new sender.
func NewSender(client *http.Client, s Settings) *Sender {
	return &Sender{
		client:   client,
		settings: s,
	}
}

type response struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send sends an email using the Mailgun API.
func (s *Sender) Send(ctx context.Context, msg email.Message) (string, error) {
	// Below we send a POST request to the Mailgun API to send an email. We don't use the Go mailgun package,
	// because it brings in a lot of dependencies that we don't need. If we need more advanced features, we can
	// reconsider using it.

	// We first map the input fields to a multipart form.
	fields := []struct {
		name  string
		value string
	}{
		{"from", string(msg.From)},
		{"to", string(msg.To)},
		{"subject", msg.Subject},
		{"text", msg.Text},
		{"html", msg.HTML},
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.value == "" {
			continue
		}

		ff, err := w.CreateFormField(f.name)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(ff, strings.NewReader(f.value))
		if err != nil {
			return "", err
		}
	}

	err := w.Close()
	if err != nil {
		return "", err
	}

	// Then we construct the request.
	base := s.settings.BaseURL
	if base == "" {
		base = "https://" + s.settings.APIHost
	}
	reqURL := fmt.Sprintf("%s/v3/%s/messages", base, s.settings.Domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth("api", string(s.settings.APIKey.SecretValue()))

	// And finally we send the request.
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	resBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request did not succeed %d: %v", resp.StatusCode, string(resBody))
	}

	var res response
	err = json.Unmarshal(resBody, &res)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return res.ID, nil
}
