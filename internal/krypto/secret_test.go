package krypto_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/willemschots/volunteerhub/internal/krypto"
)

func Test_Secret_PreventExposure(t *testing.T) {
	raw := "my secret"
	secret := krypto.NewSecret(raw)

	assert := func(t *testing.T, s string) {
		t.Helper()
		if s != krypto.SecretMarker {
			t.Errorf("wanted\n%s\ngot\n%s\n", krypto.SecretMarker, s)
		}
	}

	t.Run("ok, fmt", func(t *testing.T) {
		assert(t, fmt.Sprintf("%s", secret)) //nolint:gosimple
		assert(t, fmt.Sprintf("%q", secret))
		assert(t, fmt.Sprintf("%+v", secret))
	})

	t.Run("ok, json", func(t *testing.T) {
		b, err := json.Marshal(struct {
			APIKey krypto.Secret `json:"api_key"`
		}{secret})
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}

		if strings.Contains(string(b), raw) {
			t.Errorf("json output %s contains raw secret", b)
		}
	})

	t.Run("ok, log output", func(t *testing.T) {
		var buf bytes.Buffer

		logger := slog.New(slog.NewTextHandler(&buf, nil))
		logger.Info("attempting to log a secret", "secret", secret)

		s := buf.String()
		if !strings.Contains(s, krypto.SecretMarker) {
			t.Errorf("log output\n%s\ndoes not contain secret marker: %s", s, krypto.SecretMarker)
		}

		if strings.Contains(s, raw) {
			t.Errorf("log output\n%s\ncontains raw secret: %s", s, raw)
		}
	})

	t.Run("ok, escape hatch", func(t *testing.T) {
		if string(secret.SecretValue()) != raw {
			t.Errorf("got %q, want %q", secret.SecretValue(), raw)
		}
	})
}

func Test_Secret_IsZero(t *testing.T) {
	tests := map[string]struct {
		secret krypto.Secret
		want   bool
	}{
		"zero value": {krypto.Secret{}, true},
		"empty":      {krypto.NewSecret(""), true},
		"set":        {krypto.NewSecret("token"), false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tc.secret.IsZero(); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
