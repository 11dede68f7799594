package org_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/willemschots/volunteerhub/internal/krypto"
	"github.com/willemschots/volunteerhub/internal/org"
)

func Test_Password_ParseHashMatch(t *testing.T) {
	okTests := map[string]string{
		"ok, shortest":             "12345678",
		"ok, typical":              "reallyStrongPassword1",
		"ok, longest":              strings.Repeat("a", 512),
		"ok, multi-byte passwords": "wachtwoord-één",
	}

	for name, raw := range okTests {
		t.Run(name, func(t *testing.T) {
			pwd, err := org.ParsePassword(raw)
			if err != nil {
				t.Fatalf("failed to parse password: %v", err)
			}

			hash, err := pwd.Hash()
			if err != nil {
				t.Fatalf("failed to hash password: %v", err)
			}

			// We can't compare the resulting hash to a known value, because of the random salt,
			// so we check if the password matches its own hash instead.
			if !pwd.Match(hash) {
				t.Errorf("password does not match own hash\n%+v", hash)
			}
		})
	}

	t.Run("ok, password does not match hash", func(t *testing.T) {
		hash := must(must(org.ParsePassword("reallyStrongPassword1")).Hash())
		other := must(org.ParsePassword("reallyStrongPassword2"))

		if other.Match(hash) {
			t.Errorf("password should not match hash\n%+v", hash)
		}
	})

	t.Run("ok, password matches hash with different settings", func(t *testing.T) {
		// Taken these settings from the tests in the argon2 package.
		hash := krypto.Argon2Hash{
			Variant:     "argon2id",
			Version:     19,
			MemoryKiB:   64,
			Iterations:  1,
			Parallelism: 1,
			Salt:        []byte("somesalt"),
			Hash:        mustHexDecodeString(t, "655ad15eac652dc59f7170a7332bf49b8469be1fdb9c28bb"),
		}

		pwd := must(org.ParsePassword("password"))
		if !pwd.Match(hash) {
			t.Errorf("password does not match hash\n%+v", hash)
		}
	})

	failParsing := map[string]string{
		"fail, empty":     "",
		"fail, too short": "1234567",
		"fail, too long":  strings.Repeat("a", 513),
	}

	for name, raw := range failParsing {
		t.Run(name, func(t *testing.T) {
			_, err := org.ParsePassword(raw)
			if !errors.Is(err, org.ErrInvalidPassword) {
				t.Errorf("expected %v, got %v", org.ErrInvalidPassword, err)
			}
		})
	}
}

func Test_Password_UnmarshalJSON(t *testing.T) {
	t.Run("ok, valid password", func(t *testing.T) {
		var in struct {
			Password org.Password `json:"password"`
		}

		err := json.Unmarshal([]byte(`{"password":"reallyStrongPassword1"}`), &in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if in.Password.IsZero() {
			t.Fatalf("expected password to be set")
		}
	})

	t.Run("fail, too short", func(t *testing.T) {
		var in struct {
			Password org.Password `json:"password"`
		}

		err := json.Unmarshal([]byte(`{"password":"short"}`), &in)
		if !errors.Is(err, org.ErrInvalidPassword) {
			t.Fatalf("expected %v, got %v", org.ErrInvalidPassword, err)
		}
	})
}

func Test_Password_PreventExposure(t *testing.T) {
	raw := "12345678"
	pwd := must(org.ParsePassword(raw))

	assert := func(t *testing.T, s string) {
		t.Helper()
		if s != krypto.SecretMarker {
			t.Errorf("wanted\n%s\ngot\n%s\n", krypto.SecretMarker, s)
		}
	}

	t.Run("ok, fmt", func(t *testing.T) {
		assert(t, fmt.Sprintf("%s", pwd)) //nolint:gosimple
		assert(t, fmt.Sprintf("%d", pwd))
		assert(t, fmt.Sprintf("%v", pwd))
		assert(t, fmt.Sprintf("%#v", pwd))
	})

	t.Run("ok, marshal as text", func(t *testing.T) {
		b, err := pwd.MarshalText()
		if err != nil {
			t.Fatalf("failed to marshal as text: %v", err)
		}

		assert(t, string(b))
	})

	t.Run("ok, log output", func(t *testing.T) {
		var buf bytes.Buffer

		logger := slog.New(slog.NewTextHandler(&buf, nil))

		logger.Info("attempting to log a password", "password", pwd)

		s := buf.String()
		if !strings.Contains(s, krypto.SecretMarker) {
			t.Errorf("log output\n%s\ndoes not contain secret marker: %s", s, krypto.SecretMarker)
		}

		if strings.Contains(s, raw) {
			t.Errorf("log output\n%s\ncontains raw password: %s", s, raw)
		}
	})
}

func mustHexDecodeString(t *testing.T, str string) []byte {
	t.Helper()

	b, err := hex.DecodeString(str)
	if err != nil {
		t.Fatalf("failed to decode hex string: %v", err)
	}

	return b
}
