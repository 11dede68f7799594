package krypto_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/willemschots/volunteerhub/internal/krypto"
)

const (
	rawKey1 = "2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d"
	rawKey2 = "568554094ec040ab8a6b3e6d7cc138b0dc855f39ba1aeb2ffc903f7260b3a452"
)

func Test_ParseKey(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		key, err := krypto.ParseKey(rawKey1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(key.SecretValue()) != 32 {
			t.Errorf("got %d bytes, want 32", len(key.SecretValue()))
		}
	})

	failCases := map[string]string{
		"empty string":          "",
		"too short":             rawKey1[:63],
		"too long":              rawKey1 + "a",
		"invalid hex character": "z" + rawKey1[1:],
	}

	for name, val := range failCases {
		t.Run(name, func(t *testing.T) {
			_, err := krypto.ParseKey(val)
			if !errors.Is(err, krypto.ErrInvalidKey) {
				t.Fatalf("got error %v, want %v", err, krypto.ErrInvalidKey)
			}
		})
	}
}

func Test_ParseKeys(t *testing.T) {
	t.Run("ok, keeps order", func(t *testing.T) {
		keys, err := krypto.ParseKeys(rawKey1 + ", " + rawKey2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(keys) != 2 {
			t.Fatalf("got %d keys, want 2", len(keys))
		}

		want := must(krypto.ParseKey(rawKey2))
		if !bytes.Equal(keys[1].SecretValue(), want.SecretValue()) {
			t.Errorf("second key does not match")
		}
	})

	failCases := map[string]string{
		"empty":          "",
		"trailing comma": rawKey1 + ",",
		"one invalid":    rawKey1 + ",abc",
	}

	for name, val := range failCases {
		t.Run(name, func(t *testing.T) {
			_, err := krypto.ParseKeys(val)
			if !errors.Is(err, krypto.ErrInvalidKey) {
				t.Fatalf("got error %v, want %v", err, krypto.ErrInvalidKey)
			}
		})
	}
}

func Test_Key_PreventExposure(t *testing.T) {
	key := must(krypto.ParseKey(rawKey1))

	assert := func(t *testing.T, s string) {
		t.Helper()
		if s != krypto.SecretMarker {
			t.Errorf("wanted\n%s\ngot\n%s\n", krypto.SecretMarker, s)
		}
	}

	t.Run("ok, fmt", func(t *testing.T) {
		assert(t, fmt.Sprintf("%s", key)) //nolint:gosimple
		assert(t, fmt.Sprintf("%v", key))
		assert(t, fmt.Sprintf("%#v", key))
	})

	t.Run("ok, marshal as text", func(t *testing.T) {
		b, err := key.MarshalText()
		if err != nil {
			t.Fatalf("failed to marshal as text: %v", err)
		}

		assert(t, string(b))
	})

	t.Run("ok, json log output", func(t *testing.T) {
		var buf bytes.Buffer

		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		logger.Info("attempting to log keys", "key", key, "keys", []krypto.Key{key})

		s := buf.String()
		if !strings.Contains(s, krypto.SecretMarker) {
			t.Errorf("log output\n%s\ndoes not contain secret marker: %s", s, krypto.SecretMarker)
		}

		if strings.Contains(s, rawKey1) {
			t.Errorf("log output\n%s\ncontains raw key", s)
		}
	})
}
