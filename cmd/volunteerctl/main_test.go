package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func Test_Commands(t *testing.T) {
	t.Run("ok, migrate prints migrations that ran", func(t *testing.T) {
		dbFile := dbFileForTest(t)

		out := mustExecute(t, "migrate", "--db", dbFile)
		if !strings.Contains(out, "0: 001_tenants_and_members.sql") {
			t.Fatalf("unexpected output:\n%s", out)
		}

		// running again does nothing.
		out = mustExecute(t, "migrate", "--db", dbFile)
		if out != "" {
			t.Fatalf("expected no output, got:\n%s", out)
		}
	})

	t.Run("ok, create and list tenants", func(t *testing.T) {
		dbFile := dbFileForTest(t)
		mustExecute(t, "migrate", "--db", dbFile)

		out := mustExecute(t, "tenant", "create", "--db", dbFile, "--name", "Food Bank", "--slug", "food-bank")
		if !strings.Contains(out, "\tfood-bank\tFood Bank") {
			t.Fatalf("unexpected output:\n%s", out)
		}

		list := mustExecute(t, "tenant", "list", "--db", dbFile)
		if list != out {
			t.Fatalf("got list\n%s\nwant\n%s", list, out)
		}
	})

	t.Run("ok, create super admin prints setup link", func(t *testing.T) {
		dbFile := dbFileForTest(t)
		mustExecute(t, "migrate", "--db", dbFile)

		out := mustExecute(t, "superadmin", "create", "--db", dbFile, "--base-url", "https://vh.example.com", "--email", "root@example.com", "--name", "Root")
		if !strings.HasPrefix(out, "https://vh.example.com/set-password/") {
			t.Fatalf("unexpected output:\n%s", out)
		}
	})

	failTests := map[string][]string{
		"fail, tenant with invalid slug":  {"tenant", "create", "--name", "Food Bank", "--slug", "Food Bank"},
		"fail, duplicate tenant":          {"tenant", "create", "--name", "Existing", "--slug", "existing"},
		"fail, super admin without email": {"superadmin", "create", "--name", "Root"},
		"fail, invalid base url":          {"superadmin", "create", "--email", "root@example.com", "--base-url", "/path"},
		"fail, duplicate super admin":     {"superadmin", "create", "--email", "existing@example.com"},
		"fail, unexpected argument":       {"migrate", "now"},
	}

	for name, args := range failTests {
		t.Run(name, func(t *testing.T) {
			dbFile := dbFileForTest(t)
			mustExecute(t, "migrate", "--db", dbFile)
			mustExecute(t, "tenant", "create", "--db", dbFile, "--name", "Existing", "--slug", "existing")
			mustExecute(t, "superadmin", "create", "--db", dbFile, "--email", "existing@example.com")

			_, err := execute(append(args, "--db", dbFile)...)
			if err == nil {
				t.Fatalf("expected error, got <nil>")
			}
		})
	}
}

func dbFileForTest(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "volunteerhub-test.db")
}

func execute(args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()

	out, err := execute(args...)
	if err != nil {
		t.Fatalf("unexpected error running %v: %v\n%s", args, err, out)
	}

	return out
}
