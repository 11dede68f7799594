package view_test

import (
	"bytes"
	"testing"
	"testing/fstest"
	"time"

	"github.com/willemschots/volunteerhub/assets"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/email/view"
)

const fullTemplate = `{{ define "subject" }}Hello {{ .Name }}{{ end }}` +
	`{{ define "text" }}Visit {{ .URL }}{{ end }}` +
	`{{ define "html" }}<a href="{{ .URL }}">{{ .Name }}</a>{{ end }}`

func Test_View_ParseAndRender(t *testing.T) {
	okTests := map[string]struct {
		files     fstest.MapFS
		parseName string
		data      any
		want      map[email.TemplateElement]string
	}{
		"ok, single template": {
			files: fstest.MapFS{
				"test.tmpl": {Data: []byte(fullTemplate)},
			},
			parseName: "test",
			data:      map[string]string{"Name": "Ann", "URL": "https://example.com/x"},
			want: map[email.TemplateElement]string{
				email.ElementSubject: "Hello Ann",
				email.ElementText:    "Visit https://example.com/x",
				email.ElementHTML:    `<a href="https://example.com/x">Ann</a>`,
			},
		},
		"ok, multiple templates": {
			files: fstest.MapFS{
				"test-1.tmpl": {Data: []byte(`{{ define "subject" }}1{{ end }}{{ define "text" }}t1{{ end }}{{ define "html" }}h1{{ end }}`)},
				"test-2.tmpl": {Data: []byte(`{{ define "subject" }}2{{ end }}{{ define "text" }}t2{{ end }}{{ define "html" }}h2{{ end }}`)},
			},
			parseName: "test-2",
			want: map[email.TemplateElement]string{
				email.ElementSubject: "2",
				email.ElementText:    "t2",
				email.ElementHTML:    "h2",
			},
		},
		"ok, html is escaped but text is not": {
			files: fstest.MapFS{
				"test.tmpl": {Data: []byte(fullTemplate)},
			},
			parseName: "test",
			data:      map[string]string{"Name": "<b>Ann</b>", "URL": "https://example.com/x"},
			want: map[email.TemplateElement]string{
				email.ElementSubject: "Hello <b>Ann</b>",
				email.ElementHTML:    `<a href="https://example.com/x">&lt;b&gt;Ann&lt;/b&gt;</a>`,
			},
		},
	}

	for name, tc := range okTests {
		t.Run(name, func(t *testing.T) {
			v, err := view.Parse(tc.files, tc.parseName)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for el, want := range tc.want {
				var buf bytes.Buffer
				err = v.Render(&buf, el, tc.data)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if got := buf.String(); got != want {
					t.Errorf("unexpected %s: got %q, want %q", el, got, want)
				}
			}
		})
	}

	parseFails := map[string]struct {
		files fstest.MapFS
		name  string
	}{
		"fail, no templates": {
			files: fstest.MapFS{},
			name:  "test",
		},
		"fail, no template for name": {
			files: fstest.MapFS{"test.tmpl": {Data: []byte(fullTemplate)}},
			name:  "other",
		},
		"fail, empty name": {
			files: fstest.MapFS{"test.tmpl": {Data: []byte(fullTemplate)}},
			name:  "",
		},
		"fail, missing subject block": {
			files: fstest.MapFS{"test.tmpl": {Data: []byte(`{{ define "text" }}t{{ end }}{{ define "html" }}h{{ end }}`)}},
			name:  "test",
		},
		"fail, missing text block": {
			files: fstest.MapFS{"test.tmpl": {Data: []byte(`{{ define "subject" }}s{{ end }}{{ define "html" }}h{{ end }}`)}},
			name:  "test",
		},
		"fail, missing html block": {
			files: fstest.MapFS{"test.tmpl": {Data: []byte(`{{ define "subject" }}s{{ end }}{{ define "text" }}t{{ end }}`)}},
			name:  "test",
		},
		"fail, syntax error": {
			files: fstest.MapFS{"test.tmpl": {Data: []byte(`{{ define "subject" }}Hello{{ end }`)}},
			name:  "test",
		},
		"fail, name with disallowed rune": {
			files: fstest.MapFS{"#.tmpl": {Data: []byte(fullTemplate)}},
			name:  "#",
		},
		"fail, directory traversal": {
			files: fstest.MapFS{"test.tmpl": {Data: []byte(fullTemplate)}},
			name:  "../test",
		},
	}

	for name, tc := range parseFails {
		t.Run(name, func(t *testing.T) {
			_, err := view.Parse(tc.files, tc.name)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func Test_AppTemplates(t *testing.T) {
	type link struct {
		Title    string
		StartsAt time.Time
		URL      string
	}

	expires := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data := struct {
		TenantName string
		Name       string
		URL        string
		Question   string
		ExpiresAt  *time.Time
		Links      []link
	}{
		TenantName: "Example Org",
		Name:       "Ann",
		URL:        "https://example.com/portal/abc",
		Question:   "Join us?",
		ExpiresAt:  &expires,
		Links: []link{
			{Title: "Beach cleanup", StartsAt: expires, URL: "https://example.com/signup/abc"},
		},
	}

	names := []string{
		"member-portal-access",
		"admin-password-setup",
		"admin-password-reset",
		"opportunity-invitation",
		"poll-invitation",
	}

	r := view.NewFSRenderer(assets.EmailFS)
	for _, name := range names {
		t.Run("ok, "+name, func(t *testing.T) {
			for _, el := range []email.TemplateElement{email.ElementSubject, email.ElementText, email.ElementHTML} {
				var buf bytes.Buffer
				err := r.Render(&buf, name, el, data)
				if err != nil {
					t.Fatalf("failed to render %s: %v", el, err)
				}

				if buf.Len() == 0 {
					t.Errorf("empty %s", el)
				}
			}
		})
	}
}
