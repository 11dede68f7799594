package view

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"
)

const baseFilename = "base.html"

// funcs are available in every page.
var funcs = template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"datetime": func(t time.Time) string {
		return t.Format("Mon 2 Jan 2006 15:04")
	},
}

// Page is a HTML page shown to members that follow a link.
//
// A page combines the following templates:
// - base.html (required)
// - {name}.html (optional)
// - partials/*.html (optional)
type Page struct {
	name     string
	template *template.Template
}

// Parse parses the file system and returns the page with the given name.
func Parse(pageFS fs.FS, name string) (*Page, error) {
	// Page names end up in filenames, they should never allow
	// access to other parts of the file system.
	if err := validateName(name); err != nil {
		return nil, err
	}

	files := []string{baseFilename}
	if name != "base" && name != "" {
		files = append(files, name+".html")
	}

	partials, err := fs.Glob(pageFS, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob for partials: %w", err)
	}

	files = append(files, partials...)

	t, err := template.New(baseFilename).Funcs(funcs).ParseFS(pageFS, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %q: %w", name, err)
	}

	return &Page{
		name:     name,
		template: t,
	}, nil
}

// Render executes the page with data and writes the result to w.
func (p *Page) Render(w io.Writer, data any) error {
	return p.template.Execute(w, data)
}

// validateName checks if all characters are alphanumeric, dashes or underscores.
func validateName(name string) error {
	for _, c := range name {
		if !validNameRune(c) {
			return fmt.Errorf("invalid character %q in page name %q", c, name)
		}
	}
	return nil
}

func validNameRune(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_'
}
