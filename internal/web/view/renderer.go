package view

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Renderer renders pages that were parsed up front.
type Renderer struct {
	pages map[string]*Page
}

// NewRenderer parses every page in pageFS. A broken template is reported
// here, not when a member opens the page.
func NewRenderer(pageFS fs.FS) (*Renderer, error) {
	files, err := fs.Glob(pageFS, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob for pages: %w", err)
	}

	pages := make(map[string]*Page, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(file, ".html")
		p, err := Parse(pageFS, name)
		if err != nil {
			return nil, err
		}

		pages[name] = p
	}

	return &Renderer{
		pages: pages,
	}, nil
}

// Render renders the named page. Nothing is written to w if rendering fails.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	p, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("page %q not found", name)
	}

	var buf bytes.Buffer
	err := p.Render(&buf, data)
	if err != nil {
		return fmt.Errorf("failed to render page %q: %w", name, err)
	}

	_, err = buf.WriteTo(w)
	return err
}
