package web

import (
	"bytes"
	"net/http"

	"github.com/willemschots/volunteerhub/internal"
)

// pageData is passed to every page.
type pageData struct {
	Version string
	Status  int
	Message string
	// Path is where forms on the page are posted to.
	Path string
	Data any
}

// writePage renders the named page. The status is only written once the
// page rendered successfully.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, name string, data any) error {
	return s.renderPage(w, status, name, pageData{
		Version: internal.Version(),
		Status:  status,
		Path:    r.URL.Path,
		Data:    data,
	})
}

// writeMessage renders a page with a short message for the member.
func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string) error {
	return s.renderPage(w, status, "message", pageData{
		Version: internal.Version(),
		Status:  status,
		Message: msg,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data pageData) error {
	var buf bytes.Buffer
	err := s.deps.PageRenderer.Render(&buf, name, data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}
