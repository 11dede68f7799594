package assets

import (
	"embed"
	"io/fs"
)

//go:embed emails/*.tmpl
var emailFS embed.FS

//go:embed pages/*.html
var pageFS embed.FS

// EmailFS contains the email templates.
var EmailFS fs.FS

// PageFS contains the HTML pages shown to members following a link.
var PageFS fs.FS

func init() {
	var err error

	EmailFS, err = fs.Sub(emailFS, "emails")
	if err != nil {
		panic("failed to subtree email FS " + err.Error())
	}

	PageFS, err = fs.Sub(pageFS, "pages")
	if err != nil {
		panic("failed to subtree page FS " + err.Error())
	}
}
