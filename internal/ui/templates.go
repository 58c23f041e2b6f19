package ui

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

func render(w io.Writer, name string, data any) error {
	return pages.ExecuteTemplate(w, name, data)
}
