package ui

import (
	"bytes"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ccastromar/aos-healthcare-assistant/internal/guard"
)

// FormPage is the intake form.
type FormPage struct {
	Patient guard.Patient
	Crew    string
	Crews   []string
	Error   string
}

func (FormPage) Genders() []string { return guard.Genders }
func (FormPage) MinAge() int       { return guard.MinAge }
func (FormPage) MaxAge() int       { return guard.MaxAge }

// ResultPage shows a finished consultation with its download link.
type ResultPage struct {
	ID   string
	Body template.HTML
	Link template.HTML
}

func RenderForm(w io.Writer, p FormPage) error {
	return render(w, "form.html", p)
}

func RenderResult(w io.Writer, p ResultPage) error {
	return render(w, "result.html", p)
}

// raw HTML in model output is dropped; html.WithUnsafe is never set.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Markdown renders model output for display. On a conversion error the text
// is shown escaped inside a <pre>.
func Markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(text) + "</pre>")
	}
	return template.HTML(buf.String())
}
