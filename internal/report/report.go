// Package report turns crew results into downloadable documents.
package report

import (
	"encoding/base64"
	"fmt"
	"html"
	"html/template"
	"strings"
)

const (
	Title     = "Healthcare Diagnosis and Treatment Recommendations"
	Filename  = "diagnosis_and_treatment_plan.docx"
	DocxMIME  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	LinkLabel = "📥 Download Diagnosis and Treatment Plan"
)

type rawer interface {
	String() string
}

// ResultText extracts the displayable text from a crew result: the "output"
// entry when v is a mapping, otherwise v as text.
func ResultText(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case map[string]any:
		if o, ok := r["output"]; ok {
			return ResultText(o)
		}
		return fmt.Sprint(r)
	case map[string]string:
		if o, ok := r["output"]; ok {
			return o
		}
		return fmt.Sprint(r)
	case rawer:
		return r.String()
	default:
		return fmt.Sprint(v)
	}
}

// DataURI encodes data as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DownloadLink returns an anchor that downloads data as filename.
func DownloadLink(data []byte, filename string) template.HTML {
	var b strings.Builder
	b.WriteString(`<a href="`)
	b.WriteString(DataURI(DocxMIME, data))
	b.WriteString(`" download="`)
	b.WriteString(html.EscapeString(filename))
	b.WriteString(`">`)
	b.WriteString(LinkLabel)
	b.WriteString(`</a>`)
	return template.HTML(b.String())
}
