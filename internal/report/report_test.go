package report

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stringer struct{ s string }

func (s stringer) String() string { return s.s }

func TestResultText(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "plain text", "plain text"},
		{"map with output", map[string]any{"output": "diagnosis", "tasks": 2}, "diagnosis"},
		{"string map with output", map[string]string{"output": "plan"}, "plan"},
		{"map without output", map[string]string{"x": "y"}, "map[x:y]"},
		{"stringer", stringer{"from stringer"}, "from stringer"},
		{"number", 42, "42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ResultText(tc.in))
		})
	}
}

func readPart(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(b)
	}
	t.Fatalf("part %s not found", name)
	return ""
}

func TestGenerateDOCX(t *testing.T) {
	data, err := generateDOCX(Title, "Diagnosis: flu & cold <mild>\nPlan: rest", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	ct := readPart(t, data, "[Content_Types].xml")
	require.Contains(t, ct, "wordprocessingml.document.main+xml")

	doc := readPart(t, data, "word/document.xml")
	require.Contains(t, doc, `<w:pStyle w:val="Heading1"/>`)
	require.Contains(t, doc, Title)
	require.Contains(t, doc, "flu &amp; cold &lt;mild&gt;")
	require.Contains(t, doc, `<w:br/>`)
	require.Contains(t, doc, "Plan: rest")

	// every XML part must be well formed
	for _, part := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/styles.xml", "docProps/core.xml", "word/_rels/document.xml.rels"} {
		dec := xml.NewDecoder(strings.NewReader(readPart(t, data, part)))
		for {
			_, err := dec.Token()
			if err == io.EOF {
				break
			}
			require.NoError(t, err, part)
		}
	}
}

func TestGenerateDOCX_StripsControlChars(t *testing.T) {
	data, err := GenerateDOCX("t", "a\x00b\x07c")
	require.NoError(t, err)
	require.Contains(t, readPart(t, data, "word/document.xml"), ">abc<")
}

func TestDownloadLink(t *testing.T) {
	payload := []byte("docx-bytes")
	link := string(DownloadLink(payload, Filename))
	prefix := "data:" + DocxMIME + ";base64,"
	require.True(t, strings.HasPrefix(link, `<a href="`+prefix))
	require.Contains(t, link, `download="diagnosis_and_treatment_plan.docx"`)
	require.Contains(t, link, ">"+LinkLabel+"</a>")

	enc := strings.TrimPrefix(DataURI(DocxMIME, payload), prefix)
	dec, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	require.Equal(t, payload, dec)
}
