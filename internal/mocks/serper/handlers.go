// Package serper mocks the search API and serves the pages it links to.
package serper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	SearchPath = "/search"
	PagesPath  = "/pages/"
)

// BaseURL is prefixed to result links; set it to the mock's public address.
var BaseURL = "http://localhost:9000"

var pages = map[string]string{
	"influenza": `<html><head><title>Influenza</title><style>p{}</style></head><body>
<h1>Influenza (flu)</h1><p>Influenza is a contagious respiratory illness. Symptoms include fever, cough and headache.</p>
<script>track()</script></body></html>`,
	"common-cold": `<html><body><h1>Common cold</h1><p>A mild viral infection of the nose and throat.</p></body></html>`,
}

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(SearchPath, handleSearch)
	mux.HandleFunc(PagesPath, handlePage)
}

func handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-API-KEY") == "" {
		http.Error(w, `{"message":"Unauthorized."}`, http.StatusForbidden)
		return
	}
	var body struct {
		Q   string `json:"q"`
		Num int    `json:"num"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	base := strings.TrimRight(BaseURL, "/")
	organic := []map[string]any{
		{"title": "Influenza (flu) - symptoms and causes", "link": base + PagesPath + "influenza", "snippet": "Fever, cough, headache and muscle aches.", "position": 1},
		{"title": "Common cold - overview", "link": base + PagesPath + "common-cold", "snippet": "Runny nose, sore throat.", "position": 2},
	}
	if body.Num > 0 && body.Num < len(organic) {
		organic = organic[:body.Num]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"searchParameters": map[string]any{"q": body.Q, "type": "search"},
		"organic":          organic,
	})
}

func handlePage(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, PagesPath)
	page, ok := pages[slug]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}
