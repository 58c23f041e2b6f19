package main

import (
	"flag"
	"log"
	"net/http"

	mockOpenAI "github.com/ccastromar/aos-healthcare-assistant/internal/mocks/openai"
	mockSerper "github.com/ccastromar/aos-healthcare-assistant/internal/mocks/serper"
)

var listenAndServe = http.ListenAndServe

func buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mockOpenAI.RegisterHandlers(mux)
	mockSerper.RegisterHandlers(mux)
	return mux
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	public := flag.String("public-url", "http://localhost:9000", "base URL used in search result links")
	flag.Parse()

	mockSerper.BaseURL = *public
	log.Printf("[MOCK SERVER] listening on %s (LLM_BASE_URL=%s%s SERPER_URL=%s%s)",
		*addr, *public, mockOpenAI.Prefix, *public, mockSerper.SearchPath)
	if err := listenAndServe(*addr, buildMux()); err != nil {
		log.Fatal(err)
	}
}
