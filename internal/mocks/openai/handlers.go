// Package openai is a canned OpenAI-compatible backend for offline runs.
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// Prefix is where the API is mounted; use it as LLM_BASE_URL suffix.
const Prefix = "/v1"

var calls atomic.Int64

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(Prefix+"/models", handleModels)
	mux.HandleFunc(Prefix+"/chat/completions", handleChat)
}

// Calls returns how many chat completions were served.
func Calls() int64 { return calls.Load() }

func handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": "mock-gpt", "object": "model"}},
	})
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	n := calls.Add(1)

	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	writeJSON(w, map[string]any{
		"id":     fmt.Sprintf("chatcmpl-mock-%d", n),
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": answer(system, user)},
		}},
	})
}

// answer picks a canned reply by persona.
func answer(system, user string) string {
	first := strings.TrimSpace(strings.SplitN(user, "\n", 2)[0])
	if len(first) > 160 {
		first = first[:160] + "..."
	}
	if strings.Contains(system, "Treatment Advisor") {
		return "## Treatment Plan\n\n" +
			"1. Rest and adequate hydration.\n" +
			"2. Paracetamol for fever, following label dosing.\n" +
			"3. Follow up with a physician if symptoms persist beyond 7 days.\n\n" +
			"_Task: " + first + "_"
	}
	return "## Preliminary Diagnosis\n\n" +
		"- Most likely: viral upper respiratory infection.\n" +
		"- Differential: influenza, early bacterial infection.\n\n" +
		"_Task: " + first + "_"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
