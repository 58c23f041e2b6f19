package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// A very small in-process metrics registry that exports Prometheus-like text.
// It supports counters and simple summaries (count/sum), with labeled samples.

type labelsKey string

func makeKey(lbls map[string]string) labelsKey {
	if len(lbls) == 0 {
		return labelsKey("")
	}
	keys := make([]string, 0, len(lbls))
	for k := range lbls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		v := strings.ReplaceAll(lbls[k], "\"", "\\\"")
		b.WriteString("\"")
		b.WriteString(v)
		b.WriteString("\"")
	}
	return labelsKey(b.String())
}

type CounterVec struct {
	Name       string
	Help       string
	mu         sync.RWMutex
	labelNames []string
	values     map[labelsKey]float64
}

func NewCounterVec(name, help string, labelNames ...string) *CounterVec {
	return &CounterVec{Name: name, Help: help, labelNames: labelNames, values: make(map[labelsKey]float64)}
}

func (cv *CounterVec) Inc(lbls map[string]string) {
	key := makeKey(lbls)
	cv.mu.Lock()
	cv.values[key] += 1
	cv.mu.Unlock()
}

// Value returns the current counter for a label set.
func (cv *CounterVec) Value(lbls map[string]string) float64 {
	key := makeKey(lbls)
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return cv.values[key]
}

// SummaryVec stores count and sum; we export metric_count and metric_sum.
type SummaryVec struct {
	Name       string
	Help       string
	mu         sync.RWMutex
	labelNames []string
	count      map[labelsKey]float64
	sum        map[labelsKey]float64
}

func NewSummaryVec(name, help string, labelNames ...string) *SummaryVec {
	return &SummaryVec{Name: name, Help: help, labelNames: labelNames, count: make(map[labelsKey]float64), sum: make(map[labelsKey]float64)}
}

func (sv *SummaryVec) Observe(lbls map[string]string, v float64) {
	key := makeKey(lbls)
	sv.mu.Lock()
	sv.count[key] += 1
	sv.sum[key] += v
	sv.mu.Unlock()
}

// Count returns how many observations were recorded for a label set.
func (sv *SummaryVec) Count(lbls map[string]string) float64 {
	key := makeKey(lbls)
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.count[key]
}

// Global metrics we care about
var (
	HTTPRequests  = NewCounterVec("medcrew_http_requests_total", "Total HTTP requests", "method", "path", "status")
	HTTPDuration  = NewSummaryVec("medcrew_http_request_seconds", "HTTP request duration seconds", "method", "path", "status")
	BusMessages   = NewCounterVec("medcrew_bus_messages_total", "Bus messages by target and result", "target", "result") // result=sent|dropped
	LLMPings      = NewCounterVec("medcrew_llm_pings_total", "LLM Ping calls", "provider", "outcome")                // outcome=ok|error
	LLMChats      = NewCounterVec("medcrew_llm_chats_total", "LLM Chat calls", "provider", "outcome")
	LLMChatDur    = NewSummaryVec("medcrew_llm_chat_seconds", "LLM Chat duration seconds", "provider", "outcome")
	ToolCalls     = NewCounterVec("medcrew_tool_calls_total", "Crew tool invocations", "tool", "outcome")
	CrewTasks     = NewCounterVec("medcrew_crew_tasks_total", "Crew tasks executed", "crew", "task", "outcome")
	CrewTaskDur   = NewSummaryVec("medcrew_crew_task_seconds", "Crew task duration seconds", "crew", "task")
	Consultations = NewCounterVec("medcrew_consultations_total", "Consultations by final status", "mode", "status") // mode=form|api|cli
)

// ServeHTTP exposes all metrics in Prometheus text format.
func ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	WriteText(w)
}

// WriteText dumps every registered metric.
func WriteText(w io.Writer) {
	for _, cv := range []*CounterVec{HTTPRequests, BusMessages, LLMPings, LLMChats, ToolCalls, CrewTasks, Consultations} {
		dumpCounter(w, cv)
	}
	for _, sv := range []*SummaryVec{HTTPDuration, LLMChatDur, CrewTaskDur} {
		dumpSummary(w, sv)
	}
}

func dumpCounter(w io.Writer, cv *CounterVec) {
	fmt.Fprintf(w, "# HELP %s %s\n", cv.Name, cv.Help)
	fmt.Fprintf(w, "# TYPE %s counter\n", cv.Name)
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	for _, key := range sortedKeys(cv.values) {
		val := cv.values[key]
		if key == "" {
			fmt.Fprintf(w, "%s %g\n", cv.Name, val)
		} else {
			fmt.Fprintf(w, "%s{%s} %g\n", cv.Name, key, val)
		}
	}
}

// Prometheus summary convention: name_sum and name_count
func dumpSummary(w io.Writer, sv *SummaryVec) {
	fmt.Fprintf(w, "# HELP %s %s\n", sv.Name, sv.Help)
	fmt.Fprintf(w, "# TYPE %s summary\n", sv.Name)
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	for _, key := range sortedKeys(sv.count) {
		cnt := sv.count[key]
		sum := sv.sum[key]
		if key == "" {
			fmt.Fprintf(w, "%s_sum %g\n", sv.Name, sum)
			fmt.Fprintf(w, "%s_count %g\n", sv.Name, cnt)
		} else {
			fmt.Fprintf(w, "%s_sum{%s} %g\n", sv.Name, key, sum)
			fmt.Fprintf(w, "%s_count{%s} %g\n", sv.Name, key, cnt)
		}
	}
}

func sortedKeys(m map[labelsKey]float64) []labelsKey {
	keys := make([]labelsKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
