package agent

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ccastromar/aos-healthcare-assistant/internal/crew"
	"github.com/ccastromar/aos-healthcare-assistant/internal/guard"
	"github.com/ccastromar/aos-healthcare-assistant/internal/logx"
	"github.com/ccastromar/aos-healthcare-assistant/internal/report"
	"github.com/ccastromar/aos-healthcare-assistant/internal/runtime"
	"github.com/ccastromar/aos-healthcare-assistant/internal/store"
	"github.com/ccastromar/aos-healthcare-assistant/internal/ui"
)

type APIOptions struct {
	APIKey      string
	DefaultCrew string
	RateLimit   int
	RateWindow  time.Duration
}

// APIAgent is the HTTP intake: the HTML form plus the JSON consultations API.
type APIAgent struct {
	runner *CrewRunner
	store  *store.DB
	rt     *runtime.Runtime
	opts   APIOptions

	// naive fixed-window rate limiter per client key
	rlMu    sync.Mutex
	buckets map[string]*rateBucket
}

func NewAPIAgent(runner *CrewRunner, db *store.DB, rt *runtime.Runtime, opts APIOptions) *APIAgent {
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	if opts.RateLimit <= 0 {
		opts.RateLimit = 60
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	return &APIAgent{
		runner:  runner,
		store:   db,
		rt:      rt,
		opts:    opts,
		buckets: make(map[string]*rateBucket),
	}
}

// Max request size for the JSON API.
const maxBodyBytes int64 = 64 << 10

// rateBucket tracks hits in a fixed window
type rateBucket struct {
	start time.Time
	hits  int
}

var errRateLimited = errors.New("rate limit exceeded")

// acquireRL returns error if rate limit exceeded
func (a *APIAgent) acquireRL(key string) error {
	if key == "" {
		key = "anon"
	}
	a.rlMu.Lock()
	defer a.rlMu.Unlock()

	b, ok := a.buckets[key]
	now := time.Now()
	if !ok || now.Sub(b.start) >= a.opts.RateWindow {
		a.buckets[key] = &rateBucket{start: now, hits: 1}
		return nil
	}
	if b.hits >= a.opts.RateLimit {
		return errRateLimited
	}
	b.hits++
	return nil
}

// clientIP keys the rate limiter by remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// getClientKey picks the rate limit key for an authenticated request: the
// configured API key when one is set, else the remote address. Headers are
// only trusted after checkAuth accepted them.
func (a *APIAgent) getClientKey(r *http.Request) string {
	if a.opts.APIKey != "" {
		return "key:" + a.opts.APIKey
	}
	return clientIP(r)
}

// checkAuth enforces the API key when one is configured.
func (a *APIAgent) checkAuth(r *http.Request) bool {
	if a.opts.APIKey == "" {
		return true
	}
	if k := r.Header.Get("X-API-Key"); k != "" && k == a.opts.APIKey {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:]) == a.opts.APIKey
	}
	return false
}

var idRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// RegisterHTTP registra los endpoints HTTP.
func (a *APIAgent) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/", a.handleForm)
	mux.HandleFunc("/consult", a.handleConsult)
	mux.HandleFunc("/api/consultations", a.guardAPI(a.handleConsultations))
	mux.HandleFunc("/api/consultations/report", a.guardAPI(a.handleReport))
	mux.HandleFunc("/api/consultations/cancel", a.guardAPI(a.handleCancel))
}

// guardAPI applies auth and rate limiting to JSON endpoints.
func (a *APIAgent) guardAPI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.checkAuth(r) {
			w.Header().Set("WWW-Authenticate", "Bearer, X-API-Key")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := a.acquireRL(a.getClientKey(r)); err != nil {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func (a *APIAgent) crewNames() []string {
	if defs := a.rt.Definitions(); defs != nil {
		return defs.CrewNames()
	}
	return nil
}

func (a *APIAgent) handleForm(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a.renderForm(w, http.StatusOK, ui.FormPage{
		Patient: guard.Patient{Gender: guard.Genders[0], Age: guard.DefaultAge},
		Crew:    a.opts.DefaultCrew,
	})
}

func (a *APIAgent) renderForm(w http.ResponseWriter, status int, page ui.FormPage) {
	page.Crews = a.crewNames()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := ui.RenderForm(w, page); err != nil {
		logx.Error("Api", "render form: %v", err)
	}
}

// handleConsult runs the crew for a submitted form and renders the result.
func (a *APIAgent) handleConsult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := a.acquireRL(clientIP(r)); err != nil {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	p := guard.Patient{
		Gender:         r.PostForm.Get("gender"),
		Symptoms:       r.PostForm.Get("symptoms"),
		MedicalHistory: r.PostForm.Get("medical_history"),
	}
	crewName := strings.TrimSpace(r.PostForm.Get("crew"))
	if crewName == "" {
		crewName = a.opts.DefaultCrew
	}
	page := ui.FormPage{Patient: p, Crew: crewName}

	age, err := guard.ParseAge(r.PostForm.Get("age"))
	if err != nil {
		page.Error = err.Error()
		a.renderForm(w, http.StatusBadRequest, page)
		return
	}
	p.Age = age
	page.Patient.Age = age

	rec, out, err := a.runner.Run(r.Context(), p, crewName, "form")
	if err != nil {
		page.Error = err.Error()
		status := http.StatusBadGateway
		if errors.Is(err, guard.ErrInvalidPatient) || errors.Is(err, crew.ErrUnknownCrew) {
			status = http.StatusBadRequest
		} else {
			page.Error = "The assistant could not complete the consultation: " + err.Error()
		}
		a.renderForm(w, status, page)
		return
	}

	text := report.ResultText(out.AsMap())
	doc, err := report.GenerateDOCX(report.Title, text)
	if err != nil {
		logx.L(rec.ID, "Api", "generate docx: %v", err)
		http.Error(w, "could not build document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.RenderResult(w, ui.ResultPage{
		ID:   rec.ID,
		Body: ui.Markdown(text),
		Link: report.DownloadLink(doc, report.Filename),
	}); err != nil {
		logx.L(rec.ID, "Api", "render result: %v", err)
	}
}

type consultRequest struct {
	Gender         string `json:"gender"`
	Age            *int   `json:"age"`
	Symptoms       string `json:"symptoms"`
	MedicalHistory string `json:"medical_history"`
	Crew           string `json:"crew,omitempty"`
}

// handleConsultations: POST creates (async), GET fetches one or lists.
func (a *APIAgent) handleConsultations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleCreate(w, r)
	case http.MethodGet:
		if r.URL.Query().Get("id") != "" {
			a.handleGet(w, r)
			return
		}
		a.handleList(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *APIAgent) handleCreate(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported media type")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req consultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := guard.Patient{
		Gender:         req.Gender,
		Age:            guard.DefaultAge,
		Symptoms:       req.Symptoms,
		MedicalHistory: req.MedicalHistory,
	}
	if req.Age != nil {
		p.Age = *req.Age
	}

	rec, err := a.runner.Submit(p, req.Crew, "api")
	switch {
	case errors.Is(err, guard.ErrInvalidPatient), errors.Is(err, crew.ErrUnknownCrew):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrBusy):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		logx.Error("Api", "submit consultation: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	logx.L(rec.ID, "Api", "consultation accepted crew=%s", rec.Crew)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     rec.ID,
		"status": "accepted",
	})
}

func (a *APIAgent) lookup(w http.ResponseWriter, r *http.Request) (*store.Consultation, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return nil, false
	}
	if !idRe.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	rec, err := a.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "consultation not found")
		return nil, false
	}
	if err != nil {
		logx.L(id, "Api", "get consultation: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return rec, true
}

func (a *APIAgent) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *APIAgent) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 200 {
		limit = 200
	}
	list, err := a.store.List(limit)
	if err != nil {
		logx.Error("Api", "list consultations: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*store.Consultation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultations": list})
}

// handleReport serves the .docx of a completed consultation.
func (a *APIAgent) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rec, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if rec.Status != store.StatusCompleted {
		writeError(w, http.StatusConflict, "consultation is "+string(rec.Status))
		return
	}
	doc, err := report.GenerateDOCX(report.Title, rec.Output)
	if err != nil {
		logx.L(rec.ID, "Api", "generate docx: %v", err)
		writeError(w, http.StatusInternalServerError, "could not build document")
		return
	}
	w.Header().Set("Content-Type", report.DocxMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (a *APIAgent) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rec, ok := a.lookup(w, r)
	if !ok {
		return
	}
	err := a.runner.Cancel(rec.ID)
	switch {
	case errors.Is(err, store.ErrFinished):
		writeError(w, http.StatusConflict, "consultation already "+string(rec.Status))
		return
	case err != nil:
		logx.L(rec.ID, "Api", "cancel: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": rec.ID, "status": "cancel_requested"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
