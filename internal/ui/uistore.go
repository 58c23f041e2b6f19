package ui

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultMaxTasks bounds how many timelines are kept in memory.
const DefaultMaxTasks = 500

type Event struct {
	Time     time.Time
	Agent    string
	Kind     string
	Message  string
	Duration string
}

type UIStore struct {
	mu       sync.RWMutex
	tasks    map[string][]Event
	order    []string
	maxTasks int
}

func NewUIStore() *UIStore {
	return &UIStore{
		tasks:    make(map[string][]Event),
		maxTasks: DefaultMaxTasks,
	}
}

// AddEvent registra un evento para una consulta.
func (s *UIStore) AddEvent(taskID, agent, kind, msg, duration string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		s.order = append(s.order, taskID)
		for len(s.order) > s.maxTasks {
			delete(s.tasks, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.tasks[taskID] = append(s.tasks[taskID], Event{
		Time:     time.Now(),
		Agent:    agent,
		Kind:     kind,
		Message:  msg,
		Duration: duration,
	})
}

// Events returns a copy of the timeline of taskID.
func (s *UIStore) Events(taskID string) ([]Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	cp := make([]Event, len(evs))
	copy(cp, evs)
	return cp, true
}

// snapshot devuelve una copia segura de los datos.
func (s *UIStore) snapshot() map[string][]Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Event, len(s.tasks))
	for k, v := range s.tasks {
		cp := make([]Event, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// HandleIndex lists consultations with their latest event, newest first.
func (s *UIStore) HandleIndex(w http.ResponseWriter, r *http.Request) {
	data := s.snapshot()

	type row struct {
		ID        string
		LastEvent Event
		Count     int
	}

	rows := make([]row, 0, len(data))
	for id, evs := range data {
		if len(evs) == 0 {
			continue
		}
		rows = append(rows, row{
			ID:        id,
			LastEvent: evs[len(evs)-1],
			Count:     len(evs),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].LastEvent.Time.After(rows[j].LastEvent.Time)
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render(w, "index.html", rows); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleTask muestra el timeline completo de una consulta.
func (s *UIStore) HandleTask(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Redirect(w, r, "/ui", http.StatusFound)
		return
	}

	events, ok := s.Events(id)
	if !ok {
		http.Error(w, "consultation not found", http.StatusNotFound)
		return
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render(w, "task.html", struct {
		ID     string
		Events []Event
	}{
		ID:     id,
		Events: events,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
