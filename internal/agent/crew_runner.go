package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ccastromar/aos-healthcare-assistant/internal/bus"
	"github.com/ccastromar/aos-healthcare-assistant/internal/crew"
	"github.com/ccastromar/aos-healthcare-assistant/internal/guard"
	"github.com/ccastromar/aos-healthcare-assistant/internal/logx"
	"github.com/ccastromar/aos-healthcare-assistant/internal/metrics"
	"github.com/ccastromar/aos-healthcare-assistant/internal/runtime"
	"github.com/ccastromar/aos-healthcare-assistant/internal/store"
	"github.com/ccastromar/aos-healthcare-assistant/internal/tools"
	"github.com/ccastromar/aos-healthcare-assistant/internal/ui"
)

// ErrBusy is returned when the runner queue cannot take more work.
var ErrBusy = errors.New("crew runner busy")

type RunnerOptions struct {
	DefaultCrew string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Workers     int
	Buffer      int
	// Retention > 0 enables hourly purging of finished consultations.
	Retention time.Duration
}

// CrewRunner executes consultations: synchronously for the form and CLI, or
// from its bus inbox for the JSON API.
type CrewRunner struct {
	bus   *bus.Bus
	inbox chan bus.Message
	rt    *runtime.Runtime
	tools *tools.Registry
	store *store.DB
	ui    *ui.UIStore
	opts  RunnerOptions
}

func NewCrewRunner(b *bus.Bus, rt *runtime.Runtime, reg *tools.Registry, db *store.DB, uiStore *ui.UIStore, opts RunnerOptions) *CrewRunner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &CrewRunner{
		bus:   b,
		inbox: make(chan bus.Message, opts.Buffer),
		rt:    rt,
		tools: reg,
		store: db,
		ui:    uiStore,
		opts:  opts,
	}
}

func (c *CrewRunner) Inbox() chan bus.Message {
	return c.inbox
}

// Start runs the configured number of workers until ctx is done.
func (c *CrewRunner) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx)
		}()
	}
	if c.opts.Retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.purgeLoop(ctx, time.Hour)
		}()
	}
	wg.Wait()
	return nil
}

func (c *CrewRunner) purgeLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n, err := c.store.PurgeOlderThan(c.opts.Retention)
			if err != nil {
				logx.Warn("CrewRunner", "purge failed: %v", err)
				continue
			}
			if n > 0 {
				logx.Info("CrewRunner", "purged %d consultations older than %s", n, c.opts.Retention)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *CrewRunner) work(ctx context.Context) {
	for {
		select {
		case msg := <-c.inbox:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logx.Error("CrewRunner", "panic recovered in dispatch: %v", r)
					}
				}()
				c.dispatch(ctx, msg)
			}()
		case <-ctx.Done():
			return
		}
	}
}

func (c *CrewRunner) dispatch(ctx context.Context, msg bus.Message) {
	switch msg.Type {
	case MsgKickoff:
		id, _ := msg.Payload["id"].(string)
		if id == "" {
			logx.Warn("CrewRunner", "kickoff without id: %#v", msg)
			return
		}
		rec, err := c.store.Get(id)
		if err != nil {
			logx.Error("CrewRunner", "load consultation %s: %v", id, err)
			return
		}
		if rec.Status != store.StatusPending {
			logx.L(id, "CrewRunner", "skipping consultation in status %s", rec.Status)
			return
		}
		p := guard.Patient{Gender: rec.Gender, Age: rec.Age, Symptoms: rec.Symptoms, MedicalHistory: rec.MedicalHistory}
		_, _ = c.execute(ctx, rec.ID, rec.Crew, rec.Mode, p)
	default:
		logx.Warn("CrewRunner", "unknown message: %#v", msg)
	}
}

// prepare validates the request and stores it as pending.
func (c *CrewRunner) prepare(p guard.Patient, crewName, mode string) (*store.Consultation, error) {
	p.Normalize()
	if err := guard.ValidatePatient(p); err != nil {
		return nil, err
	}
	if crewName == "" {
		crewName = c.opts.DefaultCrew
	}
	defs := c.rt.Definitions()
	if defs == nil {
		return nil, errors.New("definitions not loaded")
	}
	if _, ok := defs.Crews[crewName]; !ok {
		return nil, fmt.Errorf("%w: %s", crew.ErrUnknownCrew, crewName)
	}
	rec := &store.Consultation{
		Crew:           crewName,
		Mode:           mode,
		Gender:         p.Gender,
		Age:            p.Age,
		Symptoms:       p.Symptoms,
		MedicalHistory: p.MedicalHistory,
	}
	if err := c.store.Create(rec); err != nil {
		return nil, err
	}
	c.ui.AddEvent(rec.ID, "Api", "request", fmt.Sprintf("%s, %d: %s", p.Gender, p.Age, p.Symptoms), "")
	return rec, nil
}

// Submit stores a pending consultation and queues it for the workers.
func (c *CrewRunner) Submit(p guard.Patient, crewName, mode string) (*store.Consultation, error) {
	rec, err := c.prepare(p, crewName, mode)
	if err != nil {
		return nil, err
	}
	err = c.bus.Send(RunnerTarget, bus.Message{
		Type:    MsgKickoff,
		Payload: map[string]any{"id": rec.ID},
	})
	if err != nil {
		logx.L(rec.ID, "CrewRunner", "queue rejected consultation: %v", err)
		_ = c.store.Fail(rec.ID, err.Error())
		metrics.Consultations.Inc(map[string]string{"mode": mode, "status": string(store.StatusFailed)})
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return rec, nil
}

// Run executes a consultation in the caller's goroutine.
func (c *CrewRunner) Run(ctx context.Context, p guard.Patient, crewName, mode string) (*store.Consultation, *crew.Output, error) {
	rec, err := c.prepare(p, crewName, mode)
	if err != nil {
		return nil, nil, err
	}
	p.Normalize()
	out, err := c.execute(ctx, rec.ID, rec.Crew, mode, p)
	return rec, out, err
}

// Cancel stops a running consultation or marks a queued one as canceled.
func (c *CrewRunner) Cancel(id string) error {
	if CancelTask(id) {
		c.ui.AddEvent(id, "Api", "cancel_requested", "", "")
		return nil
	}
	if err := c.store.Cancel(id, "canceled before start"); err != nil {
		return err
	}
	c.ui.AddEvent(id, "Api", "canceled", "canceled before start", "")
	return nil
}

func (c *CrewRunner) execute(parent context.Context, id, crewName, mode string, p guard.Patient) (*crew.Output, error) {
	ctx := NewTaskContext(parent, id, c.opts.Timeout)
	defer CancelTask(id)

	if err := c.store.MarkRunning(id); err != nil {
		logx.L(id, "CrewRunner", "cannot start: %v", err)
		return nil, err
	}

	tm := logx.Start(id, "CrewRunner", "kickoff "+crewName)
	cr, err := crew.Build(c.rt.Definitions(), crewName, c.tools, c.rt.LLMClient, crew.Options{
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Observer:    c.observer(id),
	})
	if err != nil {
		c.finish(id, mode, store.StatusFailed, err.Error())
		return nil, err
	}

	out, err := cr.Kickoff(ctx, p.Inputs())
	elapsed := tm.End()
	switch {
	case err == nil:
		tasks := make([]store.TaskOutput, 0, len(out.Tasks))
		for _, t := range out.Tasks {
			tasks = append(tasks, store.TaskOutput{Task: t.Task, Agent: t.Agent, Output: t.Raw, Duration: t.Duration})
		}
		if serr := c.store.Complete(id, out.Raw, tasks); serr != nil {
			logx.L(id, "CrewRunner", "store result: %v", serr)
		}
		metrics.Consultations.Inc(map[string]string{"mode": mode, "status": string(store.StatusCompleted)})
		c.ui.AddEvent(id, "CrewRunner", "completed", "", elapsed.String())
		return out, nil
	case errors.Is(err, context.Canceled):
		c.finish(id, mode, store.StatusCanceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		c.finish(id, mode, store.StatusFailed, fmt.Sprintf("timeout after %s", c.opts.Timeout))
	default:
		c.finish(id, mode, store.StatusFailed, err.Error())
	}
	return nil, err
}

func (c *CrewRunner) finish(id, mode string, status store.Status, msg string) {
	var err error
	if status == store.StatusCanceled {
		err = c.store.Cancel(id, msg)
	} else {
		err = c.store.Fail(id, msg)
	}
	if err != nil {
		logx.L(id, "CrewRunner", "store %s: %v", status, err)
	}
	logx.L(id, "CrewRunner", "consultation %s: %s", status, msg)
	metrics.Consultations.Inc(map[string]string{"mode": mode, "status": string(status)})
	c.ui.AddEvent(id, "CrewRunner", string(status), msg, "")
}

// observer maps crew events to the consultation timeline.
func (c *CrewRunner) observer(id string) crew.Observer {
	return func(ev crew.Event) {
		agent := ev.Agent
		if agent == "" {
			agent = "Crew"
		}
		msg := ev.Message
		if ev.Task != "" && msg == "" {
			msg = ev.Task
		} else if ev.Task != "" {
			msg = ev.Task + ": " + msg
		}
		dur := ""
		if ev.Duration > 0 {
			dur = ev.Duration.Round(time.Millisecond).String()
		}
		c.ui.AddEvent(id, agent, string(ev.Kind), msg, dur)
	}
}
