package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ccastromar/aos-healthcare-assistant/internal/logx"
)

// Watcher reloads the definitions directory when any yaml file changes and
// hands the new Config to OnReload. Invalid edits are logged and ignored, the
// previous definitions stay active.
type Watcher struct {
	base     string
	OnReload func(*Config)
	Debounce time.Duration
}

func NewWatcher(base string, onReload func(*Config)) *Watcher {
	return &Watcher{
		base:     base,
		OnReload: onReload,
		Debounce: 300 * time.Millisecond,
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	for _, sub := range []string{"agents", "tasks", "crews"} {
		dir := filepath.Join(w.base, sub)
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	logx.Info("Config", "watching definitions in %s", w.base)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isYAML(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			timerCh = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logx.Warn("Config", "watcher error: %v", err)
		case <-timerCh:
			timerCh = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromDir(w.base)
	if err != nil {
		logx.Error("Config", "reload failed, keeping previous definitions: %v", err)
		return
	}
	logx.Info("Config", "definitions reloaded: %d crews", len(cfg.Crews))
	if w.OnReload != nil {
		w.OnReload(cfg)
	}
}
