package main

import (
	"sync"

	"jobredirect/internal/job"
)

// outcome is how tracking ended.
type outcome struct {
	status    job.Status // terminal status; empty when dismissed
	dismissed bool
}

// watcher is a presenter that reports the first time tracking ends.
type watcher struct {
	once sync.Once
	done chan outcome
}

func newWatcher() *watcher {
	return &watcher{done: make(chan outcome, 1)}
}

func (w *watcher) OnStatusChanged(status job.Status, _ string, _ *int) {
	if status.IsTerminal() {
		w.finish(outcome{status: status})
	}
}

func (w *watcher) OnDismissed() {
	w.finish(outcome{dismissed: true})
}

// Done receives exactly one outcome.
func (w *watcher) Done() <-chan outcome {
	return w.done
}

func (w *watcher) finish(o outcome) {
	w.once.Do(func() { w.done <- o })
}
