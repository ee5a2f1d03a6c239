package store

import (
	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
)

// Recorder returns a task callback that folds cluster events into st.
//
// A record that reached a terminal status is never moved back, so a late
// event cannot regress it. Only a pending event creates a record: later
// events for a task already evicted by the capacity bound are dropped.
func Recorder(st Store) func(cluster.TaskEvent) {
	return func(ev cluster.TaskEvent) {
		if ev.Status != cluster.StatusPending {
			if _, ok := st.Get(ev.TaskID); !ok {
				return
			}
		}
		st.Upsert(ev.TaskID, func(rec *TaskRecord) {
			if cluster.Status(rec.Status).Terminal() {
				return
			}
			apply(rec, ev)
		})
	}
}

func apply(rec *TaskRecord, ev cluster.TaskEvent) {
	rec.Status = ev.Status.String()
	rec.WorkerID = ev.WorkerID
	if ev.Description != "" {
		rec.Description = ev.Description
	}

	at := ev.At
	switch ev.Status {
	case cluster.StatusPending:
		rec.SubmittedAt = at
	case cluster.StatusExecuting:
		rec.StartedAt = &at
	default:
		rec.FinishedAt = &at
		rec.DurationMs = ev.Duration.Milliseconds()
		if ev.Err != nil {
			msg := ev.Err.Error()
			rec.Error = &msg
		}
	}
}
