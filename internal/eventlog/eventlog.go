// Package eventlog writes run_events.jsonl (spec.md §5.2), an append-only
// trace of each phase/step the orchestrator executes, grounded on the
// teacher's record.Writer append pattern and reusing it directly rather
// than re-deriving a second JSONL writer.
package eventlog

import (
	"time"

	"github.com/google/uuid"

	"packager/internal/perr"
	"packager/internal/record"
)

// Log appends one run_events.jsonl record per step, tagged with a
// per-process run_id so multiple runs writing to the same history (or log
// aggregator) can be told apart.
type Log struct {
	w     *record.Writer
	runID string
}

// Open creates the event log at path, truncating any existing file.
func Open(path string) (*Log, error) {
	w, err := record.Create(path)
	if err != nil {
		return nil, perr.IO("create event log", err)
	}
	return &Log{w: w, runID: uuid.NewString()}, nil
}

// RunID returns the identifier tagging every event this Log writes.
func (l *Log) RunID() string { return l.runID }

// Step appends the "begin" event for a phase/step pair, then returns an End
// func that appends the matching "end" event with status, duration and any
// inputs/outputs/artifacts the caller wants recorded (spec.md §4.11:
// "Phases emit a begin and end pair; end carries duration and status").
// Call End exactly once.
func (l *Log) Step(phase, step string, inputs map[string]any) func(status string, outputs map[string]any, artifacts []string, err error) {
	start := time.Now()
	_ = l.w.Append(record.R{
		"kind":   "run_event",
		"ts":     start.UTC().Format(time.RFC3339Nano),
		"run_id": l.runID,
		"phase":  phase,
		"step":   step,
		"type":   "begin",
		"status": "running",
		"inputs": inputs,
	})
	return func(status string, outputs map[string]any, artifacts []string, err error) {
		rec := record.R{
			"kind":      "run_event",
			"ts":        time.Now().UTC().Format(time.RFC3339Nano),
			"run_id":    l.runID,
			"phase":     phase,
			"step":      step,
			"type":      "end",
			"status":    status,
			"dur_ms":    time.Since(start).Milliseconds(),
			"inputs":    inputs,
			"outputs":   outputs,
			"artifacts": artifacts,
		}
		if err != nil {
			rec["error"] = err.Error()
		}
		_ = l.w.Append(rec)
	}
}

// Note appends a one-off informational event outside the begin/end pattern,
// e.g. orchestrator-level mode decisions.
func (l *Log) Note(phase, message string, fields map[string]any) {
	rec := record.R{
		"kind":   "run_event",
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"run_id": l.runID,
		"phase":  phase,
		"status": "info",
		"note":   message,
	}
	for k, v := range fields {
		rec[k] = v
	}
	_ = l.w.Append(rec)
}

// Emit appends a record under its own "kind" rather than the run_event
// envelope, for domain-shaped summaries (e.g. prune.summary) that sit
// alongside the run_event stream instead of describing a phase/step.
func (l *Log) Emit(kind string, fields map[string]any) {
	rec := record.R{
		"kind":   kind,
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"run_id": l.runID,
	}
	for k, v := range fields {
		rec[k] = v
	}
	_ = l.w.Append(rec)
}

// Close flushes and closes the underlying writer.
func (l *Log) Close() error {
	if l == nil || l.w == nil {
		return nil
	}
	if err := l.w.Close(); err != nil {
		return perr.IO("close event log", err)
	}
	return nil
}
