// Package metrics is the backend-neutral metrics surface used by the importer.
//
// Pipeline code calls the package-level helpers; the command picks a backend
// once at startup with SetBackend. Until then every call goes to a no-op.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

// Metric names.
const (
	FilesTotal          = "pos_files_total"
	RowsTotal           = "pos_rows_total"
	StepDurationSeconds = "pos_step_duration_seconds"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the global backend. A nil b restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the global backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordFile counts one processed file by outcome ("ok", "failed", "rejected").
func RecordFile(status string) {
	IncCounter(FilesTotal, 1, Labels{"status": status})
}

// RecordRows counts rows by kind ("written", "skipped", "duplicate").
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordStep records how long a pipeline step took.
func RecordStep(step string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ObserveHistogram(StepDurationSeconds, d.Seconds(), Labels{"step": step, "status": status})
}
