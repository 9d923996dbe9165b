package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/marketd/internal/store"
)

// TriggerRecovery is the pseudo-trigger id used for recovery-run entries.
const TriggerRecovery = "recovery"

// Entry is one append-only audit record: which trigger (or recovery run)
// did what to which process, and how it turned out.
type Entry struct {
	Time    time.Time `json:"ts"`
	Trigger string    `json:"trigger"`
	Target  string    `json:"target"`
	Action  string    `json:"action"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

// Sink is a destination for audit entries. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Entry) error
}

// Recorder fans an entry out to all sinks. Record never fails the caller:
// sink errors are reported on the fallback logger and swallowed.
type Recorder struct {
	mu       sync.Mutex
	sinks    []Sink
	fallback *slog.Logger
}

// NewRecorder builds a Recorder. fallback may be nil, in which case
// slog.Default() is used.
func NewRecorder(fallback *slog.Logger, sinks ...Sink) *Recorder {
	if fallback == nil {
		fallback = slog.Default()
	}
	return &Recorder{sinks: sinks, fallback: fallback}
}

// AddSink appends a sink after construction.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// Record stamps the entry if needed and delivers it to every sink.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	r.mu.Lock()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.Unlock()
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil {
			r.fallback.Error("audit sink failed",
				"trigger", e.Trigger, "target", e.Target, "outcome", e.Outcome, "error", err)
		}
	}
}

// FileSink writes entries as JSON lines to w (typically a rotating file).
type FileSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFileSink(w io.Writer) *FileSink { return &FileSink{w: w} }

func (f *FileSink) Send(_ context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err = f.w.Write(b)
	return err
}

// StoreSink persists entries through a store.Store.
type StoreSink struct {
	st store.Store
}

func NewStoreSink(st store.Store) *StoreSink { return &StoreSink{st: st} }

func (s *StoreSink) Send(ctx context.Context, e Entry) error {
	return s.st.Append(ctx, store.Record{
		Time:    e.Time,
		Trigger: e.Trigger,
		Target:  e.Target,
		Action:  e.Action,
		Outcome: e.Outcome,
		Detail:  e.Detail,
	})
}
