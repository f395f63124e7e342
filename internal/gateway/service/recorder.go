package service

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/metrics"
)

var (
	ErrRecorderClosed = errors.New("service: access recorder closed")
	ErrRecorderFull   = errors.New("service: access recorder buffer full")
)

const DefaultRecorderBuffer = 256

// AccessRecorder appends access log lines from a background worker. Record
// never blocks the caller: when the buffer is full the record is dropped and
// counted. Write failures are logged and counted, never returned to the
// request that produced the record.
type AccessRecorder struct {
	Path    string
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	records chan domain.AccessRecord
	doneCh  chan struct{}

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewAccessRecorder(path string, buffer int, logger *slog.Logger, m *metrics.Metrics) *AccessRecorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	return &AccessRecorder{
		Path:    path,
		Logger:  logger,
		Metrics: m,
		records: make(chan domain.AccessRecord, buffer),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the writer. It is non-blocking.
func (r *AccessRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	go r.run()
	r.Logger.Info("access recorder started", "path", r.Path)
}

// Stop refuses new records, flushes what is buffered and waits for the
// writer to finish.
func (r *AccessRecorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.records)
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.doneCh
	}
	r.Logger.Info("access recorder stopped")
}

// Record queues rec for writing.
func (r *AccessRecorder) Record(rec domain.AccessRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.Metrics.ObserveAccessRecord("dropped")
		return ErrRecorderClosed
	}

	select {
	case r.records <- rec:
		return nil
	default:
		r.Metrics.ObserveAccessRecord("dropped")
		r.Logger.Warn("access record dropped, buffer full", "hwid", rec.HWID)
		return ErrRecorderFull
	}
}

func (r *AccessRecorder) run() {
	defer close(r.doneCh)

	for rec := range r.records {
		batch := []domain.AccessRecord{rec}
	drain:
		for {
			select {
			case more, ok := <-r.records:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}
		r.write(batch)
	}
}

// write opens the file per batch so that external rotation (rename then
// recreate) is picked up without signalling the process.
func (r *AccessRecorder) write(batch []domain.AccessRecord) {
	var b strings.Builder
	for _, rec := range batch {
		b.WriteString(rec.Line())
	}

	f, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err == nil {
		_, err = f.WriteString(b.String())
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}

	if err != nil {
		for range batch {
			r.Metrics.ObserveAccessRecord("failed")
		}
		r.Logger.Error("failed to append access records", "path", r.Path, "records", len(batch), "error", err)
		return
	}
	for range batch {
		r.Metrics.ObserveAccessRecord("written")
	}
}
