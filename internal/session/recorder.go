package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/healthlink/internal/codec"
)

// MaxRecorderSize guards against accidental misconfiguration.
const MaxRecorderSize uint32 = 1024 * 1024

// Record is one measurement with its arrival time.
type Record struct {
	Time        time.Time         `json:"time"`
	Kind        string            `json:"kind"`
	Measurement codec.Measurement `json:"measurement"`
}

// RecorderMetrics counts recorder activity. Fields are updated atomically.
type RecorderMetrics struct {
	Recorded    int64
	Overwritten int64
	Errors      int64
}

// Recorder keeps the most recent measurements from any number of subscriptions.
// When full, the oldest records are overwritten. All methods are thread-safe.
type Recorder struct {
	buffer  mpmc.RichOverlappedRingBuffer[Record]
	metrics RecorderMetrics
	now     func() time.Time
}

// NewRecorder creates a Recorder holding about size records.
func NewRecorder(size uint32) (*Recorder, error) {
	if size == 0 {
		return nil, fmt.Errorf("recorder size must be > 0")
	}
	if size > MaxRecorderSize {
		return nil, fmt.Errorf("recorder size %d exceeds maximum %d", size, MaxRecorderSize)
	}
	return &Recorder{
		buffer: mpmc.NewOverlappedRingBuffer[Record](size),
		now:    time.Now,
	}, nil
}

// Record stores m.
func (r *Recorder) Record(m codec.Measurement) error {
	if m == nil {
		return nil
	}
	overwrites, err := r.buffer.EnqueueM(Record{Time: r.now(), Kind: m.Kind().String(), Measurement: m})
	if err != nil {
		atomic.AddInt64(&r.metrics.Errors, 1)
		return fmt.Errorf("failed to record measurement: %w", err)
	}
	atomic.AddInt64(&r.metrics.Overwritten, int64(overwrites))
	atomic.AddInt64(&r.metrics.Recorded, 1)
	return nil
}

// Drain removes and returns the buffered records, oldest first.
func (r *Recorder) Drain() ([]Record, error) {
	var out []Record
	for !r.buffer.IsEmpty() {
		rec, err := r.buffer.Dequeue()
		if err != nil {
			atomic.AddInt64(&r.metrics.Errors, 1)
			return out, fmt.Errorf("buffer dequeue error: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Metrics returns a copy of the current counters.
func (r *Recorder) Metrics() RecorderMetrics {
	return RecorderMetrics{
		Recorded:    atomic.LoadInt64(&r.metrics.Recorded),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&r.metrics.Errors),
	}
}

// Tee returns a callback that records each measurement and then hands it to next.
// A nil recorder or next is skipped.
func Tee[T codec.Measurement](r *Recorder, next func(T)) func(T) {
	return func(m T) {
		if r != nil {
			_ = r.Record(m)
		}
		if next != nil {
			next(m)
		}
	}
}
