package querylog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/metrics"
	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/miekg/dns"
)

// Options configures a Tracker.
type Options struct {
	// Persist enables tracking and writing queries to Store.
	Persist bool
	// LogToConsole writes every event to the debug log.
	LogToConsole bool
	// FlushInterval defaults to DefaultFlushInterval.
	FlushInterval time.Duration
	Store         Store
	Metrics       *metrics.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Tracker is the query lifecycle tracker called by the DNS engine. The On*
// methods may be called concurrently from any goroutine and never block on I/O.
type Tracker struct {
	correlator   *Correlator
	persister    *Persister
	metrics      *metrics.Metrics
	logToConsole bool
	clock        func() time.Time
	logger       log.Logger

	lastResponse atomic.Pointer[dns.Msg]
	closed       atomic.Bool
	cleanupOnce  sync.Once
}

// NewTracker creates a tracker and, when persistence is enabled, starts the
// periodic flush.
func NewTracker(opts Options) (*Tracker, error) {
	if opts.Persist && opts.Store == nil {
		return nil, errors.New("query persistence is enabled but no store is configured")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	t := &Tracker{
		correlator:   NewCorrelator(opts.Persist),
		metrics:      opts.Metrics,
		logToConsole: opts.LogToConsole,
		clock:        opts.Clock,
		logger:       log.Tag("querylog"),
	}

	if opts.Persist {
		t.persister = NewPersister(t.correlator, opts.Store, opts.FlushInterval, opts.Metrics)
		t.persister.Start(context.Background())
	}

	return t, nil
}

// OnDeviceQuery registers a question received from the device.
func (t *Tracker) OnDeviceQuery(msg *dns.Msg) {
	if t.logToConsole {
		t.logger.Debugf("Query from device: %s", questionString(msg))
	}
	if len(msg.Question) == 0 {
		return
	}

	q := msg.Question[0]
	id := models.TransactionID(msg.Id)
	if !t.correlator.Enabled() || t.closed.Load() {
		return
	}
	replaced := t.correlator.RecordDeviceQuery(id, q.Qtype, q.Name, t.clock())
	if replaced {
		t.logger.Debugf("[%s] In-flight query replaced by %s", id, q.Name)
	}
	t.metrics.TrackedQuery(replaced)
}

// OnQueryForwarded records the upstream the question was sent to.
func (t *Tracker) OnQueryForwarded(msg *dns.Msg, upstream string) {
	id := models.TransactionID(msg.Id)
	if t.logToConsole {
		t.logger.Debugf("[%s] Query forwarded to %s", id, upstream)
	}
	if !t.correlator.RecordQueryForwarded(id, upstream) {
		t.metrics.CorrelationMiss("forward")
	}
}

// OnQueryResponse completes the query answered by msg.
func (t *Tracker) OnQueryResponse(msg *dns.Msg, source models.ResponseSource) {
	id := models.TransactionID(msg.Id)
	if t.logToConsole {
		t.logger.Debugf("[%s] Returned from %s: %d answers, rcode %s", id, source, len(msg.Answer), dns.RcodeToString[msg.Rcode])
	}
	t.lastResponse.Store(msg.Copy())

	if !t.correlator.Enabled() {
		return
	}

	answers := make([]models.Answer, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		if rr == nil {
			continue
		}
		answers = append(answers, models.AnswerFromRR(rr))
	}
	blocked := IsBlockedAnswer(msg.Answer)

	if !t.correlator.RecordQueryResponse(id, source, answers, blocked, t.clock()) {
		t.metrics.CorrelationMiss("response")
	}
}

// LastResponse returns a copy of the most recent response, or nil.
func (t *Tracker) LastResponse() *dns.Msg {
	if msg := t.lastResponse.Load(); msg != nil {
		return msg.Copy()
	}
	return nil
}

// Flush writes pending records now. It is a no-op when persistence is off.
func (t *Tracker) Flush() (FlushResult, error) {
	if t.persister == nil {
		return FlushResult{}, nil
	}
	return t.persister.Flush()
}

// Stats returns the number of in-flight and unflushed answered queries.
func (t *Tracker) Stats() Stats {
	return t.correlator.Stats()
}

// Cleanup stops the periodic flush, writes what is pending and discards all
// in-memory state. Device queries reported afterwards are not tracked.
func (t *Tracker) Cleanup() {
	t.cleanupOnce.Do(func() {
		t.closed.Store(true)
		if t.persister != nil {
			if err := t.persister.Stop(); err != nil {
				t.logger.Warnf("Final query log flush failed: %v", err)
			}
		}
		t.correlator.Reset()
	})
}

func questionString(msg *dns.Msg) string {
	if len(msg.Question) == 0 {
		return "[" + models.TransactionID(msg.Id).String() + "] <no question>"
	}
	q := msg.Question[0]
	return "[" + models.TransactionID(msg.Id).String() + "] " + q.Name + " " + models.TypeName(q.Qtype)
}
