package querylog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/metrics"
	"github.com/maksimkurb/keen-dns/src/internal/models"
)

// DefaultFlushInterval is how often pending query records are written.
const DefaultFlushInterval = 1500 * time.Millisecond

type writeOp uint8

const (
	opInsert writeOp = iota
	opUpdate
)

type plannedWrite struct {
	op     writeOp
	record *models.QueryRecord
	// live is set for records that are still in flight.
	live *LiveEntry
}

// FlushResult counts the writes of one committed flush.
type FlushResult struct {
	Inserted int
	Updated  int
}

// Persister periodically drains the correlator into the store.
type Persister struct {
	correlator *Correlator
	store      Store
	interval   time.Duration
	metrics    *metrics.Metrics
	logger     log.Logger

	// flushMu serializes flushes so the final flush on Stop never overlaps a
	// tick.
	flushMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewPersister creates a persister writing to store every interval.
func NewPersister(correlator *Correlator, store Store, interval time.Duration, m *metrics.Metrics) *Persister {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Persister{
		correlator: correlator,
		store:      store,
		interval:   interval,
		metrics:    m,
		logger:     log.Tag("querylog"),
	}
}

// Start launches the periodic flush loop. It is a no-op if already running.
func (p *Persister) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.stopped = make(chan struct{})
	go p.loop(ctx, p.stopped)
}

func (p *Persister) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are logged by Flush; the next tick carries on.
			_, _ = p.Flush()
		}
	}
}

// Stop cancels the flush loop, waits for an in-flight flush and performs one
// last synchronous flush.
func (p *Persister) Stop() error {
	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.cancel, p.stopped = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}

	_, err := p.Flush()
	return err
}

// Flush writes everything accumulated since the previous flush in a single
// transaction. On failure the answered records of this batch are lost and
// in-flight records stay unsynced, so they are inserted by a later flush.
func (p *Persister) Flush() (FlushResult, error) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	snap := p.correlator.SnapshotAndClear()
	if snap.Empty() {
		return FlushResult{}, nil
	}

	writes := planWrites(snap)
	if len(writes) == 0 {
		return FlushResult{}, nil
	}

	start := time.Now()
	var result FlushResult
	err := p.store.RunInTransaction(func(tx StoreTx) error {
		result = FlushResult{}
		for _, w := range writes {
			switch w.op {
			case opInsert:
				if err := tx.Insert(w.record); err != nil {
					return fmt.Errorf("insert %s (%s): %w", w.record.ID, w.record.QuestionName, err)
				}
				result.Inserted++
			case opUpdate:
				if err := tx.Update(w.record); err != nil {
					return fmt.Errorf("update %s (%s): %w", w.record.ID, w.record.QuestionName, err)
				}
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		p.metrics.FlushFailed()
		p.logger.Warnf("Failed to write %d query records, dropping batch: %v", len(writes), err)
		return FlushResult{}, err
	}

	var acked []LiveEntry
	for _, w := range writes {
		if w.live != nil {
			acked = append(acked, *w.live)
		}
	}
	p.correlator.Acknowledge(acked)

	p.metrics.Flushed(result.Inserted, result.Updated, time.Since(start).Seconds())
	p.logger.Debugf("Flushed query log: %d inserted, %d updated", result.Inserted, result.Updated)
	return result, nil
}

// planWrites merges in-flight and answered records into chronological writes.
// An answered record supersedes a live copy of the same record, and synced
// live records need no write.
func planWrites(snap Snapshot) []plannedWrite {
	doneIDs := make(map[models.RecordID]struct{}, len(snap.Done))
	for _, d := range snap.Done {
		doneIDs[d.Record.ID] = struct{}{}
	}

	writes := make([]plannedWrite, 0, len(snap.Live)+len(snap.Done))
	for i := range snap.Live {
		e := &snap.Live[i]
		if _, ok := doneIDs[e.Record.ID]; ok {
			continue
		}
		switch e.State {
		case StateAwaiting:
			writes = append(writes, plannedWrite{op: opInsert, record: e.Record, live: e})
		case StatePendingUpdate:
			writes = append(writes, plannedWrite{op: opUpdate, record: e.Record, live: e})
		}
	}
	for _, d := range snap.Done {
		op := opInsert
		if d.AlreadyInserted {
			op = opUpdate
		}
		writes = append(writes, plannedWrite{op: op, record: d.Record})
	}

	sort.SliceStable(writes, func(i, j int) bool {
		return writes[i].record.QuestionTime.Before(writes[j].record.QuestionTime)
	})
	return writes
}
