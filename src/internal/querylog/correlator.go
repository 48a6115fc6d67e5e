package querylog

import (
	"sync"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/models"
)

// TrackingState records whether the store has seen the latest version of an
// in-flight query.
type TrackingState uint8

const (
	// StateAwaiting: the record has not been inserted yet.
	StateAwaiting TrackingState = iota
	// StateSynced: the record is inserted and has no pending change.
	StateSynced
	// StatePendingUpdate: the record is inserted and was mutated since.
	StatePendingUpdate
)

func (s TrackingState) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateSynced:
		return "synced"
	case StatePendingUpdate:
		return "pending_update"
	default:
		return "unknown"
	}
}

// LiveEntry is a snapshot copy of an in-flight query.
type LiveEntry struct {
	TransactionID models.TransactionID
	Record        *models.QueryRecord
	State         TrackingState

	revision uint64
}

// DoneRecord is an answered query waiting to be flushed. AlreadyInserted means
// the flush must update the stored row instead of inserting one.
type DoneRecord struct {
	Record          *models.QueryRecord
	AlreadyInserted bool
}

// Snapshot is the state handed from the Correlator to the Persister.
type Snapshot struct {
	Live []LiveEntry
	Done []DoneRecord
}

// Empty reports whether there is nothing to flush.
func (s Snapshot) Empty() bool {
	return len(s.Live) == 0 && len(s.Done) == 0
}

type liveQuery struct {
	record *models.QueryRecord
	// revision is bumped on every mutation so a flush can tell whether the
	// record changed after it was snapshotted.
	revision uint64
}

// Correlator owns the in-flight and answered queries. All methods are safe for
// concurrent use and never block on I/O.
type Correlator struct {
	enabled bool

	mu     sync.Mutex
	live   map[models.TransactionID]*liveQuery
	states map[models.TransactionID]TrackingState
	done   []DoneRecord
}

// NewCorrelator creates a correlator. When enabled is false, device queries
// are not tracked, which turns every other event into a miss.
func NewCorrelator(enabled bool) *Correlator {
	return &Correlator{
		enabled: enabled,
		live:    make(map[models.TransactionID]*liveQuery),
		states:  make(map[models.TransactionID]TrackingState),
	}
}

// Enabled reports whether device queries are tracked.
func (c *Correlator) Enabled() bool {
	return c.enabled
}

// RecordDeviceQuery starts tracking a query. An in-flight query with the same
// id is overwritten; replaced reports whether that happened.
func (c *Correlator) RecordDeviceQuery(id models.TransactionID, qtype uint16, qname string, at time.Time) (replaced bool) {
	if !c.enabled {
		return false
	}

	record := &models.QueryRecord{
		ID:             models.NewRecordID(),
		TransactionID:  id,
		QuestionType:   qtype,
		QuestionName:   qname,
		QuestionTime:   at,
		Responses:      []models.Answer{},
		ResponseSource: models.SourceUpstream,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, replaced = c.live[id]
	c.live[id] = &liveQuery{record: record}
	c.states[id] = StateAwaiting
	return replaced
}

// RecordQueryForwarded stores the upstream that was asked. It returns false
// when no query with this id is in flight.
func (c *Correlator) RecordQueryForwarded(id models.TransactionID, server string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.live[id]
	if !ok {
		return false
	}

	q.record.AskedServer = server
	q.revision++
	if c.states[id] != StateAwaiting {
		c.states[id] = StatePendingUpdate
	}
	return true
}

// RecordQueryResponse completes the in-flight query with this id and queues it
// for the next flush. It returns false when no query with this id is in flight.
func (c *Correlator) RecordQueryResponse(id models.TransactionID, source models.ResponseSource, answers []models.Answer, blocked bool, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.live[id]
	if !ok {
		return false
	}
	delete(c.live, id)

	state, ok := c.states[id]
	if !ok {
		state = StateAwaiting
	}
	delete(c.states, id)

	if answers == nil {
		answers = []models.Answer{}
	}
	record := q.record
	responseTime := at
	record.ResponseTime = &responseTime
	record.Responses = answers
	record.ResponseSource = source
	record.BlockedByUpstream = blocked

	c.done = append(c.done, DoneRecord{
		Record:          record,
		AlreadyInserted: state != StateAwaiting,
	})
	return true
}

// SnapshotAndClear copies every in-flight query with its state and takes the
// answered ones. In-flight queries stay tracked.
func (c *Correlator) SnapshotAndClear() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var snap Snapshot
	if len(c.live) > 0 {
		snap.Live = make([]LiveEntry, 0, len(c.live))
		for id, q := range c.live {
			snap.Live = append(snap.Live, LiveEntry{
				TransactionID: id,
				Record:        q.record.Clone(),
				State:         c.states[id],
				revision:      q.revision,
			})
		}
	}
	snap.Done = c.done
	c.done = nil
	return snap
}

// Acknowledge is called after entries were committed to the store. Entries
// still in flight become synced, or pending update if they changed after the
// snapshot. Entries answered in the meantime are queued as inserted so the
// next flush updates them instead of inserting twice.
func (c *Correlator) Acknowledge(entries []LiveEntry) {
	if len(entries) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var answered map[models.RecordID]struct{}
	for _, e := range entries {
		q, ok := c.live[e.TransactionID]
		if !ok || q.record.ID != e.Record.ID {
			if answered == nil {
				answered = make(map[models.RecordID]struct{})
			}
			answered[e.Record.ID] = struct{}{}
			continue
		}
		if q.revision == e.revision {
			c.states[e.TransactionID] = StateSynced
		} else {
			c.states[e.TransactionID] = StatePendingUpdate
		}
	}

	if len(answered) == 0 {
		return
	}
	for i := range c.done {
		if _, ok := answered[c.done[i].Record.ID]; ok {
			c.done[i].AlreadyInserted = true
		}
	}
}

// Reset discards all tracked state.
func (c *Correlator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.live = make(map[models.TransactionID]*liveQuery)
	c.states = make(map[models.TransactionID]TrackingState)
	c.done = nil
}

// Stats is a point-in-time count of tracked queries.
type Stats struct {
	InFlight int `json:"in_flight"`
	Answered int `json:"answered"`
}

func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{InFlight: len(c.live), Answered: len(c.done)}
}

// state returns the tracking state of id, for tests.
func (c *Correlator) state(id models.TransactionID) (TrackingState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[id]
	return s, ok
}
