package querylog

import (
	"testing"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/miekg/dns"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCorrelator_FullLifecycle(t *testing.T) {
	c := NewCorrelator(true)

	c.RecordDeviceQuery(7, dns.TypeA, "example.com.", t0)
	if !c.RecordQueryForwarded(7, "server1") {
		t.Fatal("Expected forward to find the query")
	}
	answers := []models.Answer{{Name: "example.com.", Type: dns.TypeA, TTL: 60, Value: "93.184.216.34"}}
	if !c.RecordQueryResponse(7, models.SourceUpstream, answers, false, t0.Add(20*time.Millisecond)) {
		t.Fatal("Expected response to find the query")
	}

	snap := c.SnapshotAndClear()
	if len(snap.Live) != 0 {
		t.Errorf("Expected no live entries, got %d", len(snap.Live))
	}
	if len(snap.Done) != 1 {
		t.Fatalf("Expected 1 done record, got %d", len(snap.Done))
	}

	done := snap.Done[0]
	if done.AlreadyInserted {
		t.Error("Record was never flushed, expected AlreadyInserted=false")
	}
	r := done.Record
	if r.AskedServer != "server1" {
		t.Errorf("Expected askedServer server1, got %q", r.AskedServer)
	}
	if r.ResponseTime == nil || !r.ResponseTime.Equal(t0.Add(20*time.Millisecond)) {
		t.Errorf("Unexpected response time: %v", r.ResponseTime)
	}
	if len(r.Responses) != 1 || r.Responses[0].Value != "93.184.216.34" {
		t.Errorf("Unexpected responses: %+v", r.Responses)
	}

	if _, ok := c.state(7); ok {
		t.Error("Tracking state must be removed once the query is answered")
	}
}

func TestCorrelator_Misses(t *testing.T) {
	c := NewCorrelator(true)

	if c.RecordQueryForwarded(1, "server1") {
		t.Error("Forward without device query must be a miss")
	}
	if c.RecordQueryResponse(1, models.SourceUpstream, nil, false, t0) {
		t.Error("Response without device query must be a miss")
	}

	snap := c.SnapshotAndClear()
	if !snap.Empty() {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
}

func TestCorrelator_Disabled(t *testing.T) {
	c := NewCorrelator(false)

	if replaced := c.RecordDeviceQuery(1, dns.TypeA, "example.com.", t0); replaced {
		t.Error("Disabled correlator cannot replace anything")
	}
	if c.RecordQueryResponse(1, models.SourceUpstream, nil, false, t0) {
		t.Error("Disabled correlator must not track queries")
	}
	if !c.SnapshotAndClear().Empty() {
		t.Error("Expected empty snapshot")
	}
}

func TestCorrelator_CollisionLastWriterWins(t *testing.T) {
	c := NewCorrelator(true)

	if c.RecordDeviceQuery(42, dns.TypeA, "first.example.", t0) {
		t.Error("First query cannot replace anything")
	}
	if !c.RecordDeviceQuery(42, dns.TypeAAAA, "second.example.", t0.Add(time.Second)) {
		t.Error("Second query with the same id must report a replacement")
	}

	c.RecordQueryResponse(42, models.SourceUpstream, nil, false, t0.Add(2*time.Second))
	if c.RecordQueryResponse(42, models.SourceUpstream, nil, false, t0.Add(3*time.Second)) {
		t.Error("Only one query may complete for a reused id")
	}

	snap := c.SnapshotAndClear()
	if len(snap.Done) != 1 {
		t.Fatalf("Expected exactly 1 done record, got %d", len(snap.Done))
	}
	if got := snap.Done[0].Record.QuestionName; got != "second.example." {
		t.Errorf("Expected the later query to win, got %s", got)
	}
}

func TestCorrelator_SnapshotAndClearIsIdempotent(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(1, dns.TypeA, "a.example.", t0)
	c.RecordQueryResponse(1, models.SourceCache, nil, false, t0)

	if first := c.SnapshotAndClear(); len(first.Done) != 1 {
		t.Fatalf("Expected 1 done record, got %d", len(first.Done))
	}
	if second := c.SnapshotAndClear(); !second.Empty() {
		t.Errorf("Second snapshot must be empty, got %+v", second)
	}
}

func TestCorrelator_SnapshotKeepsLiveAndCopies(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(3, dns.TypeA, "live.example.", t0)

	snap := c.SnapshotAndClear()
	if len(snap.Live) != 1 {
		t.Fatalf("Expected 1 live entry, got %d", len(snap.Live))
	}
	if snap.Live[0].State != StateAwaiting {
		t.Errorf("Expected awaiting state, got %s", snap.Live[0].State)
	}

	// Mutating the snapshot copy must not leak into live state.
	snap.Live[0].Record.AskedServer = "tampered"
	c.RecordQueryResponse(3, models.SourceUpstream, nil, false, t0)
	done := c.SnapshotAndClear().Done
	if len(done) != 1 || done[0].Record.AskedServer != "" {
		t.Errorf("Snapshot must be a copy, got %+v", done)
	}
}

func TestCorrelator_ForwardAfterSyncMarksPendingUpdate(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(5, dns.TypeA, "a.example.", t0)

	snap := c.SnapshotAndClear()
	c.Acknowledge(snap.Live)
	if s, _ := c.state(5); s != StateSynced {
		t.Fatalf("Expected synced after acknowledge, got %s", s)
	}

	c.RecordQueryForwarded(5, "server1")
	if s, _ := c.state(5); s != StatePendingUpdate {
		t.Errorf("Expected pending update after forward, got %s", s)
	}
}

func TestCorrelator_ForwardBeforeInsertKeepsAwaiting(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(5, dns.TypeA, "a.example.", t0)
	c.RecordQueryForwarded(5, "server1")

	if s, _ := c.state(5); s != StateAwaiting {
		t.Errorf("Expected awaiting, got %s", s)
	}
}

func TestCorrelator_AcknowledgeAfterMutation(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(9, dns.TypeA, "a.example.", t0)

	snap := c.SnapshotAndClear()
	// Forward lands between snapshot and commit.
	c.RecordQueryForwarded(9, "server1")
	c.Acknowledge(snap.Live)

	if s, _ := c.state(9); s != StatePendingUpdate {
		t.Errorf("Expected pending update for a record changed after the snapshot, got %s", s)
	}
}

func TestCorrelator_AcknowledgeAfterResponse(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(9, dns.TypeA, "a.example.", t0)

	snap := c.SnapshotAndClear()
	// Response lands between snapshot and commit; the insert of the snapshot
	// copy is committed afterwards.
	c.RecordQueryResponse(9, models.SourceUpstream, nil, false, t0)
	c.Acknowledge(snap.Live)

	done := c.SnapshotAndClear().Done
	if len(done) != 1 {
		t.Fatalf("Expected 1 done record, got %d", len(done))
	}
	if !done[0].AlreadyInserted {
		t.Error("Record inserted by the acknowledged flush must be updated, not inserted again")
	}
}

func TestCorrelator_AcknowledgeIgnoresReplacedRecord(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(11, dns.TypeA, "old.example.", t0)
	snap := c.SnapshotAndClear()

	c.RecordDeviceQuery(11, dns.TypeA, "new.example.", t0.Add(time.Second))
	c.Acknowledge(snap.Live)

	if s, _ := c.state(11); s != StateAwaiting {
		t.Errorf("Replacement query must stay awaiting, got %s", s)
	}
}

func TestCorrelator_ResetAndStats(t *testing.T) {
	c := NewCorrelator(true)
	c.RecordDeviceQuery(1, dns.TypeA, "a.example.", t0)
	c.RecordDeviceQuery(2, dns.TypeA, "b.example.", t0)
	c.RecordQueryResponse(2, models.SourceUpstream, nil, false, t0)

	if s := c.Stats(); s.InFlight != 1 || s.Answered != 1 {
		t.Errorf("Unexpected stats: %+v", s)
	}

	c.Reset()
	if s := c.Stats(); s.InFlight != 0 || s.Answered != 0 {
		t.Errorf("Expected empty stats after reset, got %+v", s)
	}
}
