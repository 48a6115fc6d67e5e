// Package querylog tracks the lifecycle of DNS queries passing through the
// proxy and persists them to the query store.
//
// The DNS engine reports three events per query: the device asked a question,
// the question was forwarded upstream, the response arrived. Events are keyed
// by the 16-bit DNS transaction id, which the protocol reuses over time. The
// Correlator folds these events into QueryRecords under a single mutex, and the
// Persister periodically swaps out the accumulated state and writes it to the
// store in one transaction, outside the lock. Tracker combines the two and is
// the surface the engine calls.
//
// Event misses (a forward or response for an id with no in-flight query) are
// expected under id reuse and races and are ignored. A failed flush drops the
// batch for that tick; the process keeps running.
package querylog
