// Package storage persists query records in a bolt database.
//
// Records live in a single bucket keyed by their time-ordered record ID, so a
// cursor walk yields them in the order the questions were asked. Values are
// CBOR encoded.
package storage
