// Package models holds the data types shared between the query tracker,
// the query store and the HTTP API.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"
)

// TransactionID is the 16-bit DNS message id. The protocol reuses ids over
// time, so it only identifies a query while that query is in flight. When two
// in-flight queries share an id, the most recent one wins.
type TransactionID uint16

// String returns the id in the same [%04x] form the proxy logs use.
func (id TransactionID) String() string {
	return fmt.Sprintf("%04x", uint16(id))
}

// ResponseSource tells where the answer delivered to the device came from.
type ResponseSource uint8

const (
	SourceUpstream ResponseSource = iota
	SourceCache
	SourceCacheAndUpstream
	SourceLocalResolver
	SourceBlockList
)

var responseSourceNames = map[ResponseSource]string{
	SourceUpstream:         "upstream",
	SourceCache:            "cache",
	SourceCacheAndUpstream: "cache_and_upstream",
	SourceLocalResolver:    "local_resolver",
	SourceBlockList:        "block_list",
}

func (s ResponseSource) String() string {
	if name, ok := responseSourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

// MarshalText encodes the source by name so stored and served records stay
// readable when new sources are added.
func (s ResponseSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *ResponseSource) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for source, sourceName := range responseSourceNames {
		if sourceName == name {
			*s = source
			return nil
		}
	}
	return fmt.Errorf("unknown response source: %q", name)
}

// Answer is one decoded answer record of a response.
type Answer struct {
	Name  string `json:"name" cbor:"1,keyasint"`
	Type  uint16 `json:"type" cbor:"2,keyasint"`
	TTL   uint32 `json:"ttl" cbor:"3,keyasint"`
	Value string `json:"value" cbor:"4,keyasint"`
}

// AnswerFromRR decodes a resource record into an Answer. Value holds the
// presentation form of the record data (the address for A/AAAA, the target for
// CNAME and so on).
func AnswerFromRR(rr dns.RR) Answer {
	hdr := rr.Header()
	value := strings.TrimPrefix(rr.String(), hdr.String())
	return Answer{
		Name:  hdr.Name,
		Type:  hdr.Rrtype,
		TTL:   hdr.Ttl,
		Value: strings.TrimSpace(value),
	}
}

// TypeName returns the mnemonic of the answer type, e.g. "AAAA".
func (a Answer) TypeName() string {
	return TypeName(a.Type)
}

// TypeName returns the mnemonic of a DNS record type or TYPEnnn when unknown.
func TypeName(t uint16) string {
	if name, ok := dns.TypeToString[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", t)
}

// RecordID is the opaque storage identity of a query record. It is a UUIDv7, so
// byte order follows creation time.
type RecordID = uuid.UUID

// NewRecordID returns a fresh, time-ordered record id.
func NewRecordID() RecordID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// QueryRecord is one logical DNS query as seen by the device, from question to
// answer.
type QueryRecord struct {
	ID                RecordID       `json:"id" cbor:"1,keyasint"`
	TransactionID     TransactionID  `json:"transaction_id" cbor:"2,keyasint"`
	QuestionType      uint16         `json:"question_type" cbor:"3,keyasint"`
	QuestionName      string         `json:"question_name" cbor:"4,keyasint"`
	AskedServer       string         `json:"asked_server,omitempty" cbor:"5,keyasint,omitempty"`
	QuestionTime      time.Time      `json:"question_time" cbor:"6,keyasint"`
	ResponseTime      *time.Time     `json:"response_time,omitempty" cbor:"7,keyasint,omitempty"`
	Responses         []Answer       `json:"responses" cbor:"8,keyasint"`
	ResponseSource    ResponseSource `json:"response_source" cbor:"9,keyasint"`
	BlockedByUpstream bool           `json:"blocked_by_upstream" cbor:"10,keyasint"`
}

// Done reports whether the response for this query has been recorded.
func (r *QueryRecord) Done() bool {
	return r.ResponseTime != nil
}

// Latency returns the time between question and response, or zero when the
// query has not been answered yet.
func (r *QueryRecord) Latency() time.Duration {
	if r.ResponseTime == nil {
		return 0
	}
	return r.ResponseTime.Sub(r.QuestionTime)
}

// Clone returns a copy that shares no mutable state with r.
func (r *QueryRecord) Clone() *QueryRecord {
	c := *r
	if r.ResponseTime != nil {
		t := *r.ResponseTime
		c.ResponseTime = &t
	}
	if r.Responses != nil {
		c.Responses = make([]Answer, len(r.Responses))
		copy(c.Responses, r.Responses)
	}
	return &c
}
