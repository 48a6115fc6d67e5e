// Package api provides the HTTP status surface of keen-dns.
//
// The API is served by the keen-dns service process and exposes:
//   - Health of the proxy, the query store and the traffic redirection
//   - Recent persisted queries and tracker statistics
//   - Traffic redirection state and control
//   - A live stream of DNS check queries
//   - Prometheus metrics at /metrics
//
// # Response Format
//
// All successful responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "ERROR_CODE",
//	    "message": "Human-readable error message",
//	    "details": { /* optional context */ }
//	  }
//	}
package api
