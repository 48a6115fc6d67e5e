// Package log provides simple leveled logging for keen-dns.
//
// This package implements a lightweight logging system with colored console
// output and the levels DEBUG, INFO, WARN and ERROR. It exposes global logging
// functions that can be used throughout the application, plus tagged loggers
// that prefix every line with the emitting component.
//
// # Example Usage
//
//	log.Infof("Starting DNS proxy on %s", addr)
//	log.SetVerbose(true)
//	log.Debugf("[%04x] forwarded to %s", id, upstream)
//
//	qlog := log.Tag("querylog")
//	qlog.Warnf("Flush failed, dropping %d records: %v", n, err)
//
// # Log file
//
// SetLogFile mirrors every line, without color codes, into a size-rotated file
// managed by lumberjack. Console output is kept.
//
// All functions are safe for concurrent use.
package log
