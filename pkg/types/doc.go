// Package types defines the trace entity, the TraceStore interface, store
// configuration, and the standard errors for the tracestore system.
package types
