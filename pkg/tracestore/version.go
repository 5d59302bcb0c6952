// Package tracestore holds build-wide identifiers for the tracestore module.
package tracestore

// Version is the tracestore release version.
const Version = "0.1.0"

// ModulePath is the Go module path.
const ModulePath = "github.com/mesh-intelligence/tracestore"
