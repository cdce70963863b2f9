// Package bridge provides the public API for embedding the sync bridge.
// This is the stable surface for external consumers.
package bridge

import (
	"github.com/autoapply/syncbridge/internal/runtime"
)

// Bridge is the main entry point for running the sync bridge.
// See internal/runtime.Bridge for full documentation.
type Bridge = runtime.Bridge

// Option is a functional option for configuring a Bridge.
type Option = runtime.Option

// SessionWatch is one open session-detail channel.
type SessionWatch = runtime.SessionWatch

// New creates a new Bridge with the given options.
// Example:
//
//	b, err := bridge.New(
//	    bridge.WithConfigFile("config.yaml"),
//	    bridge.WithSQLiteSnapshots("./data/syncbridge.db"),
//	)
var New = runtime.New

var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile

	// Snapshot persistence
	WithSnapshotStore   = runtime.WithSnapshotStore
	WithSQLiteSnapshots = runtime.WithSQLiteSnapshots
	WithMemorySnapshots = runtime.WithMemorySnapshots

	// Advanced options
	WithLogger        = runtime.WithLogger
	WithBackendClient = runtime.WithBackendClient
)
