// Package extension gives shieldd's subsystems (the sweeper, the alert
// consumer, the replica directory, the HTTP listener itself) a common
// startup/shutdown lifecycle, so main can bring them up in dependency
// order and tear them down in reverse without each one knowing about
// the others.
package extension

import "fmt"

// Extension is one independently startable/stoppable piece of shieldd.
type Extension interface {
	// Name identifies the extension for registration, logging, and
	// load-order lookups. Must be unique within a Manager.
	Name() string

	// Load starts the extension: opens connections, spawns background
	// goroutines, registers HTTP routes. An error here aborts LoadAll
	// and rolls back whatever already started.
	Load() error

	// Shutdown stops the extension and releases its resources. The
	// manager shuts down every loaded extension even if one of them
	// errors.
	Shutdown() error
}

// ErrExtensionAlreadyRegistered is returned by Register when an
// extension with the same name is already registered.
var ErrExtensionAlreadyRegistered = fmt.Errorf("extension name is already registered")
