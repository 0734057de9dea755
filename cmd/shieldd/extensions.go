package main

import "github.com/atlas/shield/extension"

// funcExtension adapts a pair of closures to extension.Extension so
// each piece of process lifecycle (alert consumer, sweeper, replica
// registration, HTTP server) can be registered with the same
// load-in-order/shutdown-in-reverse manager instead of hand-rolled
// startup code.
type funcExtension struct {
	name     string
	load     func() error
	shutdown func() error
}

func (f *funcExtension) Name() string { return f.name }

func (f *funcExtension) Load() error {
	if f.load == nil {
		return nil
	}
	return f.load()
}

func (f *funcExtension) Shutdown() error {
	if f.shutdown == nil {
		return nil
	}
	return f.shutdown()
}

var _ extension.Extension = (*funcExtension)(nil)
