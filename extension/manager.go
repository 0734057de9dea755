package extension

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ExtensionManager registers shieldd's extensions and drives their
// lifecycle: LoadAll in registration order, ShutdownAll in the reverse
// order, rolling back a partial startup if any Load fails.
type ExtensionManager struct {
	mu         sync.RWMutex
	extensions map[string]Extension
	loadOrder  []string
	loaded     map[string]bool
}

// New creates an empty ExtensionManager.
func New() *ExtensionManager {
	return &ExtensionManager{
		extensions: make(map[string]Extension),
		loadOrder:  make([]string, 0),
		loaded:     make(map[string]bool),
	}
}

// Register adds ext to the manager, appending it to the end of the
// load order. Returns ErrExtensionAlreadyRegistered if ext.Name() is
// already registered.
func (m *ExtensionManager) Register(ext Extension) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ext.Name()
	if _, exists := m.extensions[name]; exists {
		log.Error().Str("extension", name).Msg("attempted to register duplicate extension")
		return fmt.Errorf("%w: %s", ErrExtensionAlreadyRegistered, name)
	}

	m.extensions[name] = ext
	m.loadOrder = append(m.loadOrder, name)
	log.Info().Str("extension", name).Msg("extension registered")
	return nil
}

// LoadAll loads every registered extension in registration order. If
// one fails, every extension loaded before it is shut down in reverse
// order before the original error is returned.
func (m *ExtensionManager) LoadAll() error {
	m.mu.RLock()
	order := append([]string(nil), m.loadOrder...)
	m.mu.RUnlock()

	successfullyLoaded := make([]string, 0, len(order))

	for _, name := range order {
		m.mu.RLock()
		ext, exists := m.extensions[name]
		m.mu.RUnlock()

		if !exists {
			log.Warn().Str("extension", name).Msg("extension found in load order but not registered during loadAll")
			continue
		}

		log.Debug().Str("extension", name).Msg("loading extension...")
		start := time.Now()
		if err := ext.Load(); err != nil {
			log.Error().Str("extension", name).Dur("duration", time.Since(start)).Err(err).Msg("failed to load extension")
			m.shutdownSpecific(successfullyLoaded)
			return fmt.Errorf("failed to load extension %s: %w", name, err)
		}

		m.mu.Lock()
		m.loaded[name] = true
		m.mu.Unlock()
		successfullyLoaded = append(successfullyLoaded, name)

		log.Info().Str("extension", name).Dur("duration", time.Since(start)).Msg("extension loaded successfully")
	}

	return nil
}

// ShutdownAll shuts down every successfully loaded extension in
// reverse load order, collecting and returning every error via
// errors.Join rather than stopping at the first one.
func (m *ExtensionManager) ShutdownAll() error {
	m.mu.RLock()
	order := append([]string(nil), m.loadOrder...)
	m.mu.RUnlock()

	var allErrors []error

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]

		m.mu.RLock()
		ext, extExists := m.extensions[name]
		isLoaded := m.loaded[name]
		m.mu.RUnlock()

		if !extExists {
			continue
		}
		if !isLoaded {
			continue
		}

		log.Debug().Str("extension", name).Msg("shutting down extension...")
		start := time.Now()
		if err := ext.Shutdown(); err != nil {
			log.Error().Str("extension", name).Dur("duration", time.Since(start)).Err(err).Msg("failed to shut down extension")
			allErrors = append(allErrors, fmt.Errorf("failed to shutdown extension %s: %w", name, err))
		} else {
			log.Info().Str("extension", name).Dur("duration", time.Since(start)).Msg("extension shut down successfully")
		}

		m.mu.Lock()
		delete(m.loaded, name)
		m.mu.Unlock()
	}

	if len(allErrors) > 0 {
		log.Warn().Int("error_count", len(allErrors)).Msg("shutdown completed with errors")
		return errors.Join(allErrors...)
	}
	return nil
}

// shutdownSpecific rolls back the extensions named in names (the ones
// that loaded before a LoadAll failure), in reverse order.
func (m *ExtensionManager) shutdownSpecific(names []string) {
	var allErrors []error
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]

		m.mu.RLock()
		ext, exists := m.extensions[name]
		isLoaded := m.loaded[name]
		m.mu.RUnlock()

		if !exists || !isLoaded {
			continue
		}

		log.Warn().Str("extension", name).Msg("executing rollback shutdown...")
		start := time.Now()
		if err := ext.Shutdown(); err != nil {
			log.Error().Str("extension", name).Dur("duration", time.Since(start)).Err(err).Msg("rollback shutdown failed")
			allErrors = append(allErrors, fmt.Errorf("rollback shutdown failed for %s: %w", name, err))
		} else {
			log.Warn().Str("extension", name).Dur("duration", time.Since(start)).Msg("rollback shutdown successful")
		}

		m.mu.Lock()
		delete(m.loaded, name)
		m.mu.Unlock()
	}
	if len(allErrors) > 0 {
		log.Error().Errs("rollback_errors", allErrors).Msg("errors occurred during load failure rollback")
	}
}
