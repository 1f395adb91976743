package config

import "sync"

// BaseConfigManager guards one section of the config file
type BaseConfigManager[T any] struct {
	mu    sync.RWMutex
	conf  *T
	check func(c *T) error

	mgr *Manager
}

// Return the read-only configuration by value
func (a *BaseConfigManager[T]) C() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return *a.conf
}

type ConfigModifierFunc[T any] func(c *T)

// Set applies setFunc without verifying the result
func (a *BaseConfigManager[T]) Set(setFunc ConfigModifierFunc[T]) {
	a.mu.Lock()
	defer a.mu.Unlock()

	setFunc(a.conf)
}

// Update applies setFunc to a copy of the section and keeps it only if it verifies
func (a *BaseConfigManager[T]) Update(setFunc ConfigModifierFunc[T]) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := *a.conf
	setFunc(&next)

	if err := a.check(&next); err != nil {
		return err
	}

	*a.conf = next
	return nil
}

// Verify checks the section as it is now
func (a *BaseConfigManager[T]) Verify() error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.check(a.conf)
}

// Save writes the whole config file, the manager takes our lock
func (a *BaseConfigManager[T]) Save() error {
	return a.mgr.Save()
}

func (a *BaseConfigManager[T]) lock() {
	a.mu.Lock()
}

func (a *BaseConfigManager[T]) unlock() {
	a.mu.Unlock()
}
