package pdfrenderer

import "sync"

// libraryLifecycle tracks whether a process-wide rendering library is loaded.
// open and shutdown run with the lock held.
type libraryLifecycle struct {
	name        string
	mu          sync.Mutex
	initialized bool
	open        func() error
	shutdown    func() error
}

// Init loads the library. A second Init without Close is refused.
func (l *libraryLifecycle) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		Logger.Info(l.name + " library already initialized")
		return ErrAlreadyInitialized
	}
	if err := l.open(); err != nil {
		return err
	}
	l.initialized = true
	Logger.Debug(l.name + " library initialized")
	return nil
}

// Close unloads the library. Closing an unloaded library is refused.
func (l *libraryLifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		Logger.Info(l.name + " library already closed")
		return ErrNotInitialized
	}
	l.initialized = false
	if err := l.shutdown(); err != nil {
		Logger.Warn("Error while shutting down library", "library", l.name, "error", err)
		return err
	}
	Logger.Debug(l.name + " library closed")
	return nil
}

// Initialized reports the current state
func (l *libraryLifecycle) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initialized
}

// Do runs fn while holding the library, failing if it is not loaded
func (l *libraryLifecycle) Do(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return ErrNotInitialized
	}
	return fn()
}
