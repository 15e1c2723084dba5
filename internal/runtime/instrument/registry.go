// Package instrument installs the instrumentation hooks named by a client's
// hook libraries. Each hook feeds breadcrumbs to the client it was installed
// for.
package instrument

import (
	"fmt"
	"slices"
	"sync"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
	errspkg "github.com/drblury/faultline/internal/runtime/errors"
)

// Installer attaches a hook so it reports to rec. The returned function
// detaches it again and may be nil.
type Installer func(rec breadcrumbs.Recorder) (uninstall func(), err error)

// Registry maps hook library names to their installers.
type Registry struct {
	mu         sync.RWMutex
	installers map[string]Installer
}

// DefaultRegistry holds the built-in hooks.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{installers: make(map[string]Installer)}
}

// Register adds or replaces the installer for name.
func (r *Registry) Register(name string, installer Installer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installers[name] = installer
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.installers[name]
	return ok
}

// Names returns the registered hook names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Install runs the installer of every named hook once, in the order given.
// Duplicate names are installed once. Every name is checked before anything
// is installed, so an unknown name leaves no hook behind. If an installer
// fails, the hooks installed so far are removed again.
func (r *Registry) Install(names []string, rec breadcrumbs.Recorder) (func(), error) {
	unique := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(unique, name) {
			unique = append(unique, name)
		}
	}

	r.mu.RLock()
	selected := make([]Installer, 0, len(unique))
	for _, name := range unique {
		installer, ok := r.installers[name]
		if !ok {
			r.mu.RUnlock()
			return nil, errspkg.NewConfigurationError("hook_libraries", fmt.Errorf("%w: %q (registered: %v)", errspkg.ErrUnknownHook, name, r.namesLocked()))
		}
		selected = append(selected, installer)
	}
	r.mu.RUnlock()

	var undo []func()
	uninstallAll := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	for i, installer := range selected {
		uninstall, err := installer(rec)
		if err != nil {
			uninstallAll()
			return nil, fmt.Errorf("install hook %q: %w", unique[i], err)
		}
		if uninstall != nil {
			undo = append(undo, uninstall)
		}
	}
	return uninstallAll, nil
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.installers))
	for name := range r.installers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Register adds an installer to the default registry.
func Register(name string, installer Installer) {
	DefaultRegistry.Register(name, installer)
}

// Install installs hooks from the default registry.
func Install(names []string, rec breadcrumbs.Recorder) (func(), error) {
	return DefaultRegistry.Install(names, rec)
}
