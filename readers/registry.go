package readers

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	bitskema "github.com/reoring/bitskema"
)

// Registry maps reader names, as used by schema documents, to
// implementations. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[string]bitskema.Reader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: map[string]bitskema.Reader{}}
}

// Builtin returns a registry preloaded with the built-in readers.
func Builtin() *Registry {
	r := NewRegistry()
	r.m["bytes"] = Bytes
	r.m["cstring"] = CString
	r.m["pstring"] = PString
	r.m["uuid"] = UUID
	r.m["unix_time"] = UnixTime
	return r
}

// Register adds fn under name. Names are unique.
func (r *Registry) Register(name string, fn bitskema.Reader) error {
	if name == "" || fn == nil {
		return fmt.Errorf("readers: invalid registration %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.m[name]; dup {
		return fmt.Errorf("readers: %q already registered", name)
	}
	r.m[name] = fn
	return nil
}

// Lookup returns the reader registered under name.
func (r *Registry) Lookup(name string) (bitskema.Reader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.m[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for n := range r.m {
		out = append(out, n)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}
