package grapi

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grout-project/groutd/internal/grerrno"
)

// HandlerFunc processes one request's payload and returns the response
// payload and status, the Go analogue of `struct api_out (*callback)(...)`.
type HandlerFunc func(payload []byte) ([]byte, grerrno.Errno)

// Handler is one registered request type, mirroring `struct gr_api_handler`.
type Handler struct {
	Name        string
	RequestType uint32
	Callback    HandlerFunc
}

// Registry is the control plane's request-type-to-handler table, looked up
// once per dispatched request (a map keyed by request type; duplicate
// registration aborts).
type Registry struct {
	mu       sync.RWMutex
	handlers map[uint32]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint32]Handler)}
}

// Register installs h under h.RequestType, panicking on a duplicate
// request type — the same abort-on-duplicate contract as grmodule.Register
// and the original's gr_register_api_handler.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[h.RequestType]; dup {
		panic(fmt.Sprintf("grapi: handler for request type 0x%08x already registered (%q)", h.RequestType, h.Name))
	}
	r.handlers[h.RequestType] = h
}

// Lookup finds the handler for reqType. The bool result is false if no
// handler is registered (the caller should respond ENOTSUP, matching
// api_read_cb's handling of a nil lookup_api_handler result).
func (r *Registry) Lookup(reqType uint32) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[reqType]
	return h, ok
}

// Names returns every registered handler's name, sorted, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names
}
