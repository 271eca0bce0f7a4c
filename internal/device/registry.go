package device

import "sync"

// Registry maps a device id to its single live handle. Last connection
// wins: registering over an existing entry replaces it without closing
// the old handle, the superseded connection's own lifecycle tears it down.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Handle)}
}

// Register stores the handle for the device, replacing any prior one.
// Returns the replaced handle, if any, so the caller may close it.
func (r *Registry) Register(deviceID string, h Handle) (replaced Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced = r.conns[deviceID]
	r.conns[deviceID] = h

	return replaced
}

// Lookup returns the live handle for the device.
func (r *Registry) Lookup(deviceID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.conns[deviceID]

	return h, ok
}

// Unregister removes the entry only when it still holds exactly this
// handle. A stale disconnect racing a newer registration is a no-op.
func (r *Registry) Unregister(deviceID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[deviceID] == h {
		delete(r.conns, deviceID)
	}
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
