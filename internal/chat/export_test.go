package chat

// Consistent reports whether names and peers describe the same set of peers.
func (r *Registry) Consistent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.names) != len(r.peers) {
		return false
	}
	for name, addr := range r.names {
		e, ok := r.peers[addr]
		if !ok || e.name != name {
			return false
		}
	}
	return true
}
