// Package chat holds the relay's peer registry: who is connected and how to
// reach them. It is shared by every session.
package chat

import (
	"errors"
	"net/netip"
	"sort"
	"sync"

	"github.com/omochice/relay-chat/internal/queue"
	"github.com/omochice/relay-chat/internal/transport"
	"github.com/omochice/relay-chat/pkg/protocol"
)

var (
	// ErrUserNotFound is returned when a message names an unregistered receiver.
	ErrUserNotFound = errors.New("user not found")
	// ErrChannelClosed is returned when the receiver's session already tore down its inbox.
	ErrChannelClosed = errors.New("channel closed")
	// ErrNameTaken is returned by Add for a name another peer holds.
	ErrNameTaken = errors.New("name already taken")
	// ErrInvalidName is returned by Add for an empty or reserved name.
	ErrInvalidName = errors.New("invalid name")
	// ErrAddressInUse is returned by Add for an address already registered.
	ErrAddressInUse = errors.New("address already registered")
)

// Peer is one registered connection. The registry keeps the sending side of
// Inbox; the owning session drains it.
type Peer struct {
	Name     string
	Addr     netip.AddrPort
	Stream   transport.Stream
	Datagram transport.Datagram
	Inbox    *queue.Queue[protocol.Response]
}

type entry struct {
	name  string
	inbox *queue.Queue[protocol.Response]
}

// Registry maps addresses to delivery queues and names to addresses. Every
// method holds the lock for its whole duration and never performs network I/O.
type Registry struct {
	mu    sync.Mutex
	peers map[netip.AddrPort]entry
	names map[string]netip.AddrPort
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[netip.AddrPort]entry),
		names: make(map[string]netip.AddrPort),
	}
}

// ValidName reports whether name may be registered.
func ValidName(name string) bool {
	return name != "" && name != protocol.BroadcastName && name != protocol.ServerName
}

// Add registers name at addr and returns the peer bundle with a fresh inbox.
// Both mappings are inserted together or not at all.
func (r *Registry) Add(name string, addr netip.AddrPort, stream transport.Stream, dgram transport.Datagram) (*Peer, error) {
	if !ValidName(name) {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return nil, ErrNameTaken
	}
	if _, ok := r.peers[addr]; ok {
		return nil, ErrAddressInUse
	}

	inbox := queue.New[protocol.Response]()
	r.peers[addr] = entry{name: name, inbox: inbox}
	r.names[name] = addr

	return &Peer{
		Name:     name,
		Addr:     addr,
		Stream:   stream,
		Datagram: dgram,
		Inbox:    inbox,
	}, nil
}

// Remove deletes the entries for name and addr. Absent entries are ignored.
func (r *Registry) Remove(name string, addr netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.peers[addr]; ok {
		delete(r.peers, addr)
		if r.names[e.name] == addr {
			delete(r.names, e.name)
		}
	}
	if a, ok := r.names[name]; ok && a == addr {
		delete(r.names, name)
	}
}

// Route queues msg for its receiver.
func (r *Registry) Route(msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr, ok := r.names[msg.Receiver]
	if !ok {
		return ErrUserNotFound
	}
	e, ok := r.peers[addr]
	if !ok {
		return ErrUserNotFound
	}
	if err := e.inbox.Push(msg); err != nil {
		return ErrChannelClosed
	}
	return nil
}

// Broadcast queues msg for every registered peer, the sender included, and
// returns how many inboxes accepted it. Closed inboxes are skipped.
func (r *Registry) Broadcast(msg protocol.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, e := range r.peers {
		if err := e.inbox.Push(msg); err == nil {
			delivered++
		}
	}
	return delivered
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
