package kiss

// peerState tracks per-address session state: the sticky SMACK
// auto-switch flag and the lazily-created per-port queues used in
// passive polling mode. Bounded to 16 entries (address 0-15); per
// spec.md §9 a fixed array is used instead of a map since the address
// space is small and known in advance.
type peerState struct {
	smackEnabled bool
	queues       [MaxAddress + 1]*PortQueue
}

// peerTable is the session-wide [0..15] array of peerState, guarded by
// Session.mu.
type peerTable [MaxAddress + 1]peerState

// queueFor lazily creates the PortQueue for (address, port) and returns
// it. Caller must hold the session state lock.
func (t *peerTable) queueFor(address, port uint8, capacity int) *PortQueue {
	p := &t[address]
	if p.queues[port] == nil {
		p.queues[port] = NewPortQueue(capacity)
	}
	return p.queues[port]
}

// markSMACK sets the sticky SMACK-enabled flag for address. It never
// reverts once set (spec.md §4.6: "Auto-switch is one-way").
func (t *peerTable) markSMACK(address uint8) {
	t[address].smackEnabled = true
}

// smack reports whether SMACK encoding should be used for outbound DATA
// frames to address.
func (t *peerTable) smack(address uint8) bool {
	return t[address].smackEnabled
}
