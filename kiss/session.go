package kiss

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// PollingMode selects how the polling engine behaves (spec.md §4.5).
type PollingMode int

const (
	PollOff PollingMode = iota
	PollActive
	PollPassive
)

func (m PollingMode) String() string {
	switch m {
	case PollActive:
		return "active"
	case PollPassive:
		return "passive"
	default:
		return "off"
	}
}

// SessionConfig is immutable after Open (spec.md §3).
type SessionConfig struct {
	PollingMode PollingMode
	// PollInterval is the active-poll period; must be > 0.
	PollInterval time.Duration
	// ChecksumMode enables XOR checksum framing on transmit when SMACK
	// has not (yet) been negotiated for the destination peer.
	ChecksumMode bool
	// MaxQueueSize bounds each per-port passive-mode queue; must be >= 1.
	MaxQueueSize int
	// OwnAddress is this host's multi-drop address, 0-15.
	OwnAddress uint8
	// MultiDrop selects the high-nibble interpretation: false means pure
	// KISS (high nibble = port), true means XKISS/BPQ multi-drop (high
	// nibble = TNC address, port fixed at 0) per spec.md §4.2.
	MultiDrop bool
	// PollAddresses is the set of peer addresses the active poller
	// targets. Defaults to {1..15} if left nil (spec.md §9, Open
	// Question resolved in SPEC_FULL.md §14).
	PollAddresses []uint8
	// ShutdownTimeout bounds how long Close waits for the reader/poller
	// to exit. Defaults to 2 * PollInterval.
	ShutdownTimeout time.Duration
}

// setDefaults fills in zero-valued optional fields and returns a
// validated copy. Synchronous, per spec.md §7 (InvalidConfig is raised
// at open, not recovered locally).
func (c SessionConfig) setDefaults() (SessionConfig, error) {
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 100
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 2 * c.PollInterval
	}
	if c.PollAddresses == nil {
		addrs := make([]uint8, 0, 15)
		for a := uint8(1); a <= MaxAddress; a++ {
			addrs = append(addrs, a)
		}
		c.PollAddresses = addrs
	}
	if err := validateNibble(int(c.OwnAddress)); err != nil {
		return c, fmt.Errorf("%w: own_address %d: %v", ErrInvalidConfig, c.OwnAddress, err)
	}
	if c.PollInterval <= 0 {
		return c, fmt.Errorf("%w: poll_interval must be > 0", ErrInvalidConfig)
	}
	if c.MaxQueueSize < 1 {
		return c, fmt.Errorf("%w: max_queue_size must be >= 1", ErrInvalidConfig)
	}
	return c, nil
}

// Session is the protocol core's live handle: codec + polling engine +
// peer state bound to one Transport. Multiple Sessions may run
// concurrently against different transports (spec.md §9, "no global
// state").
type Session struct {
	cfg       SessionConfig
	transport Transport
	id        xid.ID
	log       *logrus.Entry

	txMu sync.Mutex // serializes all transport writes

	mu     sync.Mutex // guards peers; callback slots have their own lock
	peers  peerTable
	events dispatch

	stats *sessionStats

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	failed    atomic.Bool
}

// Open starts a Session over transport. The reader goroutine always
// runs; the poller goroutine only runs in PollActive mode (spec.md §5).
func Open(transport Transport, cfg SessionConfig, logger *logrus.Logger) (*Session, error) {
	cfg, err := cfg.setDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	id := xid.New()
	s := &Session{
		cfg:       cfg,
		transport: transport,
		id:        id,
		log:       logger.WithField("session", id.String()),
		stats:     newSessionStats(id.String()),
		stopCh:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	if cfg.PollingMode == PollActive {
		s.wg.Add(1)
		go s.pollLoop()
	}

	return s, nil
}

// ID returns the session's correlation identifier (used in logs and
// Prometheus const labels).
func (s *Session) ID() xid.ID { return s.id }

// Collector exposes the session's Prometheus counters so a caller can
// register them (cmd/kissd does this on an HTTP /metrics endpoint).
func (s *Session) Collector() *sessionStats { return s.stats }

// OnFrame registers the handler invoked for every valid DATA frame.
func (s *Session) OnFrame(h FrameHandler) { s.events.setFrame(h) }

// OnPoll registers the handler invoked for every valid POLL frame.
func (s *Session) OnPoll(h PollHandler) { s.events.setPoll(h) }

// OnOverflow registers the handler invoked when a port queue drops its
// oldest entry.
func (s *Session) OnOverflow(h OverflowHandler) { s.events.setOverflow(h) }

// OnError registers the handler invoked for non-fatal decode/transport
// conditions.
func (s *Session) OnError(h ErrorHandler) { s.events.setError(h) }

// Stats returns a point-in-time snapshot of the session counters
// (spec.md §6).
func (s *Session) Stats() Stats { return s.stats.snapshot() }

// Send transmits payload on port, addressed to address. In PollPassive
// mode this enqueues into the session's own outbound queue for port
// instead of transmitting immediately (spec.md §4.5); Off and Active
// modes transmit immediately.
func (s *Session) Send(payload []byte, port, address uint8) error {
	if s.failed.Load() {
		return ErrSessionFailed
	}
	if err := validateNibble(int(port)); err != nil {
		return fmt.Errorf("%w: port %d", ErrInvalidAddress, port)
	}
	if err := validateNibble(int(address)); err != nil {
		return fmt.Errorf("%w: address %d", ErrInvalidAddress, address)
	}

	if s.cfg.PollingMode == PollPassive {
		s.enqueueOwn(port, payload)
		return nil
	}
	return s.transmitData(address, port, payload)
}

// transmitData encodes and writes one DATA frame to (address, port),
// applying the session's SMACK/XOR state for address.
func (s *Session) transmitData(address, port uint8, payload []byte) error {
	wireAddr := port
	if s.cfg.MultiDrop {
		wireAddr = address
	}

	s.mu.Lock()
	opts := EncodeOptions{
		SMACK: s.peers.smack(address),
		XOR:   s.cfg.ChecksumMode,
	}
	s.mu.Unlock()

	frame := Frame{Address: wireAddr, Command: CmdData, Payload: payload}
	if err := s.write(Encode(frame, opts)); err != nil {
		return err
	}
	s.stats.txFrames.Inc()
	return nil
}

// enqueueOwn buffers payload for later passive-mode drain.
func (s *Session) enqueueOwn(port uint8, payload []byte) {
	s.mu.Lock()
	q := s.peers.queueFor(s.cfg.OwnAddress, port, s.cfg.MaxQueueSize)
	dropped, overflowed := q.Enqueue(QueueEntry{Port: port, Payload: payload, Enqueued: time.Now()})
	s.mu.Unlock()

	if overflowed {
		s.stats.overflows.Inc()
		s.events.overflow(s.cfg.OwnAddress, port, dropped.Payload)
	}
}

// Poll forces a synthetic flush-all drain equivalent to receiving a POLL
// for own_address on every port, regardless of polling mode (spec.md
// §4.5).
func (s *Session) Poll() error {
	return s.drainAll(s.cfg.OwnAddress)
}

// drainAll transmits every buffered entry for address, across all 16
// ports, in FIFO order. A transmit failure re-queues that port's
// undelivered tail at the head and aborts the drain; later ports are
// not drained.
func (s *Session) drainAll(address uint8) error {
	for port := uint8(0); port <= MaxAddress; port++ {
		if err := s.drainPort(address, port); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) drainPort(address, port uint8) error {
	s.mu.Lock()
	q := s.peers.queueFor(address, port, s.cfg.MaxQueueSize)
	entries := q.Drain()
	s.mu.Unlock()

	for i, entry := range entries {
		wireAddr := port
		if s.cfg.MultiDrop {
			wireAddr = address
		}
		frame := Frame{Address: wireAddr, Command: CmdData, Payload: entry.Payload}
		opts := EncodeOptions{XOR: s.cfg.ChecksumMode}
		if err := s.write(Encode(frame, opts)); err != nil {
			s.mu.Lock()
			s.peers.queueFor(address, port, s.cfg.MaxQueueSize).Requeue(entries[i:])
			s.mu.Unlock()
			return err
		}
		s.stats.txFrames.Inc()
	}
	return nil
}

// write serializes access to the transport via the TX lock and performs
// the single-retry reconnect policy on write failure (spec.md §5/§7).
func (s *Session) write(wire []byte) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if _, err := s.transport.Write(wire); err != nil {
		s.log.WithError(err).Error("transport write failed, attempting reconnect")
		if rerr := s.transport.Reconnect(); rerr != nil {
			s.fail("write reconnect failed", rerr)
			return fmt.Errorf("%w: %v", ErrTransport, rerr)
		}
		s.stats.reconnects.Inc()
		if _, err := s.transport.Write(wire); err != nil {
			s.fail("write failed after reconnect", err)
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return nil
}

func (s *Session) fail(msg string, err error) {
	s.failed.Store(true)
	s.log.WithError(err).Error("CRITICAL: " + msg + ", session failed")
}

// Close stops the reader/poller, discards any pending passive queues,
// and closes the transport. Idempotent (spec.md §5/§8).
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		_ = s.transport.Close() // unblocks a pending Read in readLoop

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.cfg.ShutdownTimeout):
			s.log.Warn("shutdown timed out waiting for reader/poller")
		}

		dropped := s.discardQueues()
		if dropped > 0 {
			s.log.WithField("dropped", dropped).Warn("discarded pending passive-queue entries on close")
		}
	})
	return err
}

func (s *Session) discardQueues() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for a := range s.peers {
		for p := range s.peers[a].queues {
			if q := s.peers[a].queues[p]; q != nil {
				n += q.Len()
				q.Drain()
			}
		}
	}
	return n
}
