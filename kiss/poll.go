package kiss

import (
	"bufio"
	"errors"
	"io"
	"time"
)

// readLoop is the reader context described in spec.md §5: it
// continuously reads bytes from the transport, decodes frames, and
// either dispatches them immediately (Off/Active modes, and all
// non-DATA/non-addressed-POLL traffic) or triggers a passive-mode drain
// when an inbound POLL addresses this session's own_address.
//
// Frames from a single peer address are delivered to on_frame in the
// order they arrive on the wire, since this loop is single-threaded and
// processes one token at a time (spec.md §5 ordering guarantee).
func (s *Session) readLoop() {
	defer s.wg.Done()

	scanner := bufio.NewScanner(s.transport)
	scanner.Split(Split)
	scanner.Buffer(make([]byte, 4096), 1<<20)

	for scanner.Scan() {
		select {
		case <-s.stopCh:
			return
		default:
		}

		raw := scanner.Bytes()
		frame, kind, err := Decode(raw, DecodeOptions{XOREnabled: s.cfg.ChecksumMode})
		if err != nil {
			s.recordDecodeError(kind, err)
			continue
		}
		s.handleFrame(frame)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		select {
		case <-s.stopCh:
			// Close() closed the transport to unblock us; not a failure.
		default:
			s.log.WithError(err).Error("transport read failed, attempting reconnect")
			if rerr := s.transport.Reconnect(); rerr != nil {
				s.fail("read reconnect failed", rerr)
				return
			}
			s.stats.reconnects.Inc()
			s.wg.Add(1)
			go s.readLoop()
		}
	}
}

func (s *Session) recordDecodeError(kind ErrorKind, err error) {
	switch kind {
	case KindCRC:
		s.stats.crcErrors.Inc()
	case KindChecksum:
		s.stats.xorErrors.Inc()
	}
	s.events.error(ErrorEvent{Kind: kind, Detail: "decode", Err: err})
}

// handleFrame dispatches or queues one successfully decoded frame.
func (s *Session) handleFrame(frame Frame) {
	switch frame.Command {
	case CmdData:
		if frame.HadCRC {
			s.mu.Lock()
			s.peers.markSMACK(frame.Address)
			s.mu.Unlock()
		}
		s.stats.rxFrames.Inc()

		address, port := uint8(0), frame.Address
		if s.cfg.MultiDrop {
			address, port = frame.Address, 0
		}
		s.events.frame(address, port, frame.Payload)

	case CmdPoll:
		s.events.poll(frame.Address)
		if s.cfg.PollingMode == PollPassive && frame.Address == s.cfg.OwnAddress {
			if err := s.drainAll(s.cfg.OwnAddress); err != nil {
				s.events.error(ErrorEvent{Kind: KindTransport, Detail: "passive drain", Err: err})
			}
		}

	default:
		// Config/RETURN commands are decoded but not dispatched; spec.md
		// §4.7 only names on_frame (DATA) and on_poll (POLL).
	}
}

// pollLoop is the Active-mode poller context (spec.md §5): it wakes
// every PollInterval and emits a POLL frame for each configured peer
// address. It is preemptible and terminates within one PollInterval of
// Close (spec.md §4.5).
func (s *Session) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, addr := range s.cfg.PollAddresses {
				frame := Frame{Address: addr, Command: CmdPoll}
				if err := s.write(Encode(frame, EncodeOptions{})); err != nil {
					s.events.error(ErrorEvent{Kind: KindTransport, Detail: "active poll", Err: err})
					return
				}
			}
		}
	}
}
