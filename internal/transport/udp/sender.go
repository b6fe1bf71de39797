// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "partialsynth/internal/log"
)

// MaxDatagram is the largest UDP payload over IPv4.
const MaxDatagram = 65507

var (
	ErrSenderClosed = errors.New("UDP sender is closed")
	ErrTooLarge     = errors.New("telemetry record exceeds one datagram")
)

// UDPSender writes telemetry datagrams to one connected peer.
type UDPSender struct {
	mu   sync.Mutex // guards conn against Close
	conn *net.UDPConn

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// NewUDPSender dials targetAddress ("host:port"). No local bind is needed.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve telemetry target %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial telemetry target %q: %w", targetAddress, err)
	}
	applog.Infof("UDP Sender: sending telemetry to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Send writes data as a single datagram.
func (s *UDPSender) Send(data []byte) error {
	if len(data) > MaxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSenderClosed
	}
	n, err := s.conn.Write(data)
	if err != nil {
		// Usually ICMP port unreachable while no listener is up.
		return fmt.Errorf("send telemetry: %w", err)
	}
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
	return nil
}

// Stats returns the datagrams and bytes written so far.
func (s *UDPSender) Stats() (packets, bytes uint64) {
	return s.packets.Load(), s.bytes.Load()
}

// Close closes the connection. Later calls do nothing.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	packets, n := s.Stats()
	applog.Infof("UDP Sender: closing %s after %d packets (%d bytes)", s.conn.RemoteAddr(), packets, n)
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close telemetry socket: %w", err)
	}
	return nil
}

var _ Sender = (*UDPSender)(nil)
