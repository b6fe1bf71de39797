// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"partialsynth/internal/analysis"
	applog "partialsynth/internal/log"
)

// Sender is the datagram side of the publisher. *UDPSender implements it.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Record is one update cycle: the active partials of every channel.
type Record struct {
	Seq       uint32
	Timestamp time.Time
	Channels  [][]analysis.Partial
}

// TelemetryPublisher packs update records into the binary format below and
// sends them from its own goroutine. Publish never blocks; when the queue is
// full the record is dropped.
type TelemetryPublisher struct {
	sender Sender
	queue  chan Record

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewTelemetryPublisher creates a publisher on top of sender.
func NewTelemetryPublisher(sender Sender, queueSize int) (*TelemetryPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("TelemetryPublisher: UDP sender cannot be nil")
	}
	if queueSize <= 0 {
		queueSize = 8
	}
	return &TelemetryPublisher{
		sender:       sender,
		queue:        make(chan Record, queueSize),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the sending goroutine. Calling Start twice is a no-op.
func (p *TelemetryPublisher) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		applog.Warnf("TelemetryPublisher: Start called but already running.")
		return
	}
	p.running = true
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("TelemetryPublisher: Publisher goroutine started")
		for {
			select {
			case r := <-p.queue:
				p.buildAndSendPacket(r)
			case <-doneChan:
				applog.Infof("TelemetryPublisher: Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Publish queues the active partials of snap for sending.
func (p *TelemetryPublisher) Publish(snap analysis.Snapshot) {
	r := Record{Timestamp: time.Now(), Channels: make([][]analysis.Partial, len(snap))}
	for ch := range snap {
		r.Channels[ch] = snap.Active(ch)
	}
	select {
	case p.queue <- r:
	default:
		applog.Debugf("TelemetryPublisher: queue full, dropping record")
	}
}

// Stop signals the goroutine to exit and waits for it. Safe to call twice.
func (p *TelemetryPublisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.running = false
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("TelemetryPublisher: Publisher goroutine finished.")
	return nil
}

// Close stops the publisher and closes the sender.
func (p *TelemetryPublisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

/*
Telemetry Packet Structure (BigEndian)

+-----------------------------------------------------------------+
| Field            | Data Type | Size (Bytes) | Description       |
|------------------|-----------|--------------|-------------------|
| Sequence Number  | uint32    | 4            | Per update cycle  |
| Timestamp        | int64     | 8            | Unix nanoseconds  |
| Channel Count    | uint16    | 2            | C                 |
| For each channel:                                               |
|   Partial Count  | uint16    | 2            | P, active only    |
|   Partials       | float32x2 | P * 8        | frequency, ampl.  |
+-----------------------------------------------------------------+
*/

func (p *TelemetryPublisher) buildAndSendPacket(r Record) {
	p.sequenceNum++
	r.Seq = p.sequenceNum

	p.packetBuffer.Reset()
	if err := WriteRecord(p.packetBuffer, r); err != nil {
		applog.Errorf("TelemetryPublisher: Error packing record: %v", err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		applog.Debugf("TelemetryPublisher: Sent packet %d (%d bytes)", r.Seq, p.packetBuffer.Len())
	}
}

// WriteRecord encodes r in the telemetry packet format.
func WriteRecord(w io.Writer, r Record) error {
	header := struct {
		Seq       uint32
		Timestamp int64
		Channels  uint16
	}{r.Seq, r.Timestamp.UnixNano(), uint16(len(r.Channels))}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return err
	}
	for _, partials := range r.Channels {
		if err := binary.Write(w, binary.BigEndian, uint16(len(partials))); err != nil {
			return err
		}
		for _, pt := range partials {
			pair := [2]float32{float32(pt.Frequency), float32(pt.Amplitude)}
			if err := binary.Write(w, binary.BigEndian, pair); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadRecord decodes one telemetry packet.
func ReadRecord(rd io.Reader) (Record, error) {
	var header struct {
		Seq       uint32
		Timestamp int64
		Channels  uint16
	}
	if err := binary.Read(rd, binary.BigEndian, &header); err != nil {
		return Record{}, fmt.Errorf("telemetry header: %w", err)
	}
	r := Record{
		Seq:       header.Seq,
		Timestamp: time.Unix(0, header.Timestamp),
		Channels:  make([][]analysis.Partial, header.Channels),
	}
	for ch := range r.Channels {
		var count uint16
		if err := binary.Read(rd, binary.BigEndian, &count); err != nil {
			return Record{}, fmt.Errorf("telemetry channel %d: %w", ch, err)
		}
		partials := make([]analysis.Partial, count)
		for i := range partials {
			var pair [2]float32
			if err := binary.Read(rd, binary.BigEndian, &pair); err != nil {
				return Record{}, fmt.Errorf("telemetry channel %d partial %d: %w", ch, i, err)
			}
			partials[i] = analysis.Partial{Frequency: float64(pair[0]), Amplitude: float64(pair[1])}
		}
		r.Channels[ch] = partials
	}
	return r, nil
}

var _ interface{ Close() error } = (*TelemetryPublisher)(nil)
