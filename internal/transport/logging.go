// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync/atomic"

	applog "partialsynth/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level. It stands in for the websocket when no display is attached.
type LoggingTransport struct {
	sent   atomic.Uint64
	closed atomic.Bool
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data as JSON.
func (lt *LoggingTransport) Send(data any) error {
	if lt.closed.Load() {
		return ErrClosed
	}
	lt.sent.Add(1)
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		applog.Debugf("LOG_TRANSPORT: Received (%T): %+v (JSON marshal error: %v)", data, data, err)
		return nil
	}
	applog.Debugf("LOG_TRANSPORT: Received (%T): %s", data, jsonData)
	return nil
}

// Sent returns the number of messages accepted.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close marks the transport closed.
func (lt *LoggingTransport) Close() error {
	lt.closed.Store(true)
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
