// SPDX-License-Identifier: MIT
package transport

import "errors"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller for
// longer than a queue insertion.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans a message out to several transports. Send returns the first
// error but always tries every transport.
type Multi []Transport

// Send implements Transport.
func (m Multi) Send(data any) error {
	var first error
	for _, t := range m {
		if err := t.Send(data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Transport.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
