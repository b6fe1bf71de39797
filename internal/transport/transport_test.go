// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTransport struct {
	sends  int
	closed bool
}

func (f *failingTransport) Send(any) error { f.sends++; return errors.New("boom") }
func (f *failingTransport) Close() error  { f.closed = true; return nil }

func TestMultiTriesEveryTransport(t *testing.T) {
	t.Parallel()

	bad := &failingTransport{}
	good := NewLoggingTransport()
	m := Multi{bad, good}

	err := m.Send(map[string]int{"a": 1})
	assert.Error(t, err)
	assert.Equal(t, 1, bad.sends)
	assert.Equal(t, uint64(1), good.Sent())

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
	assert.ErrorIs(t, good.Send("late"), ErrClosed)
}

func TestWebSocketTransportBroadcasts(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return wst.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, wst.Send(map[string]any{"type": "partials", "seq": 7}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "partials", msg["type"])
	assert.Equal(t, float64(7), msg["seq"])
}

func TestWebSocketTransportClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, wst.Close())
	require.NoError(t, wst.Close())
	assert.ErrorIs(t, wst.Send("x"), ErrClosed)
}
