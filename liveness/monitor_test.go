package liveness

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	mu         sync.Mutex
	alive      bool
	pings      int
	terminated bool
	pingErr    error
}

func (c *mockConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *mockConn) SetAlive(alive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = alive
}

func (c *mockConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *mockConn) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
}

func (c *mockConn) state() (pings int, terminated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings, c.terminated
}

func newTestMonitor() *Monitor {
	logger := zerolog.Nop()
	return NewMonitor(time.Hour, &logger)
}

func TestMonitor_TwoSweepWindow(t *testing.T) {
	mon := newTestMonitor()
	conn := &mockConn{alive: true}
	mon.Add(conn)

	// First sweep clears the flag and probes.
	mon.Sweep()
	pings, terminated := conn.state()
	assert.Equal(t, 1, pings)
	assert.False(t, terminated)
	assert.False(t, conn.Alive())

	// No acknowledgment before the second sweep: terminated.
	mon.Sweep()
	_, terminated = conn.state()
	assert.True(t, terminated)
}

func TestMonitor_AcknowledgedConnSurvives(t *testing.T) {
	mon := newTestMonitor()
	conn := &mockConn{alive: true}
	mon.Add(conn)

	for i := 0; i < 5; i++ {
		mon.Sweep()
		_, terminated := conn.state()
		require.False(t, terminated, "sweep %d", i)
		conn.SetAlive(true) // pong arrives in between sweeps
	}

	pings, _ := conn.state()
	assert.Equal(t, 5, pings)
}

func TestMonitor_PingErrorDoesNotTerminate(t *testing.T) {
	mon := newTestMonitor()
	conn := &mockConn{alive: true, pingErr: assert.AnError}
	mon.Add(conn)

	mon.Sweep()
	_, terminated := conn.state()
	assert.False(t, terminated)
}

func TestMonitor_RemovedConnNotSwept(t *testing.T) {
	mon := newTestMonitor()
	conn := &mockConn{alive: true}
	mon.Add(conn)
	mon.Remove(conn)

	mon.Sweep()
	pings, terminated := conn.state()
	assert.Zero(t, pings)
	assert.False(t, terminated)
}

func TestMonitor_SweepsIndependentConns(t *testing.T) {
	mon := newTestMonitor()
	dead := &mockConn{alive: false}
	live := &mockConn{alive: true}
	mon.Add(dead)
	mon.Add(live)

	mon.Sweep()

	_, deadTerminated := dead.state()
	livePings, liveTerminated := live.state()
	assert.True(t, deadTerminated)
	assert.False(t, liveTerminated)
	assert.Equal(t, 1, livePings)
}
