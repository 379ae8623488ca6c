// Package liveness prunes unresponsive connections. A connection must
// miss two consecutive sweeps before it is terminated: the first sweep
// clears its alive flag and sends a probe, the second closes it if
// nothing marked it alive again in between.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultSweepInterval = 30 * time.Second

// Conn is one monitored transport. Implementations mark themselves
// alive on pong frames and on application-level keepAlive messages.
type Conn interface {
	Alive() bool
	SetAlive(alive bool)
	Ping() error
	Terminate()
}

type Monitor struct {
	mx       *sync.Mutex
	conns    map[Conn]struct{}
	interval time.Duration
	logger   zerolog.Logger
}

func NewMonitor(interval time.Duration, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Monitor{
		mx:       &sync.Mutex{},
		conns:    make(map[Conn]struct{}),
		interval: interval,
		logger:   logger.With().Str("component", "liveness-monitor").Logger(),
	}
}

func (mon *Monitor) Add(c Conn) {
	mon.mx.Lock()
	defer mon.mx.Unlock()
	mon.conns[c] = struct{}{}
}

func (mon *Monitor) Remove(c Conn) {
	mon.mx.Lock()
	defer mon.mx.Unlock()
	delete(mon.conns, c)
}

func (mon *Monitor) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		mon.logger.Debug().Msg("monitor stopped")
		wg.Done()
	}()

	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.Sweep()
		}
	}
}

// Sweep probes every monitored connection once. Terminated connections
// clean themselves up through their normal close path, which also
// removes them from the monitor.
func (mon *Monitor) Sweep() {
	mon.mx.Lock()
	conns := make([]Conn, 0, len(mon.conns))
	for c := range mon.conns {
		conns = append(conns, c)
	}
	mon.mx.Unlock()

	var terminated, probed int
	for _, c := range conns {
		if !c.Alive() {
			c.Terminate()
			terminated++
			continue
		}
		c.SetAlive(false)
		if err := c.Ping(); err != nil {
			mon.logger.Debug().Err(err).Msg("failed to send liveness probe")
		}
		probed++
	}

	mon.logger.Trace().
		Int("probed", probed).
		Int("terminated", terminated).
		Msg("liveness sweep done")
}
