package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager runs one poller per enabled device, bounded by MaxWorkers.
type Manager struct {
	Servers    []ServerConfig
	MaxWorkers int
	DedupTTL   time.Duration // 0 disables dedup
	Sink       Sink
	Log        zerolog.Logger
}

// Run blocks until ctx is done and the pollers have exited (or 5s passed).
func (m *Manager) Run(ctx context.Context) error {
	for _, srv := range m.Servers {
		if err := srv.Validate(); err != nil {
			return err
		}
	}

	var dedup *valueCache
	if m.DedupTTL > 0 {
		dedup = newValueCache(m.DedupTTL)
	}

	workers := m.MaxWorkers
	if workers <= 0 {
		workers = 10
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for _, srv := range m.Servers {
		if !srv.Enabled {
			continue
		}
		for _, dev := range srv.Devices {
			p := &Poller{
				Server: srv,
				Device: dev,
				Sink:   m.Sink,
				Log:    m.Log.With().Str("server", srv.ServerID).Str("device", dev.DeviceID).Logger(),
				dedup:  dedup,
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}
				if err := p.Run(ctx); err != nil {
					p.Log.Error().Err(err).Msg("modbus poller stopped")
				}
			}()
		}
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.Log.Warn().Msg("timeout waiting for modbus pollers to stop")
	}
	return nil
}
