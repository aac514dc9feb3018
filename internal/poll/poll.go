// Package poll owns the session lifecycle: one connected device, its
// resolved endpoint table, and the fixed-interval read loop.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"aranet4-exporter/internal/aranet"
	"aranet4-exporter/internal/ble"
)

// Device is the connected peripheral a session reads from. It is satisfied
// by Wrap(*ble.Device).
type Device interface {
	Address() ble.MAC
	Connect(ctx context.Context) error
	Connected(ctx context.Context) (bool, error)
	GATT(ctx context.Context) ([]aranet.ServiceEntry, error)
}

// Session pairs a connected device with its endpoint table. The table is
// rebuilt whenever the connection is re-established, since characteristic
// handles are not guaranteed stable across reconnects.
type Session struct {
	dev       Device
	endpoints aranet.Endpoints
	log       *slog.Logger
}

// NewSession resolves the endpoint table for a freshly connected device.
// A device without a current-readings characteristic cannot produce
// anything useful, so that is rejected up front.
func NewSession(ctx context.Context, dev Device, log *slog.Logger) (*Session, error) {
	s := &Session{dev: dev, log: log}
	if err := s.resolve(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) resolve(ctx context.Context) error {
	entries, err := s.dev.GATT(ctx)
	if err != nil {
		return fmt.Errorf("resolving endpoints of %s: %w", s.dev.Address(), err)
	}

	endpoints := aranet.ResolveEndpoints(entries)
	if !endpoints.Has(aranet.EndpointCurrentReadings) {
		return aranet.ErrNoReadingsCharacteristic
	}

	s.endpoints = endpoints
	return nil
}

// Endpoints returns the session's current endpoint table.
func (s *Session) Endpoints() aranet.Endpoints {
	return s.endpoints
}

// Read produces one reading, transparently reconnecting first if the link
// dropped since the last tick. A reconnect rebuilds the endpoint table.
func (s *Session) Read(ctx context.Context) (aranet.CurrentReading, error) {
	connected, err := s.dev.Connected(ctx)
	if err != nil {
		return aranet.CurrentReading{}, err
	}

	if !connected {
		s.log.Warn("device disconnected, reconnecting", "address", s.dev.Address())
		if err := s.dev.Connect(ctx); err != nil {
			return aranet.CurrentReading{}, fmt.Errorf("reconnect: %w", err)
		}
		if err := s.resolve(ctx); err != nil {
			return aranet.CurrentReading{}, err
		}
	}

	return s.endpoints.ReadCurrent(ctx)
}

// Poller re-reads a session at a fixed interval.
type Poller struct {
	session  *Session
	interval time.Duration
	log      *slog.Logger
}

func NewPoller(session *Session, interval time.Duration, log *slog.Logger) *Poller {
	return &Poller{
		session:  session,
		interval: interval,
		log:      log,
	}
}

// Run reads immediately and then on every tick, invoking each for every
// successful reading, until the context is cancelled. A failed tick is
// logged and skipped; transient radio errors are expected and the next tick
// retries through the reconnect path.
func (p *Poller) Run(ctx context.Context, each func(aranet.CurrentReading)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		reading, err := p.session.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("read failed, skipping tick", "address", p.session.dev.Address(), "err", err)
		} else {
			each(reading)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Wrap adapts a connected *ble.Device to the Device interface.
func Wrap(dev *ble.Device) Device {
	return bleDevice{dev}
}

type bleDevice struct {
	dev *ble.Device
}

func (b bleDevice) Address() ble.MAC {
	return b.dev.Address()
}

func (b bleDevice) Connect(ctx context.Context) error {
	return b.dev.Connect(ctx)
}

func (b bleDevice) Connected(ctx context.Context) (bool, error) {
	return b.dev.Connected(ctx)
}

func (b bleDevice) GATT(ctx context.Context) ([]aranet.ServiceEntry, error) {
	services, err := b.dev.Services(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]aranet.ServiceEntry, 0, len(services))
	for _, svc := range services {
		chars, err := svc.Characteristics(ctx)
		if err != nil {
			return nil, err
		}

		entry := aranet.ServiceEntry{UUID: svc.UUID()}
		for _, c := range chars {
			entry.Characteristics = append(entry.Characteristics, c)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
