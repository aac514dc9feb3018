// Package discovery finds configured sensors among BLE advertisements,
// confirms live radio contact, and hands out connected peripherals.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"aranet4-exporter/internal/ble"
)

// ErrSearchTimeout is returned when no target device could be connected
// within the configured search window. This is the one unrecoverable
// discovery failure.
var ErrSearchTimeout = errors.New("discovery: no device reachable before timeout")

var errNeverLive = errors.New("discovery: device never reported signal strength")

// Peripheral is the slice of a remote device the orchestrator drives.
// *ble.Device satisfies it.
type Peripheral interface {
	Address() ble.MAC
	Connect(ctx context.Context) error
	Connected(ctx context.Context) (bool, error)
	RSSI(ctx context.Context) (int16, bool, error)
	Paired(ctx context.Context) (bool, error)
	Pair(ctx context.Context) error
}

// Radio abstracts the adapter: advertisement scanning plus peripheral
// handles by address.
type Radio interface {
	Scan(ctx context.Context, callback func(ble.Advertisement)) error
	Peripheral(addr ble.MAC) Peripheral
}

// Finder runs the per-address discovery state machine:
//
//	Unseen -> Advertised -> LivenessConfirmed -> Connected
//
// An advertisement alone does not mean the radio link is reachable, so a
// matched address first has to produce a signal-strength reading before a
// connect is attempted. Each address is claimed atomically when its first
// advertisement arrives, so duplicate advertisements never cause a second
// connect; an address whose liveness probe runs out is re-armed and stays
// eligible for later advertisements.
type Finder struct {
	radio Radio
	log   *slog.Logger

	timeout       time.Duration
	probeInterval time.Duration
	probeAttempts int
}

const (
	defaultProbeInterval = 200 * time.Millisecond
	defaultProbeAttempts = 100
)

func NewFinder(radio Radio, timeout time.Duration, log *slog.Logger) *Finder {
	return &Finder{
		radio:         radio,
		log:           log,
		timeout:       timeout,
		probeInterval: defaultProbeInterval,
		probeAttempts: defaultProbeAttempts,
	}
}

// Find scans until every target address has been connected or the search
// timeout expires. Exactly one peripheral is delivered per target address.
// On timeout with at least one device connected the partial result is
// returned; with none, ErrSearchTimeout.
func (f *Finder) Find(ctx context.Context, targets []ble.MAC) ([]Peripheral, error) {
	pending := make(map[ble.MAC]struct{}, len(targets))
	for _, t := range targets {
		pending[t] = struct{}{}
	}
	want := len(pending)
	if want == 0 {
		return nil, errors.New("discovery: no target addresses")
	}

	var mu sync.Mutex
	claim := func(addr ble.MAC) bool {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := pending[addr]; !ok {
			return false
		}
		delete(pending, addr)
		return true
	}
	rearm := func(addr ble.MAC) {
		mu.Lock()
		defer mu.Unlock()
		pending[addr] = struct{}{}
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan Peripheral, want)
	g, gctx := errgroup.WithContext(sctx)

	g.Go(func() error {
		err := f.radio.Scan(gctx, func(adv ble.Advertisement) {
			if !claim(adv.Address) {
				return
			}
			f.log.Debug("target advertised", "address", adv.Address, "rssi", adv.RSSI)

			g.Go(func() error {
				p, err := f.establish(gctx, adv.Address)
				if err != nil {
					if gctx.Err() == nil {
						f.log.Warn("discovery attempt abandoned", "address", adv.Address, "err", err)
						rearm(adv.Address)
					}
					return nil // soft failure, keep searching
				}
				found <- p
				return nil
			})
		})
		// Scan ending due to our own cancellation is the normal exit.
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	scanDone := make(chan error, 1)
	go func() { scanDone <- g.Wait() }()

	var out []Peripheral
	for len(out) < want {
		select {
		case p := <-found:
			f.log.Info("device connected", "address", p.Address())
			out = append(out, p)

		case <-timer.C:
			cancel()
			<-scanDone
			if len(out) == 0 {
				return nil, ErrSearchTimeout
			}
			f.log.Warn("search timeout with partial result", "connected", len(out), "wanted", want)
			return out, nil

		case err := <-scanDone:
			if err != nil {
				return nil, fmt.Errorf("discovery: scan failed: %w", err)
			}
			return nil, errors.New("discovery: scan ended before all targets were found")

		case <-ctx.Done():
			cancel()
			<-scanDone
			return nil, ctx.Err()
		}
	}

	cancel()
	<-scanDone
	return out, nil
}

// establish takes one advertised address through liveness confirmation,
// connect and pairing.
func (f *Finder) establish(ctx context.Context, addr ble.MAC) (Peripheral, error) {
	p := f.radio.Peripheral(addr)

	if err := f.confirmLiveness(ctx, p); err != nil {
		return nil, err
	}

	connected, err := p.Connected(ctx)
	if err != nil {
		return nil, err
	}
	if !connected {
		if err := p.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	f.pair(ctx, p)

	return p, nil
}

// confirmLiveness polls the RSSI property until a reading appears.
// Advertisement visibility alone does not guarantee the link is reachable;
// BlueZ only populates RSSI while it actually hears the device. The
// underlying signal has no push notification, so this is an active poll.
func (f *Finder) confirmLiveness(ctx context.Context, p Peripheral) error {
	ticker := time.NewTicker(f.probeInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < f.probeAttempts; attempt++ {
		rssi, ok, err := p.RSSI(ctx)
		if err != nil {
			return fmt.Errorf("liveness probe: %w", err)
		}
		if ok {
			f.log.Debug("liveness confirmed", "address", p.Address(), "rssi", rssi)
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return errNeverLive
}

// pair bonds with the device if it isn't already. Failure is logged and
// deliberately non-fatal: some firmware serves the public characteristics
// to unauthenticated readers.
func (f *Finder) pair(ctx context.Context, p Peripheral) {
	paired, err := p.Paired(ctx)
	if err != nil {
		f.log.Warn("could not determine pairing state", "address", p.Address(), "err", err)
		return
	}
	if paired {
		return
	}

	f.log.Info("device not paired, attempting to pair", "address", p.Address())
	if err := p.Pair(ctx); err != nil {
		f.log.Warn("pairing failed, continuing unpaired", "address", p.Address(), "err", err)
	}
}
