package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aranet4-exporter/internal/ble"
)

type fakePeripheral struct {
	addr ble.MAC

	mu        sync.Mutex
	rssiAfter int // RSSI reports a value starting with this call number
	rssiCalls int
	connects  int
	paired    bool
	pairs     int
	pairErr   error
}

func (p *fakePeripheral) Address() ble.MAC {
	return p.addr
}

func (p *fakePeripheral) RSSI(ctx context.Context) (int16, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rssiCalls++
	if p.rssiCalls >= p.rssiAfter {
		return -60, true, nil
	}
	return 0, false, nil
}

func (p *fakePeripheral) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	return nil
}

func (p *fakePeripheral) Connected(ctx context.Context) (bool, error) {
	return false, nil
}

func (p *fakePeripheral) Paired(ctx context.Context) (bool, error) {
	return p.paired, nil
}

func (p *fakePeripheral) Pair(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs++
	return p.pairErr
}

type fakeRadio struct {
	peripherals map[ble.MAC]*fakePeripheral
	advertise   []ble.MAC // re-advertised on every tick
	interval    time.Duration
}

func (r *fakeRadio) Scan(ctx context.Context, callback func(ble.Advertisement)) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, addr := range r.advertise {
				callback(ble.Advertisement{Address: addr, RSSI: -60})
			}
		}
	}
}

func (r *fakeRadio) Peripheral(addr ble.MAC) Peripheral {
	return r.peripherals[addr]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustMAC(t *testing.T, s string) ble.MAC {
	t.Helper()
	mac, err := ble.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

func newTestFinder(radio Radio, timeout time.Duration) *Finder {
	f := NewFinder(radio, timeout, testLogger())
	f.probeInterval = time.Millisecond
	f.probeAttempts = 3
	return f
}

func TestFindDeliversEachTargetExactlyOnce(t *testing.T) {
	addrs := []ble.MAC{
		mustMAC(t, "ED:12:89:6C:08:37"),
		mustMAC(t, "ED:12:89:6C:08:38"),
		mustMAC(t, "ED:12:89:6C:08:39"),
	}

	radio := &fakeRadio{
		peripherals: make(map[ble.MAC]*fakePeripheral),
		interval:    time.Millisecond,
	}
	for _, addr := range addrs {
		radio.peripherals[addr] = &fakePeripheral{addr: addr}
		// Duplicate advertisements on every tick.
		radio.advertise = append(radio.advertise, addr, addr)
	}

	finder := newTestFinder(radio, 5*time.Second)
	found, err := finder.Find(context.Background(), addrs)
	require.NoError(t, err)
	require.Len(t, found, 3)

	seen := make(map[ble.MAC]bool)
	for _, p := range found {
		assert.False(t, seen[p.Address()], "address %s delivered twice", p.Address())
		seen[p.Address()] = true
	}

	for _, addr := range addrs {
		assert.Equal(t, 1, radio.peripherals[addr].connects, "address %s", addr)
	}
}

func TestFindTimesOutWhenNothingAdvertises(t *testing.T) {
	radio := &fakeRadio{
		peripherals: make(map[ble.MAC]*fakePeripheral),
		interval:    time.Millisecond,
	}

	finder := newTestFinder(radio, 100*time.Millisecond)

	start := time.Now()
	_, err := finder.Find(context.Background(), []ble.MAC{mustMAC(t, "ED:12:89:6C:08:37")})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrSearchTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestFindRearmsAfterFailedLivenessProbe(t *testing.T) {
	addr := mustMAC(t, "ED:12:89:6C:08:37")

	// The first discovery attempt exhausts its probe budget (3 attempts),
	// the address is re-armed, and a later advertisement succeeds.
	p := &fakePeripheral{addr: addr, rssiAfter: 5}
	radio := &fakeRadio{
		peripherals: map[ble.MAC]*fakePeripheral{addr: p},
		advertise:   []ble.MAC{addr},
		interval:    5 * time.Millisecond,
	}

	finder := newTestFinder(radio, 5*time.Second)
	found, err := finder.Find(context.Background(), []ble.MAC{addr})
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.Equal(t, 1, p.connects)
	assert.GreaterOrEqual(t, p.rssiCalls, 5)
}

func TestFindPairingFailureIsNotFatal(t *testing.T) {
	addr := mustMAC(t, "ED:12:89:6C:08:37")
	p := &fakePeripheral{
		addr:    addr,
		pairErr: errors.New("authentication failed"),
	}
	radio := &fakeRadio{
		peripherals: map[ble.MAC]*fakePeripheral{addr: p},
		advertise:   []ble.MAC{addr},
		interval:    time.Millisecond,
	}

	finder := newTestFinder(radio, 5*time.Second)
	found, err := finder.Find(context.Background(), []ble.MAC{addr})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 1, p.pairs)
}

func TestFindAlreadyPairedSkipsPairing(t *testing.T) {
	addr := mustMAC(t, "ED:12:89:6C:08:37")
	p := &fakePeripheral{addr: addr, paired: true}
	radio := &fakeRadio{
		peripherals: map[ble.MAC]*fakePeripheral{addr: p},
		advertise:   []ble.MAC{addr},
		interval:    time.Millisecond,
	}

	finder := newTestFinder(radio, 5*time.Second)
	_, err := finder.Find(context.Background(), []ble.MAC{addr})
	require.NoError(t, err)
	assert.Equal(t, 0, p.pairs)
}

func TestFindNoTargets(t *testing.T) {
	radio := &fakeRadio{interval: time.Millisecond}
	finder := newTestFinder(radio, time.Second)

	_, err := finder.Find(context.Background(), nil)
	assert.Error(t, err)
}
