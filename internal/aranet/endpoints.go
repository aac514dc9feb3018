package aranet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoReadingsCharacteristic means the connected device exposes no
	// current-readings characteristic, so no reading can ever be produced
	// from this session.
	ErrNoReadingsCharacteristic = errors.New("aranet: device has no current readings characteristic")

	// ErrEndpointAbsent is returned when an optional endpoint is missing on
	// the connected firmware revision.
	ErrEndpointAbsent = errors.New("aranet: endpoint not present on device")
)

// Characteristic is the handle the resolver stores per endpoint. It is
// satisfied by *ble.Characteristic.
type Characteristic interface {
	UUID() uuid.UUID
	Read(ctx context.Context) ([]byte, error)
}

// ServiceEntry is one enumerated GATT service with its characteristics.
type ServiceEntry struct {
	UUID            uuid.UUID
	Characteristics []Characteristic
}

// Endpoints maps endpoint names to characteristic handles. A missing key
// means the connected firmware revision does not expose that endpoint.
// The table is built once per connected session and immutable afterwards;
// characteristic handles are not assumed stable across reconnects, so a new
// session means a new table.
type Endpoints map[Endpoint]Characteristic

// ResolveEndpoints walks the enumerated tree once and keeps every
// characteristic whose (service, characteristic) UUID pair is known.
// Unmatched pairs are dropped silently.
func ResolveEndpoints(services []ServiceEntry) Endpoints {
	endpoints := make(Endpoints)
	for _, svc := range services {
		for _, c := range svc.Characteristics {
			if name, ok := Classify(svc.UUID, c.UUID()); ok {
				endpoints[name] = c
			}
		}
	}
	return endpoints
}

// Has reports whether the endpoint is present on the connected device.
func (e Endpoints) Has(name Endpoint) bool {
	_, ok := e[name]
	return ok
}

// ReadCurrent reads and decodes the current sensor readings.
func (e Endpoints) ReadCurrent(ctx context.Context) (CurrentReading, error) {
	c, ok := e[EndpointCurrentReadings]
	if !ok {
		return CurrentReading{}, ErrNoReadingsCharacteristic
	}

	buf, err := c.Read(ctx)
	if err != nil {
		return CurrentReading{}, fmt.Errorf("reading current readings: %w", err)
	}
	return DecodeCurrentReading(buf)
}

// ReadInterval reads the measurement interval configured on the device.
func (e Endpoints) ReadInterval(ctx context.Context) (time.Duration, error) {
	seconds, err := e.readUint16(ctx, EndpointInterval)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// ReadSecondsSinceUpdate reads the age of the current measurement.
func (e Endpoints) ReadSecondsSinceUpdate(ctx context.Context) (time.Duration, error) {
	seconds, err := e.readUint16(ctx, EndpointSecondsSinceUpdate)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// ReadBatteryLevel reads the battery percentage from the standard Battery
// service.
func (e Endpoints) ReadBatteryLevel(ctx context.Context) (uint8, error) {
	c, ok := e[EndpointBatteryLevel]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEndpointAbsent, EndpointBatteryLevel)
	}

	buf, err := c.Read(ctx)
	if err != nil {
		return 0, err
	}
	if len(buf) < 1 {
		return 0, fmt.Errorf("%w: empty battery level", ErrShortPayload)
	}
	return buf[0], nil
}

func (e Endpoints) readUint16(ctx context.Context, name Endpoint) (uint16, error) {
	c, ok := e[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEndpointAbsent, name)
	}

	buf, err := c.Read(ctx)
	if err != nil {
		return 0, err
	}
	if len(buf) < 2 {
		return 0, fmt.Errorf("%w: %s returned %d bytes", ErrShortPayload, name, len(buf))
	}
	return binary.LittleEndian.Uint16(buf[0:2]), nil
}
