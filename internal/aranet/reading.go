// Package aranet implements the Aranet sensor GATT protocol: the vendor
// characteristic table, the endpoint resolver and the binary reading
// decoders.
package aranet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrShortPayload is returned when a current-readings payload is shorter
// than the fixed 9-byte wire layout.
var ErrShortPayload = errors.New("aranet: current readings payload too short")

const currentReadingSize = 9

// Temp is a temperature as read off the wire, in units of 1/20 degree
// Celsius. It is only ever constructed from the 16-bit little-endian wire
// field, so conversions are deterministic.
type Temp uint16

// Celsius returns the temperature in degrees Celsius.
func (t Temp) Celsius() float64 {
	return float64(t) / 20
}

// Fahrenheit returns the temperature in degrees Fahrenheit.
func (t Temp) Fahrenheit() float64 {
	return t.Celsius()*9/5 + 32
}

// CurrentReading is one decoded sensor snapshot. It is constructed fresh on
// every decode and never mutated.
type CurrentReading struct {
	CO2      uint16 // ppm
	Temp     Temp
	Pressure uint16 // 1/10 hPa
	Humidity uint8  // percent
	Battery  uint8  // percent
	Status   uint8  // opaque device status code, passed through unmodified
}

// DecodeCurrentReading decodes the 9-byte current-readings payload:
//
//	offset 0, 2 bytes: CO2 ppm (u16 LE)
//	offset 2, 2 bytes: temperature, 1/20 °C (u16 LE)
//	offset 4, 2 bytes: pressure, 1/10 hPa (u16 LE)
//	offset 6, 1 byte:  humidity percent
//	offset 7, 1 byte:  battery percent
//	offset 8, 1 byte:  status
//
// Longer buffers are accepted (the detailed variants share this prefix);
// shorter ones fail with ErrShortPayload.
func DecodeCurrentReading(buf []byte) (CurrentReading, error) {
	if len(buf) < currentReadingSize {
		return CurrentReading{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortPayload, len(buf), currentReadingSize)
	}

	return CurrentReading{
		CO2:      binary.LittleEndian.Uint16(buf[0:2]),
		Temp:     Temp(binary.LittleEndian.Uint16(buf[2:4])),
		Pressure: binary.LittleEndian.Uint16(buf[4:6]),
		Humidity: buf[6],
		Battery:  buf[7],
		Status:   buf[8],
	}, nil
}

// PressureHPa returns the pressure in hPa.
func (r CurrentReading) PressureHPa() float64 {
	return float64(r.Pressure) / 10
}

// String renders the pretty multi-line form used by the plain read mode.
func (r CurrentReading) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CO2:         %d ppm\n", r.CO2)
	fmt.Fprintf(&b, "Temperature: %.2f°C / %.2f°F\n", r.Temp.Celsius(), r.Temp.Fahrenheit())
	fmt.Fprintf(&b, "Humidity:    %d%%\n", r.Humidity)
	fmt.Fprintf(&b, "Pressure:    %.1f hPa\n", r.PressureHPa())
	fmt.Fprintf(&b, "Battery:     %d%%\n", r.Battery)
	fmt.Fprintf(&b, "Status:      %d", r.Status)
	return b.String()
}

// Oneline renders the compact single-line form.
func (r CurrentReading) Oneline(fahrenheit bool) string {
	degrees, unit := r.Temp.Celsius(), "C"
	if fahrenheit {
		degrees, unit = r.Temp.Fahrenheit(), "F"
	}
	return fmt.Sprintf("%dppm %.2f°%s %d%% %dhPa", r.CO2, degrees, unit, r.Humidity, r.Pressure/10)
}
