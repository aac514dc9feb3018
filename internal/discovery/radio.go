package discovery

import (
	"context"

	"aranet4-exporter/internal/ble"
)

// BlueZRadio adapts *ble.Adapter to the Radio interface. Peripherals it
// hands out are *ble.Device values.
type BlueZRadio struct {
	adapter *ble.Adapter
}

func NewBlueZRadio(adapter *ble.Adapter) *BlueZRadio {
	return &BlueZRadio{adapter: adapter}
}

func (r *BlueZRadio) Scan(ctx context.Context, callback func(ble.Advertisement)) error {
	return r.adapter.Scan(ctx, callback)
}

func (r *BlueZRadio) Peripheral(addr ble.MAC) Peripheral {
	return r.adapter.Device(addr)
}
