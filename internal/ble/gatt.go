package ble

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// Service is a GATT service on a connected peripheral device.
type Service struct {
	uuid        uuid.UUID
	adapter     *Adapter
	servicePath string
}

// UUID returns the UUID of this service.
func (s *Service) UUID() uuid.UUID {
	return s.uuid
}

// Services enumerates all GATT services on the device.
//
// On Linux with BlueZ, this waits for the ServicesResolved property (if
// services haven't been resolved yet) and uses the daemon's cached tree.
func (d *Device) Services(ctx context.Context) ([]*Service, error) {
	ticker := time.NewTicker(time.Millisecond * 100)
	defer ticker.Stop()

RESOLVED:
	for {
		resolved, err := d.device.GetProperty("org.bluez.Device1.ServicesResolved")
		if err != nil {
			return nil, err
		}
		if resolved.Value().(bool) {
			break RESOLVED
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Iterate through all objects managed by BlueZ, keeping the services
	// that belong to this device.
	var list map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := d.adapter.bluez.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&list)
	if err != nil {
		return nil, err
	}

	objects := make([]string, 0, len(list))
	for objectPath := range list {
		objects = append(objects, string(objectPath))
	}
	sort.Strings(objects)

	var services []*Service
	for _, objectPath := range objects {
		if !strings.HasPrefix(objectPath, string(d.device.Path())+"/service") {
			continue
		}
		properties, ok := list[dbus.ObjectPath(objectPath)]["org.bluez.GattService1"]
		if !ok {
			continue
		}

		serviceUUID, err := uuid.Parse(properties["UUID"].Value().(string))
		if err != nil {
			continue
		}

		services = append(services, &Service{
			uuid:        serviceUUID,
			adapter:     d.adapter,
			servicePath: objectPath,
		})
	}

	return services, nil
}

// Characteristic is a GATT characteristic on a connected peripheral device.
type Characteristic struct {
	uuid           uuid.UUID
	characteristic dbus.BusObject
}

// UUID returns the UUID of this characteristic.
func (c *Characteristic) UUID() uuid.UUID {
	return c.uuid
}

// Characteristics enumerates all characteristics of this service.
func (s *Service) Characteristics(ctx context.Context) ([]*Characteristic, error) {
	// Iterate through all objects managed by BlueZ, keeping the
	// characteristics below this service.
	var list map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := s.adapter.bluez.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&list)
	if err != nil {
		return nil, err
	}

	objects := make([]string, 0, len(list))
	for objectPath := range list {
		objects = append(objects, string(objectPath))
	}
	sort.Strings(objects)

	var chars []*Characteristic
	for _, objectPath := range objects {
		if !strings.HasPrefix(objectPath, s.servicePath+"/char") {
			continue
		}
		properties, ok := list[dbus.ObjectPath(objectPath)]["org.bluez.GattCharacteristic1"]
		if !ok {
			continue
		}

		cuuid, err := uuid.Parse(properties["UUID"].Value().(string))
		if err != nil {
			continue
		}

		chars = append(chars, &Characteristic{
			uuid:           cuuid,
			characteristic: s.adapter.bus.Object("org.bluez", dbus.ObjectPath(objectPath)),
		})
	}

	return chars, nil
}

// Read reads the current characteristic value.
func (c *Characteristic) Read(ctx context.Context) ([]byte, error) {
	options := make(map[string]interface{})
	var result []byte
	err := c.characteristic.CallWithContext(ctx, "org.bluez.GattCharacteristic1.ReadValue", 0, options).Store(&result)
	if err != nil {
		return nil, err
	}
	return result, nil
}
