package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Device is a connection to a remote peripheral.
type Device struct {
	addr    MAC
	device  dbus.BusObject // bluez device interface
	adapter *Adapter       // the adapter that was used to form this device connection
}

// Device returns a handle for the peripheral with the given address. No
// communication happens until a method on the handle is called.
func (a *Adapter) Device(address MAC) *Device {
	devicePath := dbus.ObjectPath(string(a.adapter.Path()) + "/dev_" + strings.Replace(address.String(), ":", "_", -1))
	return &Device{
		addr:    address,
		device:  a.bus.Object("org.bluez", devicePath),
		adapter: a,
	}
}

// Address returns the MAC address of the peripheral.
func (d *Device) Address() MAC {
	return d.addr
}

// Connected reports whether BlueZ currently holds a connection to the device.
func (d *Device) Connected(ctx context.Context) (bool, error) {
	connected, err := d.device.GetProperty("org.bluez.Device1.Connected")
	if err != nil {
		// usually this means the device needs to be discovered first
		return false, err
	}

	return connected.Value().(bool), nil
}

// RSSI reads the received signal strength of the device's advertisements.
// The second return value is false when BlueZ has no current reading, which
// happens whenever the device is out of radio range or not advertising.
func (d *Device) RSSI(ctx context.Context) (int16, bool, error) {
	rssi, err := d.device.GetProperty("org.bluez.Device1.RSSI")
	if err != nil {
		var dbusError dbus.Error
		if errors.As(err, &dbusError) {
			switch dbusError.Name {
			case "org.freedesktop.DBus.Error.InvalidArgs", "org.freedesktop.DBus.Error.UnknownObject":
				// property unset, or the device object is gone
				return 0, false, nil
			}
		}
		return 0, false, err
	}

	value, ok := rssi.Value().(int16)
	if !ok {
		return 0, false, nil
	}
	return value, true, nil
}

// Paired reports whether the device is bonded with the local adapter.
func (d *Device) Paired(ctx context.Context) (bool, error) {
	paired, err := d.device.GetProperty("org.bluez.Device1.Paired")
	if err != nil {
		return false, err
	}
	return paired.Value().(bool), nil
}

// Pair initiates a pairing exchange with the device. A registered agent
// supplies the passkey if the device requires one.
func (d *Device) Pair(ctx context.Context) error {
	err := d.device.CallWithContext(ctx, "org.bluez.Device1.Pair", 0).Err
	if err != nil {
		var dbusError dbus.Error
		if errors.As(err, &dbusError) {
			if dbusError.Name == "org.bluez.Error.AlreadyExists" {
				return nil
			}
		}
		return fmt.Errorf("bluetooth: failed to pair: %w", err)
	}
	return nil
}

// Connect connects to the device, waiting until BlueZ confirms the link.
func (d *Device) Connect(ctx context.Context) error {
	// Already start watching for property changes. We do this before reading
	// the Connected property below to avoid a race condition: if the device
	// were connected between the two calls the signal wouldn't be picked up.
	signal := make(chan *dbus.Signal, 4)
	defer close(signal)

	d.adapter.bus.Signal(signal)
	defer d.adapter.bus.RemoveSignal(signal)

	propertiesChangedMatchOptions := []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchObjectPath(d.device.Path()),
		dbus.WithMatchArg(0, "org.bluez.Device1"),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := d.adapter.bus.AddMatchSignalContext(ctx, propertiesChangedMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = d.adapter.bus.RemoveMatchSignal(propertiesChangedMatchOptions...)
	}()

	// Read whether this device is already connected.
	connected, err := d.device.GetProperty("org.bluez.Device1.Connected")
	if err != nil {
		return err
	}

	if connected.Value().(bool) {
		return nil
	}

	err = d.device.CallWithContext(ctx, "org.bluez.Device1.Connect", 0).Err
	if err != nil {
		var dbusError dbus.Error
		if errors.As(err, &dbusError) {
			if dbusError.Name == "org.bluez.Error.InProgress" || dbusError.Error() == "Operation already in progress" {
				err = nil
			}
		}

		if err != nil {
			return fmt.Errorf("bluetooth: failed to connect: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signal:
			if !ok {
				return errors.New("did not receive connected signal")
			}

			changes := sig.Body[1].(map[string]dbus.Variant)
			if connected, ok := changes["Connected"].Value().(bool); ok && connected {
				return nil
			}
		}
	}
}

// Disconnect drops the connection to the BLE device.
func (d *Device) Disconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*20)
	defer cancel()

	// Watch for property changes before issuing the call, for the same
	// reason as in Connect.
	signal := make(chan *dbus.Signal, 4)
	defer close(signal)

	d.adapter.bus.Signal(signal)
	defer d.adapter.bus.RemoveSignal(signal)

	propertiesChangedMatchOptions := []dbus.MatchOption{dbus.WithMatchInterface("org.freedesktop.DBus.Properties")}
	if err := d.adapter.bus.AddMatchSignalContext(ctx, propertiesChangedMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = d.adapter.bus.RemoveMatchSignal(propertiesChangedMatchOptions...)
	}()

	if err := d.device.CallWithContext(ctx, "org.bluez.Device1.Disconnect", 0).Err; err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signal:
			if !ok {
				return errors.New("did not receive disconnect signal")
			}
			switch sig.Name {
			case "org.freedesktop.DBus.Properties.PropertiesChanged":
				interfaceName := sig.Body[0].(string)
				if interfaceName != "org.bluez.Device1" {
					continue
				}
				if sig.Path != d.device.Path() {
					continue
				}
				changes := sig.Body[1].(map[string]dbus.Variant)
				if connected, ok := changes["Connected"].Value().(bool); ok && !connected {
					return nil
				}
			}
		}
	}
}
