package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

var errScanning = errors.New("bluetooth: a scan is already in progress")

// Advertisement is a single advertisement observation: the address that sent
// it and the signal strength it was received with. RSSI is zero when BlueZ
// has not reported one yet.
type Advertisement struct {
	Address MAC
	RSSI    int16
}

// Scan runs LE discovery until the context is cancelled, invoking callback
// for every device BlueZ reports: devices already known to the daemon,
// devices added during the scan, and devices whose properties change while
// scanning. Only one scan may be active per adapter.
func (a *Adapter) Scan(ctx context.Context, callback func(Advertisement)) error {
	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return errScanning
	}

	a.scanning = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.scanning = false
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// This appears to be necessary to receive any BLE discovery results at all.
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.SetDiscoveryFilter", 0)
	}()

	err := a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.SetDiscoveryFilter", 0, map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": true,
	}).Err
	if err != nil {
		return fmt.Errorf("failed to set bluetooth discovery filters %w", err)
	}

	// There's a small race where signals may be dropped by us while we do
	// more setup, so use a buffered channel to avoid missing devices.
	signal := make(chan *dbus.Signal, 1024)
	a.bus.Signal(signal)
	defer a.bus.RemoveSignal(signal)

	propertiesChangedMatchOptions := []dbus.MatchOption{dbus.WithMatchInterface("org.freedesktop.DBus.Properties")}
	if err := a.bus.AddMatchSignalContext(ctx, propertiesChangedMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = a.bus.RemoveMatchSignal(propertiesChangedMatchOptions...)
	}()

	newObjectMatchOptions := []dbus.MatchOption{dbus.WithMatchInterface("org.freedesktop.DBus.ObjectManager")}
	if err := a.bus.AddMatchSignalContext(ctx, newObjectMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = a.bus.RemoveMatchSignal(newObjectMatchOptions...)
	}()

	// Instruct BlueZ to start discovering.
	if err := a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.StartDiscovery", 0).Err; err != nil {
		var dbusError dbus.Error
		if errors.As(err, &dbusError) {
			if dbusError.Name == "org.bluez.Error.InProgress" || dbusError.Error() == "Operation already in progress" {
				err = nil
			}
		}

		if err != nil {
			return fmt.Errorf("failed to start bluetooth discovery %w", err)
		}
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		_ = a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.StopDiscovery", 0).Err
	}()

	// Report devices BlueZ already knows about. A previously discovered
	// target may never advertise again during our scan window.
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := a.bluez.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&managed); err != nil {
		return err
	}

	devices := make(map[dbus.ObjectPath]map[string]dbus.Variant)
	for path, v := range managed {
		device, ok := v["org.bluez.Device1"]
		if !ok {
			continue // not a device
		}
		if !strings.HasPrefix(string(path), string(a.adapter.Path())) {
			continue // not part of our adapter
		}

		devices[path] = device
		if adv, ok := makeAdvertisement(device); ok {
			callback(adv)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig, ok := <-signal:
			if !ok {
				return nil
			}
			// This channel receives anything that we watch for, so we'll have
			// to check for signals that are relevant to us.
			switch sig.Name {
			case "org.freedesktop.DBus.ObjectManager.InterfacesAdded":
				objectPath := sig.Body[0].(dbus.ObjectPath)
				interfaces := sig.Body[1].(map[string]map[string]dbus.Variant)

				rawprops, ok := interfaces["org.bluez.Device1"]
				if !ok {
					continue
				}

				devices[objectPath] = rawprops

				if adv, ok := makeAdvertisement(rawprops); ok {
					callback(adv)
				}
			case "org.freedesktop.DBus.Properties.PropertiesChanged":
				interfaceName := sig.Body[0].(string)

				if interfaceName != "org.bluez.Device1" {
					continue
				}
				changes := sig.Body[1].(map[string]dbus.Variant)
				device, ok := devices[sig.Path]
				if !ok {
					// This shouldn't happen, but protect against it just in
					// case.
					continue
				}

				for k, v := range changes {
					device[k] = v
				}
				// RSSI-only changes are reported too: a changing RSSI is the
				// evidence that the device is still advertising.
				if adv, ok := makeAdvertisement(device); ok {
					callback(adv)
				}
			}
		}
	}
}

func (a *Adapter) IsScanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.scanning
}

// makeAdvertisement creates an Advertisement from raw DBus device properties.
func makeAdvertisement(props map[string]dbus.Variant) (Advertisement, bool) {
	addrStr, _ := props["Address"].Value().(string)
	addr, err := ParseMAC(addrStr)
	if err != nil {
		return Advertisement{}, false
	}

	rssi, _ := props["RSSI"].Value().(int16)

	return Advertisement{
		Address: addr,
		RSSI:    rssi,
	}, true
}
