// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc

package ble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const defaultAdapter = "hci0"

// Adapter is a local Bluetooth adapter managed by BlueZ.
type Adapter struct {
	id      string
	bus     *dbus.Conn
	bluez   dbus.BusObject // object at /
	adapter dbus.BusObject // object at /org/bluez/hciX
	address string

	mu       sync.Mutex
	scanning bool
}

type adapterOptions struct {
	dbusAddress string
	device      string
}

type AdapterOption interface {
	apply(*adapterOptions)
}

type adapterOptionFunc func(*adapterOptions)

func (f adapterOptionFunc) apply(o *adapterOptions) {
	f(o)
}

// WithDevice selects the local adapter, e.g. "hci0".
func WithDevice(device string) AdapterOption {
	return adapterOptionFunc(func(o *adapterOptions) {
		o.device = device
	})
}

// WithDbusAddress connects to a specific D-Bus endpoint rather than the
// system bus.
func WithDbusAddress(address string) AdapterOption {
	return adapterOptionFunc(func(o *adapterOptions) {
		o.dbusAddress = address
	})
}

// NewAdapter connects to BlueZ and powers the selected adapter.
func NewAdapter(options ...AdapterOption) (*Adapter, error) {
	opts := adapterOptions{
		device: defaultAdapter,
	}

	for _, o := range options {
		o.apply(&opts)
	}

	var err error
	var bus *dbus.Conn

	if opts.dbusAddress == "" {
		bus, err = dbus.ConnectSystemBus()
	} else {
		bus, err = dbus.Connect(opts.dbusAddress, dbus.WithAuth(dbus.AuthAnonymous()))
	}

	if err != nil {
		return nil, err
	}

	a := &Adapter{
		id: opts.device,
	}

	a.bus = bus
	a.bluez = a.bus.Object("org.bluez", dbus.ObjectPath("/"))
	a.adapter = a.bus.Object("org.bluez", dbus.ObjectPath("/org/bluez/"+a.id))

	addr, err := a.adapter.GetProperty("org.bluez.Adapter1.Address")
	if err != nil {
		if err, ok := err.(dbus.Error); ok && err.Name == "org.freedesktop.DBus.Error.UnknownObject" {
			return nil, fmt.Errorf("bluetooth: adapter %s does not exist", a.adapter.Path())
		}
		return nil, fmt.Errorf("could not activate BlueZ adapter: %w", err)
	}

	if err := addr.Store(&a.address); err != nil {
		return nil, err
	}

	if err := a.adapter.SetProperty("org.bluez.Adapter1.Powered", dbus.MakeVariant(true)); err != nil {
		return nil, fmt.Errorf("could not power adapter %s: %w", a.id, err)
	}

	return a, nil
}

func (a *Adapter) Close() error {
	return a.bus.Close()
}

// Address returns the MAC address of the local adapter.
func (a *Adapter) Address() (MAC, error) {
	if a.address == "" {
		return MAC{}, errors.New("adapter not enabled")
	}
	return ParseMAC(a.address)
}
