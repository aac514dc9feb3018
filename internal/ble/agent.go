package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	agentPath       = dbus.ObjectPath("/aranet4/agent")
	agentInterface  = "org.bluez.Agent1"
	agentCapability = "KeyboardOnly"
	promptTimeout   = 2 * time.Minute
)

// PasskeyPrompter supplies a numeric passkey for a device that requests one
// during pairing. Implementations may prompt interactively or return a fixed
// passkey; returning an error declines the request.
type PasskeyPrompter interface {
	RequestPasskey(ctx context.Context, device string) (uint32, error)
}

// Agent is a pairing agent registered with BlueZ. While registered, passkey
// and PIN requests for pairing exchanges on this bus are delegated to the
// prompter.
type Agent struct {
	bus      *dbus.Conn
	bluez    dbus.BusObject
	prompter PasskeyPrompter
	log      *slog.Logger
}

// RegisterAgent exports a pairing agent on the adapter's bus and makes it the
// default agent for incoming authentication requests.
func RegisterAgent(a *Adapter, prompter PasskeyPrompter, log *slog.Logger) (*Agent, error) {
	agent := &Agent{
		bus:      a.bus,
		bluez:    a.bus.Object("org.bluez", dbus.ObjectPath("/org/bluez")),
		prompter: prompter,
		log:      log,
	}

	if err := a.bus.Export(agent, agentPath, agentInterface); err != nil {
		return nil, fmt.Errorf("could not export pairing agent: %w", err)
	}

	if err := agent.bluez.Call("org.bluez.AgentManager1.RegisterAgent", 0, agentPath, agentCapability).Err; err != nil {
		return nil, fmt.Errorf("could not register pairing agent: %w", err)
	}

	if err := agent.bluez.Call("org.bluez.AgentManager1.RequestDefaultAgent", 0, agentPath).Err; err != nil {
		_ = agent.bluez.Call("org.bluez.AgentManager1.UnregisterAgent", 0, agentPath).Err
		return nil, fmt.Errorf("could not set default pairing agent: %w", err)
	}

	return agent, nil
}

// Close unregisters the agent from BlueZ.
func (a *Agent) Close() error {
	if err := a.bluez.Call("org.bluez.AgentManager1.UnregisterAgent", 0, agentPath).Err; err != nil {
		return err
	}
	return a.bus.Export(nil, agentPath, agentInterface)
}

var errRejected = dbus.NewError("org.bluez.Error.Rejected", nil)

// RequestPasskey is called by BlueZ when the remote device wants a numeric
// passkey.
func (a *Agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	a.log.Info("passkey requested", "device", string(device))

	ctx, cancel := context.WithTimeout(context.Background(), promptTimeout)
	defer cancel()

	passkey, err := a.prompter.RequestPasskey(ctx, string(device))
	if err != nil {
		a.log.Warn("passkey prompt declined", "device", string(device), "err", err)
		return 0, errRejected
	}
	return passkey, nil
}

// RequestPinCode is called by BlueZ for legacy PIN pairing. The same prompt
// is used; the passkey is rendered as a decimal PIN string.
func (a *Agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	a.log.Info("PIN code requested", "device", string(device))

	ctx, cancel := context.WithTimeout(context.Background(), promptTimeout)
	defer cancel()

	passkey, err := a.prompter.RequestPasskey(ctx, string(device))
	if err != nil {
		a.log.Warn("PIN prompt declined", "device", string(device), "err", err)
		return "", errRejected
	}
	return strconv.FormatUint(uint64(passkey), 10), nil
}

// RequestConfirmation is called when both sides display a passkey. The
// sensor has no display, so confirm unconditionally.
func (a *Agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	a.log.Info("confirming passkey", "device", string(device), "passkey", passkey)
	return nil
}

// RequestAuthorization is called for just-works pairing.
func (a *Agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	a.log.Info("authorizing pairing", "device", string(device))
	return nil
}

// AuthorizeService is called when a bonded device connects to a service.
func (a *Agent) AuthorizeService(device dbus.ObjectPath, serviceUUID string) *dbus.Error {
	return nil
}

// DisplayPasskey is called for devices that expect the passkey to be shown.
func (a *Agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	a.log.Info("display passkey", "device", string(device), "passkey", passkey)
	return nil
}

// Release is called when BlueZ unregisters the agent.
func (a *Agent) Release() *dbus.Error {
	return nil
}

// Cancel is called when an outstanding request should be aborted.
func (a *Agent) Cancel() *dbus.Error {
	return nil
}
