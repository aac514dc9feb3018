// Package pinentry prompts for Bluetooth pairing passkeys. The primary
// implementation spawns a GnuPG pinentry program and speaks just enough of
// its Assuan line protocol to get a PIN back; Static serves automation
// setups where the passkey is known in advance.
package pinentry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrDeclined is returned when the user dismisses the prompt or the prompt
// program reports an error.
var ErrDeclined = errors.New("pinentry: prompt declined")

const defaultCommand = "pinentry"

// Pinentry asks for a passkey by spawning an external pinentry program
// (pinentry-qt, pinentry-curses, ...) and reading its response.
type Pinentry struct {
	// Command is the pinentry binary to spawn. Defaults to "pinentry".
	Command string
}

// RequestPasskey runs the pinentry dialog and returns the entered numeric
// passkey.
func (p *Pinentry) RequestPasskey(ctx context.Context, device string) (uint32, error) {
	command := p.Command
	if command == "" {
		command = defaultCommand
	}

	cmd := exec.CommandContext(ctx, command)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("pinentry: could not start %s: %w", command, err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	requests := []string{
		"SETTITLE Bluetooth PIN\n",
		fmt.Sprintf("SETDESC Enter PIN for device %s\n", device),
		"GETPIN\n",
	}
	for _, req := range requests {
		if _, err := stdin.Write([]byte(req)); err != nil {
			// A dead prompt program surfaces as a missing data line below.
			break
		}
	}

	// Responses are line oriented: "OK" acknowledges each command, the PIN
	// itself arrives as a "D <pin>" data line, and "ERR <code> <desc>"
	// covers cancellation.
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "D "):
			return parsePasskey(strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "ERR"):
			return 0, fmt.Errorf("%w: %s", ErrDeclined, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("pinentry: read failed: %w", err)
	}

	return 0, ErrDeclined
}

func parsePasskey(pin string) (uint32, error) {
	if pin == "" {
		return 0, ErrDeclined
	}
	passkey, err := strconv.ParseUint(pin, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("pinentry: passkey %q is not numeric: %w", pin, err)
	}
	return uint32(passkey), nil
}

// Static returns a fixed passkey without prompting.
type Static struct {
	Passkey uint32
}

func (s *Static) RequestPasskey(ctx context.Context, device string) (uint32, error) {
	return s.Passkey, nil
}
