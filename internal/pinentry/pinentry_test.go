package pinentry

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePinentry writes a script that mimics the Assuan exchange without a UI.
func fakePinentry(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}

	path := filepath.Join(t.TempDir(), "fake-pinentry")
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRequestPasskey(t *testing.T) {
	p := &Pinentry{Command: fakePinentry(t, `
echo "OK Pleased to meet you"
echo "D 123456"
echo "OK"
`)}

	passkey, err := p.RequestPasskey(context.Background(), "/org/bluez/hci0/dev_ED_12_89_6C_08_37")
	require.NoError(t, err)
	assert.Equal(t, uint32(123456), passkey)
}

func TestRequestPasskeyCancelled(t *testing.T) {
	p := &Pinentry{Command: fakePinentry(t, `
echo "OK Pleased to meet you"
echo "ERR 83886179 Operation cancelled"
`)}

	_, err := p.RequestPasskey(context.Background(), "dev")
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestRequestPasskeyNonNumeric(t *testing.T) {
	p := &Pinentry{Command: fakePinentry(t, `
echo "D letters"
`)}

	_, err := p.RequestPasskey(context.Background(), "dev")
	assert.Error(t, err)
}

func TestRequestPasskeyNoResponse(t *testing.T) {
	p := &Pinentry{Command: fakePinentry(t, `
echo "OK"
`)}

	_, err := p.RequestPasskey(context.Background(), "dev")
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestStatic(t *testing.T) {
	s := &Static{Passkey: 42}
	passkey, err := s.RequestPasskey(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), passkey)
}
