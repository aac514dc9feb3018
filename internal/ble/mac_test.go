package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC("ED:12:89:6C:08:37")
	require.NoError(t, err)
	assert.Equal(t, MAC{0xED, 0x12, 0x89, 0x6C, 0x08, 0x37}, mac)
}

func TestParseMACLowercase(t *testing.T) {
	mac, err := ParseMAC("ed:12:89:6c:08:37")
	require.NoError(t, err)
	assert.Equal(t, MAC{0xED, 0x12, 0x89, 0x6C, 0x08, 0x37}, mac)
}

func TestParseMACInvalid(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"bad hex", "ED:12:89:6C:08:ZZ"},
		{"too few segments", "ED:12:89:6C:08"},
		{"too many segments", "ED:12:89:6C:08:37:AA"},
		{"segment too long", "ED:12:89:6C:08:377"},
		{"segment too short", "ED:12:89:6C:08:3"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMAC(tc.in)
			assert.ErrorIs(t, err, ErrMalformedAddress)
		})
	}
}

func TestMACString(t *testing.T) {
	mac, err := ParseMAC("ed:12:89:6c:08:37")
	require.NoError(t, err)
	assert.Equal(t, "ED:12:89:6C:08:37", mac.String())
}
