package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func rawKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(base64.StdEncoding.EncodeToString(rawKey()))
	require.NoError(t, err)

	const msg = "PA3GCULJJJVG2Y3MG42WS4BQIJSFMSDF"
	a, err := box.Seal(msg)
	require.NoError(t, err)
	b, err := box.Seal(msg)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "nonce must differ per seal")

	pt, err := box.Open(a)
	require.NoError(t, err)
	require.Equal(t, msg, pt)
}

func TestNew_KeyEncodings(t *testing.T) {
	t.Parallel()
	k := rawKey()
	for name, key := range map[string]string{
		"base64":     base64.StdEncoding.EncodeToString(k),
		"base64 raw": base64.RawStdEncoding.EncodeToString(k),
		"hex":        hex.EncodeToString(k),
		"raw":        strings.Repeat("k", 32),
	} {
		_, err := New(key)
		require.NoError(t, err, name)
	}
	_, err := New("short")
	require.Error(t, err)
}

func TestOpen_DetectsTamperAndWrongKey(t *testing.T) {
	t.Parallel()
	box, err := New(hex.EncodeToString(rawKey()))
	require.NoError(t, err)
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	parts := strings.Split(sealed, sep)
	ct, _ := base64.StdEncoding.DecodeString(parts[1])
	ct[0] ^= 0xff
	_, err = box.Open(parts[0] + sep + base64.StdEncoding.EncodeToString(ct))
	require.Error(t, err)

	other, err := New(strings.Repeat("z", 32))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)

	_, err = box.Open("no-separator")
	require.ErrorIs(t, err, ErrFormat)
}
