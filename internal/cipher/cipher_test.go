package cipher

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainForPath(t *testing.T) {
	tests := []struct {
		path string
		want KeyDomain
	}{
		{"ForaO2API/ClientRingDataAES", RingAPI},
		{"ForaO2API", RingAPI},
		{"TaidocWeb/GroupLoginAES", WebAPI},
		{"foraO2API/lowercase", WebAPI},
		{"api/ForaO2API", WebAPI},
		{"", WebAPI},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainForPath(tt.path))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, []byte{0x49, 0x32, 0x56, 0x28, 0x66, 0x72, 0x46, 0x26, 0x39, 0x15, 0x62, 0x46, 0x09, 0x74, 0x23, 0x26}, Key(RingAPI))
	assert.Equal(t, []byte{67, 34, 119, 18, 83, 57, 112, 9, 73, 50, 81, 120, 24, 54, 82, 101}, Key(WebAPI))

	k := Key(RingAPI)
	k[0] = 0
	assert.Equal(t, byte(0x49), Key(RingAPI)[0], "Key must return a copy")
}

func TestEncryptKnownAnswer(t *testing.T) {
	g := NewGateway(nil)

	env, err := g.Encrypt(WebAPI, `{"mode":0}`)
	require.NoError(t, err)
	assert.Equal(t, WebAPI, env.Domain)
	assert.Equal(t, "UjTSbS4XmnzlitV/72Q2IQ==", env.Ciphertext)

	env, err = g.Encrypt(RingAPI, `{"mode":0}`)
	require.NoError(t, err)
	assert.Equal(t, "lgIxIiep51WG9aES9Mk6Lg==", env.Ciphertext)

	raw, err := env.Bytes()
	require.NoError(t, err)
	assert.Len(t, raw, 16)
}

func TestEncryptPadding(t *testing.T) {
	g := NewGateway(nil)
	for _, n := range []int{0, 1, 15, 16, 17, 32, 33} {
		out, err := g.EncryptBytes(WebAPI, bytes.Repeat([]byte("x"), n))
		require.NoError(t, err)
		assert.Zero(t, len(out)%16, "len %d", n)
		assert.GreaterOrEqual(t, len(out), n)
		assert.Less(t, len(out), n+16)
	}
}

func TestDecrypt(t *testing.T) {
	g := NewGateway(nil)

	encrypt := func(d KeyDomain, plain []byte) []byte {
		out, err := g.EncryptBytes(d, plain)
		require.NoError(t, err)
		return out
	}
	pkcs7 := func(plain string) []byte {
		n := 16 - len(plain)%16
		return append([]byte(plain), bytes.Repeat([]byte{byte(n)}, n)...)
	}

	tests := []struct {
		name       string
		domain     KeyDomain
		ciphertext []byte
		want       string
	}{
		{
			name:       "PKCS7 padded response",
			domain:     WebAPI,
			ciphertext: encrypt(WebAPI, pkcs7(`{"ok":true}`)),
			want:       `{"ok":true}`,
		},
		{
			name:       "PKCS7 full padding block",
			domain:     RingAPI,
			ciphertext: encrypt(RingAPI, pkcs7("0123456789abcdef")),
			want:       "0123456789abcdef",
		},
		{
			name:       "zero padded response",
			domain:     RingAPI,
			ciphertext: encrypt(RingAPI, []byte(`{"data":[1,2,3]}x`)),
			want:       `{"data":[1,2,3]}x`,
		},
		{
			name:       "block aligned plaintext without padding",
			domain:     WebAPI,
			ciphertext: encrypt(WebAPI, []byte("abcdefghijklmnoz")),
			want:       "abcdefghijklmnoz",
		},
		{
			name:       "trailing zero bytes in the plaintext are stripped",
			domain:     WebAPI,
			ciphertext: encrypt(WebAPI, []byte("abc\x00\x00")),
			want:       "abc",
		},
		{
			// a block aligned plaintext ending in 0x01 is indistinguishable from PKCS7
			name:       "valid PKCS7 tail wins over zero padding",
			domain:     WebAPI,
			ciphertext: encrypt(WebAPI, []byte("abcdefghijklmno\x01")),
			want:       "abcdefghijklmno",
		},
		{
			name:       "wrong length",
			domain:     WebAPI,
			ciphertext: []byte{1, 2, 3},
			want:       "",
		},
		{
			name:       "empty",
			domain:     WebAPI,
			ciphertext: nil,
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.DecryptBytes(tt.domain, tt.ciphertext))
			assert.Equal(t, tt.want, g.Decrypt(tt.domain, base64.StdEncoding.EncodeToString(tt.ciphertext)))
		})
	}
}

func TestDecryptKnownAnswer(t *testing.T) {
	g := NewGateway(nil)
	assert.Equal(t, "hello", g.Decrypt(WebAPI, "4vZLL0cQ1UuUIyrxY5fNCA=="))
	assert.Equal(t, `{"mode":0}`, g.Decrypt(WebAPI, "UjTSbS4XmnzlitV/72Q2IQ=="))
}

func TestRoundTrip(t *testing.T) {
	g := NewGateway(nil)
	for _, path := range []string{"ForaO2API/ClientRingDataAES", "TaidocWeb/GroupLoginAES"} {
		d := DomainForPath(path)
		env, err := g.Encrypt(d, `{"account":"demo","password":"secret"}`)
		require.NoError(t, err)
		assert.Equal(t, `{"account":"demo","password":"secret"}`, g.Decrypt(d, env.Ciphertext))
	}
}

func TestDecryptFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	g := NewGateway(logger)

	assert.Equal(t, "", g.DecryptBytes(RingAPI, bytes.Repeat([]byte{0xab}, 101)))

	var rawHex string
	for _, e := range hook.AllEntries() {
		if v, ok := e.Data["raw_hex"]; ok {
			rawHex = v.(string)
			assert.Equal(t, "Ring", e.Data["api"])
		}
	}
	assert.Len(t, rawHex, 200)

	hook.Reset()
	assert.Equal(t, "", g.Decrypt(WebAPI, "%%%not-base64"))
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
