package chatsync

import (
	"errors"
	"testing"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "correct horse battery staple"

// --- Encrypt / Decrypt ---

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		plaintext  []byte
		passphrase string
	}{
		{"empty", []byte{}, testPassphrase},
		{"text", []byte("hello world"), testPassphrase},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}, "pw"},
		{"unicode passphrase", []byte(`{"requests":[]}`), "pässwörd 🔑"},
		{"empty passphrase", []byte("x"), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Encrypt(tc.plaintext, tc.passphrase)
			require.NoError(t, err)

			got, err := Decrypt(p, tc.passphrase)
			require.NoError(t, err)
			assert.Equal(t, string(tc.plaintext), string(got))
		})
	}
}

func TestEncryptString_RoundTrip(t *testing.T) {
	text, err := EncryptString([]byte("payload"), testPassphrase)
	require.NoError(t, err)

	got, err := DecryptString(text, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestEncrypt_PayloadShape(t *testing.T) {
	p, err := Encrypt([]byte("abc"), testPassphrase)
	require.NoError(t, err)

	assert.Equal(t, PayloadVersion, p.Version)
	assert.Len(t, p.Salt, saltLen)
	assert.Len(t, p.IV, ivLen)
	// ciphertext plus 16-byte tag
	assert.Len(t, p.Data, 3+16)
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	a, err := Encrypt([]byte("same"), testPassphrase)
	require.NoError(t, err)

	b, err := Encrypt([]byte("same"), testPassphrase)
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Data, b.Data)
}

func TestDecrypt_WrongPassphrase(t *testing.T) {
	p, err := Encrypt([]byte("secret"), testPassphrase)
	require.NoError(t, err)

	_, err = Decrypt(p, "wrong")
	assert.ErrorIs(t, err, syncerrors.ErrDecryptionFailed)
}

func TestDecrypt_TamperDetection(t *testing.T) {
	p, err := Encrypt([]byte("do not touch"), testPassphrase)
	require.NoError(t, err)

	dec := NewDecryptor(testPassphrase)

	// Flip every bit of ciphertext and tag, one at a time.
	for i := range p.Data {
		for bit := 0; bit < 8; bit++ {
			tampered := p
			tampered.Data = append([]byte(nil), p.Data...)
			tampered.Data[i] ^= 1 << bit

			got, err := dec.Decrypt(tampered)
			require.ErrorIs(t, err, syncerrors.ErrDecryptionFailed, "byte %d bit %d", i, bit)
			require.Nil(t, got)
		}
	}
}

func TestDecrypt_TamperedIVAndSalt(t *testing.T) {
	p, err := Encrypt([]byte("x"), testPassphrase)
	require.NoError(t, err)

	iv := p
	iv.IV = append([]byte(nil), p.IV...)
	iv.IV[0] ^= 1
	_, err = Decrypt(iv, testPassphrase)
	assert.ErrorIs(t, err, syncerrors.ErrDecryptionFailed)

	salt := p
	salt.Salt = append([]byte(nil), p.Salt...)
	salt.Salt[0] ^= 1
	_, err = Decrypt(salt, testPassphrase)
	assert.ErrorIs(t, err, syncerrors.ErrDecryptionFailed)
}

func TestDecrypt_UnsupportedVersion(t *testing.T) {
	p, err := Encrypt([]byte("x"), testPassphrase)
	require.NoError(t, err)

	p.Version = 2
	_, err = Decrypt(p, testPassphrase)
	assert.ErrorIs(t, err, syncerrors.ErrDecryptionFailed)
}

func TestDecryptString_Malformed(t *testing.T) {
	for _, text := range []string{"!!!not base64", "bm90IGpzb24=", ""} {
		_, err := DecryptString(text, testPassphrase)
		assert.ErrorIs(t, err, syncerrors.ErrDecryptionFailed, "input %q", text)
	}
}

func TestDeriveKey_NFKCNormalization(t *testing.T) {
	salt := make([]byte, saltLen)
	// Fullwidth 'A' (U+FF21) normalizes to ASCII 'A' under NFKC.
	assert.Equal(t, deriveKey("A", salt), deriveKey("Ａ", salt))
	assert.NotEqual(t, deriveKey("A", salt), deriveKey("B", salt))
}

// --- CachedEncryptor / Decryptor ---

func TestCachedEncryptor_SharesSaltFreshIV(t *testing.T) {
	enc, err := NewCachedEncryptor(testPassphrase)
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)

	b, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.Equal(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Data, b.Data)

	got, err := Decrypt(b, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, "same", string(got))
}

func TestCachedEncryptor_DistinctInstancesDistinctSalts(t *testing.T) {
	e1, err := NewCachedEncryptor(testPassphrase)
	require.NoError(t, err)

	e2, err := NewCachedEncryptor(testPassphrase)
	require.NoError(t, err)

	assert.NotEqual(t, e1.salt, e2.salt)
}

func TestDecryptor_CachesPerSalt(t *testing.T) {
	enc, err := NewCachedEncryptor(testPassphrase)
	require.NoError(t, err)

	dec := NewDecryptor(testPassphrase)

	for _, msg := range []string{"one", "two", "three"} {
		text, err := enc.EncryptString([]byte(msg))
		require.NoError(t, err)

		got, err := dec.DecryptString(text)
		require.NoError(t, err)
		assert.Equal(t, msg, string(got))
	}

	assert.Len(t, dec.keys, 1)

	other, err := EncryptString([]byte("four"), testPassphrase)
	require.NoError(t, err)

	_, err = dec.DecryptString(other)
	require.NoError(t, err)
	assert.Len(t, dec.keys, 2)
}

func TestDecryptor_WrongPassphrase(t *testing.T) {
	text, err := EncryptString([]byte("x"), testPassphrase)
	require.NoError(t, err)

	_, err = NewDecryptor("nope").DecryptString(text)
	assert.ErrorIs(t, err, syncerrors.ErrDecryptionFailed)
}

// --- HashContent ---

func TestHashContent(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashContent(nil))
	assert.Equal(t, HashContent([]byte("abc")), HashContent([]byte("abc")))

	corpus := []string{"", "a", "b", "ab", "ba", "abc", "abc\n", `{"a":1}`, `{"a": 1}`}
	seen := make(map[string]string)

	for _, s := range corpus {
		h := HashContent([]byte(s))
		assert.Len(t, h, 64)

		if prev, ok := seen[h]; ok {
			t.Fatalf("collision between %q and %q", prev, s)
		}

		seen[h] = s
	}
}

// --- Verification ---

func TestVerifyPassphrase(t *testing.T) {
	token, err := CreateVerificationToken(testPassphrase)
	require.NoError(t, err)

	ok, err := VerifyPassphrase(testPassphrase, token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassphrase("wrong", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPassphrase_UnexpectedPlaintext(t *testing.T) {
	token, err := EncryptString([]byte("something else"), testPassphrase)
	require.NoError(t, err)

	ok, err := VerifyPassphrase(testPassphrase, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyWithRetries(t *testing.T) {
	token, err := CreateVerificationToken(testPassphrase)
	require.NoError(t, err)

	t.Run("accepts on third attempt", func(t *testing.T) {
		answers := []string{"a", "b", testPassphrase}
		got, err := VerifyWithRetries(func(attempt int) (string, error) {
			return answers[attempt-1], nil
		}, token, 3)
		require.NoError(t, err)
		assert.Equal(t, testPassphrase, got)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		_, err := VerifyWithRetries(func(int) (string, error) {
			calls++
			return "wrong", nil
		}, token, 3)
		assert.ErrorIs(t, err, syncerrors.ErrDecryptionFailed)
		assert.Equal(t, 3, calls)
	})

	t.Run("prompt error aborts", func(t *testing.T) {
		cancelled := errors.New("cancelled")
		_, err := VerifyWithRetries(func(int) (string, error) {
			return "", cancelled
		}, token, 3)
		assert.ErrorIs(t, err, cancelled)
	})
}
