package chatsync

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// pbkdf2Iterations is the PBKDF2-HMAC-SHA512 work factor.
	pbkdf2Iterations = 100_000

	// keyLen is the derived AES-256 key length in bytes.
	keyLen = 32

	// saltLen is the random salt length in bytes.
	saltLen = 16

	// ivLen is the AES-GCM nonce length in bytes.
	ivLen = 12

	// PayloadVersion is the only payload version this build reads or writes.
	PayloadVersion = 1

	// verificationPlaintext is the fixed text sealed in the verification token.
	verificationPlaintext = "session-sync-verification-v1"
)

// Payload is a self-contained encrypted object. Data holds the GCM
// ciphertext with the 16-byte authentication tag appended.
type Payload struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	IV      []byte `json:"iv"`
	Data    []byte `json:"data"`
}

// Encode serializes the payload to the base64 text stored remotely.
func (p Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePayload parses stored payload text. Malformed input is reported as
// ErrDecryptionFailed since it is indistinguishable from corruption.
func DecodePayload(text string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: payload is not base64: %v", syncerrors.ErrDecryptionFailed, err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: payload is not valid JSON: %v", syncerrors.ErrDecryptionFailed, err)
	}

	return p, nil
}

// deriveKey derives the AES key from passphrase and salt. The passphrase
// is normalized to NFKC so the same passphrase typed on different
// platforms derives the same key.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(norm.NFKC.String(passphrase)), salt, pbkdf2Iterations, keyLen, sha512.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return gcm, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}

	return b, nil
}

func seal(gcm cipher.AEAD, salt, plaintext []byte) (Payload, error) {
	iv, err := randomBytes(ivLen)
	if err != nil {
		return Payload{}, err
	}

	return Payload{
		Version: PayloadVersion,
		Salt:    salt,
		IV:      iv,
		Data:    gcm.Seal(nil, iv, plaintext, nil),
	}, nil
}

func open(gcm cipher.AEAD, p Payload) ([]byte, error) {
	if len(p.IV) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad IV length %d", syncerrors.ErrDecryptionFailed, len(p.IV))
	}

	plaintext, err := gcm.Open(nil, p.IV, p.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", syncerrors.ErrDecryptionFailed, err)
	}

	return plaintext, nil
}

func checkVersion(p Payload) error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: unsupported payload version %d", syncerrors.ErrDecryptionFailed, p.Version)
	}

	if len(p.Salt) != saltLen {
		return fmt.Errorf("%w: bad salt length %d", syncerrors.ErrDecryptionFailed, len(p.Salt))
	}

	return nil
}

// Encrypt seals plaintext under a key derived from a fresh salt, using a
// fresh IV.
func Encrypt(plaintext []byte, passphrase string) (Payload, error) {
	salt, err := randomBytes(saltLen)
	if err != nil {
		return Payload{}, err
	}

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return Payload{}, err
	}

	return seal(gcm, salt, plaintext)
}

// Decrypt opens a payload. Any authentication or format failure wraps
// ErrDecryptionFailed.
func Decrypt(p Payload, passphrase string) ([]byte, error) {
	if err := checkVersion(p); err != nil {
		return nil, err
	}

	gcm, err := newGCM(deriveKey(passphrase, p.Salt))
	if err != nil {
		return nil, err
	}

	return open(gcm, p)
}

// EncryptString encrypts plaintext and returns the encoded payload text.
func EncryptString(plaintext []byte, passphrase string) (string, error) {
	p, err := Encrypt(plaintext, passphrase)
	if err != nil {
		return "", err
	}

	return p.Encode()
}

// DecryptString decodes payload text and decrypts it.
func DecryptString(text, passphrase string) ([]byte, error) {
	p, err := DecodePayload(text)
	if err != nil {
		return nil, err
	}

	return Decrypt(p, passphrase)
}

// Encryptor produces encoded payloads.
type Encryptor interface {
	EncryptString(plaintext []byte) (string, error)
}

// CachedEncryptor derives its key once from a single salt and reuses it
// for every payload it produces. Each payload still gets a fresh IV.
// Scope one to a single push; never persist it.
type CachedEncryptor struct {
	salt []byte
	gcm  cipher.AEAD
}

// NewCachedEncryptor derives the key for a fresh salt.
func NewCachedEncryptor(passphrase string) (*CachedEncryptor, error) {
	salt, err := randomBytes(saltLen)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	return &CachedEncryptor{salt: salt, gcm: gcm}, nil
}

// Encrypt seals plaintext with the cached key.
func (e *CachedEncryptor) Encrypt(plaintext []byte) (Payload, error) {
	return seal(e.gcm, e.salt, plaintext)
}

// EncryptString seals plaintext and returns the encoded payload text.
func (e *CachedEncryptor) EncryptString(plaintext []byte) (string, error) {
	p, err := e.Encrypt(plaintext)
	if err != nil {
		return "", err
	}

	return p.Encode()
}

// Decryptor opens payloads for one passphrase, deriving each distinct
// salt's key once. Payloads written by one CachedEncryptor share a salt,
// so a pull of many items pays for PBKDF2 once. Safe for concurrent use.
type Decryptor struct {
	passphrase string

	mu   sync.Mutex
	keys map[string]cipher.AEAD
}

// NewDecryptor returns a Decryptor for passphrase.
func NewDecryptor(passphrase string) *Decryptor {
	return &Decryptor{passphrase: passphrase, keys: make(map[string]cipher.AEAD)}
}

// Decrypt opens p, wrapping failures with ErrDecryptionFailed.
func (d *Decryptor) Decrypt(p Payload) ([]byte, error) {
	if err := checkVersion(p); err != nil {
		return nil, err
	}

	gcm, err := d.cipherFor(p.Salt)
	if err != nil {
		return nil, err
	}

	return open(gcm, p)
}

// DecryptString decodes and opens payload text.
func (d *Decryptor) DecryptString(text string) ([]byte, error) {
	p, err := DecodePayload(text)
	if err != nil {
		return nil, err
	}

	return d.Decrypt(p)
}

func (d *Decryptor) cipherFor(salt []byte) (cipher.AEAD, error) {
	k := string(salt)

	d.mu.Lock()
	defer d.mu.Unlock()

	if gcm, ok := d.keys[k]; ok {
		return gcm, nil
	}

	gcm, err := newGCM(deriveKey(d.passphrase, salt))
	if err != nil {
		return nil, err
	}

	d.keys[k] = gcm

	return gcm, nil
}

// HashContent returns the hex SHA-256 of content. Used for change
// detection only.
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// CreateVerificationToken encrypts a fixed plaintext so another device
// can check a passphrase without touching the manifest.
func CreateVerificationToken(passphrase string) (string, error) {
	return EncryptString([]byte(verificationPlaintext), passphrase)
}

// VerifyPassphrase reports whether passphrase opens token. A token that
// opens to unexpected plaintext is treated as a mismatch. Errors other
// than a failed decryption are returned.
func VerifyPassphrase(passphrase, token string) (bool, error) {
	plaintext, err := DecryptString(token, passphrase)
	if err != nil {
		if isDecryptionFailure(err) {
			return false, nil
		}

		return false, err
	}

	return string(plaintext) == verificationPlaintext, nil
}

// PassphrasePrompt asks for a passphrase. attempt starts at 1.
type PassphrasePrompt func(attempt int) (string, error)

// VerifyWithRetries prompts up to attempts times until a passphrase opens
// token. It returns the accepted passphrase, or ErrDecryptionFailed once
// the attempts are exhausted. Prompt errors abort immediately.
func VerifyWithRetries(prompt PassphrasePrompt, token string, attempts int) (string, error) {
	for i := 1; i <= attempts; i++ {
		passphrase, err := prompt(i)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}

		ok, err := VerifyPassphrase(passphrase, token)
		if err != nil {
			return "", err
		}

		if ok {
			return passphrase, nil
		}
	}

	return "", fmt.Errorf("%w: passphrase rejected after %d attempts", syncerrors.ErrDecryptionFailed, attempts)
}

func isDecryptionFailure(err error) bool {
	return errors.Is(err, syncerrors.ErrDecryptionFailed)
}
