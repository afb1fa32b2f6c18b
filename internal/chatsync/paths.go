package chatsync

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
	"time"
)

const (
	// ManifestPath is the remote path of the encrypted manifest.
	ManifestPath = "manifest.enc"

	// VerificationPath is the remote path of the passphrase verification token.
	VerificationPath = "verification.enc"

	// SessionsDir holds one encrypted object per item.
	SessionsDir = "sessions"

	// BackupsDir holds one directory of timestamped backups per item.
	BackupsDir = "backups"

	objectExt = ".enc"

	// backupTimeLayout sorts lexically in time order.
	backupTimeLayout = "20060102T150405.000Z"
)

// SafeID maps an item identity to a single path segment. Identities made
// only of [A-Za-z0-9._-] are used as-is; anything else has the offending
// characters replaced with '_' and a short digest of the full id appended
// so distinct identities keep distinct paths.
func SafeID(id string) string {
	if id != "" && id != "." && id != ".." && isSafe(id) {
		return id
	}

	var b strings.Builder

	for _, r := range id {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	sum := sha256.Sum256([]byte(id))

	return b.String() + "-" + hex.EncodeToString(sum[:4])
}

func isSafe(s string) bool {
	for _, r := range s {
		if !isSafeRune(r) {
			return false
		}
	}

	return true
}

func isSafeRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-'
}

// ItemPath returns the remote path of an item's live object.
func ItemPath(id string) string {
	return path.Join(SessionsDir, SafeID(id)+objectExt)
}

// BackupDir returns the remote directory holding an item's backups.
func BackupDir(id string) string {
	return path.Join(BackupsDir, SafeID(id))
}

// BackupPath returns the backup path for content of an item overwritten
// at t. A short digest of content follows the timestamp, so two distinct
// backups taken within the same millisecond never share a path.
func BackupPath(id string, t time.Time, content []byte) string {
	sum := sha256.Sum256(content)
	name := t.UTC().Format(backupTimeLayout) + "-" + hex.EncodeToString(sum[:4])

	return path.Join(BackupDir(id), name+objectExt)
}

// BackupTime parses the timestamp out of a backup path. Names without
// the digest suffix are accepted too.
func BackupTime(p string) (time.Time, bool) {
	name := strings.TrimSuffix(path.Base(p), objectExt)
	name, _, _ = strings.Cut(name, "-")

	t, err := time.Parse(backupTimeLayout, name)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}
