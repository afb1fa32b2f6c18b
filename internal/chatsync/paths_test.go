package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSafeID(t *testing.T) {
	assert.Equal(t, "abc-DEF_1.2", SafeID("abc-DEF_1.2"))

	escaped := SafeID("a/b c")
	assert.Regexp(t, `^a_b_c-[0-9a-f]{8}$`, escaped)

	// Distinct identities that flatten to the same characters stay distinct.
	assert.NotEqual(t, SafeID("a/b"), SafeID("a b"))

	for _, id := range []string{"", ".", "..", "../etc", "ü"} {
		got := SafeID(id)
		assert.NotContains(t, got, "/")
		assert.NotEqual(t, "..", got)
		assert.NotEqual(t, ".", got)
		assert.NotEmpty(t, got)
	}
}

func TestItemAndBackupPaths(t *testing.T) {
	assert.Equal(t, "sessions/s1.enc", ItemPath("s1"))
	assert.Equal(t, "backups/s1", BackupDir("s1"))

	ts := time.Date(2024, 3, 5, 7, 8, 9, 123_000_000, time.FixedZone("X", 3600))
	p := BackupPath("s1", ts, []byte("old"))
	assert.Regexp(t, `^backups/s1/20240305T060809\.123Z-[0-9a-f]{8}\.enc$`, p)

	got, ok := BackupTime(p)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))

	// Paths written before the digest suffix still parse.
	got, ok = BackupTime("backups/s1/20240305T060809.123Z.enc")
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))

	_, ok = BackupTime("backups/s1/readme.txt")
	assert.False(t, ok)
}

func TestBackupPathsSortByTime(t *testing.T) {
	earlier := BackupPath("s1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), []byte("zzz"))
	later := BackupPath("s1", time.Date(2024, 1, 1, 0, 0, 0, 1_000_000, time.UTC), []byte("aaa"))
	assert.Less(t, earlier, later)
}

func TestBackupPath_DistinctContentSameMillisecond(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := BackupPath("s1", ts, []byte("v1"))
	second := BackupPath("s1", ts, []byte("v2"))
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, BackupPath("s1", ts, []byte("v1")))
}
