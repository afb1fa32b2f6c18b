package chatsync

import (
	"context"
	"fmt"
	"strings"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of diffs before running the
// semantic cleanup pass.
const diffCleanupThreshold = 2

// BackupDiff is a line diff between a backup and the live remote item.
type BackupDiff struct {
	Backup  string `json:"backup" yaml:"backup"`
	Added   int    `json:"added" yaml:"added"`
	Removed int    `json:"removed" yaml:"removed"`
	// Text renders the diff with "+", "-" and " " line prefixes.
	Text string `json:"text" yaml:"text"`
}

func (s *Syncer) decryptor() (*Decryptor, error) {
	passphrase := s.state.Passphrase()
	if passphrase == "" {
		return nil, syncerrors.ErrSetupRequired
	}

	return NewDecryptor(passphrase), nil
}

// Backups lists the stored backups of an item, oldest first.
func (s *Syncer) Backups(ctx context.Context, id string) ([]Backup, error) {
	return s.remote.ListBackups(ctx, id)
}

// DiffBackup compares a backup with the item's live remote copy. When
// backupPath is empty the newest backup is used.
func (s *Syncer) DiffBackup(ctx context.Context, id, backupPath string) (BackupDiff, error) {
	dec, err := s.decryptor()
	if err != nil {
		return BackupDiff{}, err
	}

	if backupPath == "" {
		backups, err := s.remote.ListBackups(ctx, id)
		if err != nil {
			return BackupDiff{}, err
		}

		if len(backups) == 0 {
			return BackupDiff{}, fmt.Errorf("no backups for %s: %w", id, syncerrors.ErrNotFound)
		}

		backupPath = backups[len(backups)-1].Path
	}

	old, err := s.remote.FetchBackup(ctx, backupPath, dec)
	if err != nil {
		return BackupDiff{}, err
	}

	live, err := s.remote.FetchItem(ctx, id, dec)
	if err != nil {
		return BackupDiff{}, err
	}

	d := LineDiff(string(old.Content), string(live.Content))
	d.Backup = backupPath

	return d, nil
}

// RestoreBackup writes a backup's content over the local copy and marks
// it as the latest activity, so the next cycle pushes it. The live
// remote copy is in turn backed up by that push.
func (s *Syncer) RestoreBackup(ctx context.Context, id, backupPath string) error {
	dec, err := s.decryptor()
	if err != nil {
		return err
	}

	item, err := s.remote.FetchBackup(ctx, backupPath, dec)
	if err != nil {
		return err
	}

	if item.ID != id {
		return fmt.Errorf("backup %s holds item %s, not %s", backupPath, item.ID, id)
	}

	item.LastMessageDate = s.now().UnixMilli()

	if err := s.source.WriteContent(ctx, item); err != nil {
		return fmt.Errorf("restoring %s: %w", id, err)
	}

	return nil
}

// LineDiff computes a line-oriented diff from old to updated.
func LineDiff(old, updated string) BackupDiff {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(old, updated)
	diffs := dmp.DiffMain(a, b, false)

	// Clean up while each rune still stands for a whole line.
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	diffs = dmp.DiffCharsToLines(diffs, lines)

	var (
		out strings.Builder
		d   BackupDiff
	)

	for _, diff := range diffs {
		prefix := " "

		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}

		for _, line := range splitLines(diff.Text) {
			switch prefix {
			case "+":
				d.Added++
			case "-":
				d.Removed++
			}

			out.WriteString(prefix)
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}

	d.Text = out.String()

	return d
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
