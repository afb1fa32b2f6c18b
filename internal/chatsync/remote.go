package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/arbob/session-sync/internal/remote"
)

// CommitMode reports how staged files reached the remote store.
type CommitMode string

const (
	CommitBatch      CommitMode = "batch"
	CommitSequential CommitMode = "sequential"
)

// RemoteClient layers manifest, item and backup handling over a
// RemoteStore.
type RemoteClient struct {
	store  RemoteStore
	logger *slog.Logger
}

// NewRemoteClient wraps store.
func NewRemoteClient(store RemoteStore, logger *slog.Logger) *RemoteClient {
	return &RemoteClient{store: store, logger: logger}
}

// FetchManifest reads and decrypts the manifest. A missing manifest is
// not an error: it yields an empty one.
func (c *RemoteClient) FetchManifest(ctx context.Context, dec *Decryptor) (*Manifest, error) {
	raw, err := c.store.GetObject(ctx, ManifestPath)
	if err != nil {
		if errors.Is(err, syncerrors.ErrNotFound) {
			return NewManifest(), nil
		}

		return nil, fmt.Errorf("fetching manifest: %w", err)
	}

	plaintext, err := dec.DecryptString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decrypting manifest: %w", err)
	}

	m, err := DecodeManifest(plaintext)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// FetchItem reads and decrypts one item's live object.
func (c *RemoteClient) FetchItem(ctx context.Context, id string, dec *Decryptor) (Item, error) {
	return c.fetchItemAt(ctx, ItemPath(id), dec)
}

func (c *RemoteClient) fetchItemAt(ctx context.Context, path string, dec *Decryptor) (Item, error) {
	raw, err := c.store.GetObject(ctx, path)
	if err != nil {
		return Item{}, fmt.Errorf("fetching %s: %w", path, err)
	}

	plaintext, err := dec.DecryptString(strings.TrimSpace(string(raw)))
	if err != nil {
		return Item{}, fmt.Errorf("decrypting %s: %w", path, err)
	}

	return decodeRemoteItem(plaintext)
}

// VerificationToken returns the stored token, or an error wrapping
// ErrNotFound when none was ever written.
func (c *RemoteClient) VerificationToken(ctx context.Context) (string, error) {
	raw, err := c.store.GetObject(ctx, VerificationPath)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(raw)), nil
}

// WriteVerificationToken stores a token on first-time setup.
func (c *RemoteClient) WriteVerificationToken(ctx context.Context, token string) error {
	if _, err := c.store.PutObject(ctx, VerificationPath, []byte(token), "Initialize sync encryption"); err != nil {
		return fmt.Errorf("writing verification token: %w", err)
	}

	return nil
}

// Commit writes files as one batch commit. If the batch fails for any
// reason other than cancellation, every file is written with its own
// sequential put instead, the manifest last so it never references an
// object that was not written. A failed sequential put is returned.
func (c *RemoteClient) Commit(ctx context.Context, files []remote.File, message string) (CommitMode, error) {
	if len(files) == 0 {
		return "", nil
	}

	_, err := c.store.BatchCommit(ctx, files, nil, message)
	if err == nil {
		return CommitBatch, nil
	}

	if ctx.Err() != nil {
		return "", fmt.Errorf("batch commit: %w", ctx.Err())
	}

	c.logger.Warn("batch commit failed, falling back to sequential writes",
		slog.Int("files", len(files)),
		slog.Bool("conflict", errors.Is(err, syncerrors.ErrBatchCommitConflict)),
		slog.Bool("transient", remote.IsTransient(err)),
		slog.String("error", err.Error()),
	)

	for _, f := range manifestLast(files) {
		if _, err := c.store.PutObject(ctx, f.Path, f.Content, message); err != nil {
			return "", fmt.Errorf("sequential write of %s: %w", f.Path, err)
		}
	}

	return CommitSequential, nil
}

// manifestLast returns files in their input order with the manifest
// moved to the end.
func manifestLast(files []remote.File) []remote.File {
	out := make([]remote.File, 0, len(files))

	var manifest []remote.File

	for _, f := range files {
		if f.Path == ManifestPath {
			manifest = append(manifest, f)
			continue
		}

		out = append(out, f)
	}

	return append(out, manifest...)
}

// Backup is one stored backup of an item.
type Backup struct {
	Path string    `json:"path" yaml:"path"`
	Time time.Time `json:"time" yaml:"time"`
	Size int64     `json:"size" yaml:"size"`
}

// ListBackups returns an item's backups, oldest first.
func (c *RemoteClient) ListBackups(ctx context.Context, id string) ([]Backup, error) {
	objs, err := c.store.ListObjects(ctx, BackupDir(id))
	if err != nil {
		return nil, fmt.Errorf("listing backups for %s: %w", id, err)
	}

	var out []Backup

	for _, o := range objs {
		t, ok := BackupTime(o.Path)
		if !ok {
			continue
		}

		out = append(out, Backup{Path: o.Path, Time: t, Size: o.Size})
	}

	slices.SortFunc(out, func(a, b Backup) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}

		return strings.Compare(a.Path, b.Path)
	})

	return out, nil
}

// FetchBackup reads and decrypts a backup object.
func (c *RemoteClient) FetchBackup(ctx context.Context, path string, dec *Decryptor) (Item, error) {
	if !strings.HasPrefix(path, BackupsDir+"/") {
		return Item{}, fmt.Errorf("not a backup path: %s", path)
	}

	return c.fetchItemAt(ctx, path, dec)
}
