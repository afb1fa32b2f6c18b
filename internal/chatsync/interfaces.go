package chatsync

import (
	"context"

	"github.com/arbob/session-sync/internal/remote"
)

//go:generate mockgen -source=interfaces.go -destination=mocks_test.go -package=chatsync

// RemoteStore is the object store holding encrypted items, backups, the
// manifest and the verification token. remote.GitHubStore implements it.
type RemoteStore interface {
	// Authenticate checks the credential and returns the account.
	Authenticate(ctx context.Context) (remote.Account, error)
	// EnsureRepository creates the backing repository if needed.
	EnsureRepository(ctx context.Context) (bool, error)
	// Location returns the account and repository name.
	Location() (string, string)
	// GetObject returns an object's bytes, or an error wrapping ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
	// PutObject writes one object with optimistic revision checking.
	PutObject(ctx context.Context, path string, content []byte, message string) (string, error)
	// BatchCommit writes files and deletions as one commit.
	BatchCommit(ctx context.Context, files []remote.File, deletions []string, message string) (string, error)
	// ListObjects lists the objects directly under dir.
	ListObjects(ctx context.Context, dir string) ([]remote.ObjectInfo, error)
}

// ContentSource is the local store of items. FileSource implements it.
type ContentSource interface {
	// ListItems returns metadata for every item outside the excluded
	// workspaces, without reading full content.
	ListItems(ctx context.Context, excludeWorkspaces []string) ([]Metadata, error)
	// ReadContent returns an item's raw content. A missing item yields an
	// error wrapping fs.ErrNotExist.
	ReadContent(ctx context.Context, workspaceID, id string) ([]byte, error)
	// WriteContent stores an item's content verbatim.
	WriteContent(ctx context.Context, item Item) error
	// RegisterItem makes a freshly pulled item discoverable to whatever
	// indexes the local store.
	RegisterItem(ctx context.Context, workspaceID string, item Item) error
}
