// Package chatsync keeps chat session files in step across devices
// through an encrypted remote store. A sync cycle pulls remote changes,
// then pushes local ones, choosing a winner per item by last activity.
// Content is never merged: an overwritten remote copy is kept as a
// timestamped backup.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/arbob/session-sync/internal/remote"
)

// DefaultMaxItemBytes is the default size ceiling for pushed items.
const DefaultMaxItemBytes = 50 * 1024 * 1024

// Options tunes a Syncer.
type Options struct {
	// MaxItemBytes skips items larger than this; 0 disables the limit.
	MaxItemBytes      int64
	ExcludeWorkspaces []string
	RecentDays        int
	HashWorkers       int
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Result summarises one sync cycle.
type Result struct {
	Pulled    int        `json:"pulled" yaml:"pulled"`
	Pushed    int        `json:"pushed" yaml:"pushed"`
	Backups   int        `json:"backups" yaml:"backups"`
	Failed    int        `json:"failed" yaml:"failed"`
	Oversized int        `json:"oversized" yaml:"oversized"`
	ItemCount int        `json:"item_count" yaml:"item_count"`
	Commit    CommitMode `json:"commit,omitempty" yaml:"commit,omitempty"`
	// ManifestUnreadable is set when the pull phase was skipped because
	// the remote manifest could not be fetched or decrypted.
	ManifestUnreadable bool `json:"manifest_unreadable,omitempty" yaml:"manifest_unreadable,omitempty"`
}

// Syncer is the sync orchestrator. It owns the status state machine and
// the SyncState, and runs at most one cycle at a time: a request that
// arrives while a cycle is running is dropped with ErrSyncInProgress.
type Syncer struct {
	store   RemoteStore
	remote  *RemoteClient
	source  ContentSource
	state   *SyncState
	cache   *HashCache
	scanner *Scanner
	status  *statusTracker
	logger  *slog.Logger

	maxItemBytes int64
	exclude      []string
	recentDays   int
	now          func() time.Time
}

// NewSyncer creates an orchestrator. It starts in setup-required until
// Setup establishes the passphrase.
func NewSyncer(store RemoteStore, source ContentSource, st *SyncState, logger *slog.Logger, opts Options) (*Syncer, error) {
	entries, err := st.HashEntries()
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cache := NewHashCache(entries)
	scanner := NewScanner(source, cache, logger, ScannerOptions{
		ExcludeWorkspaces: opts.ExcludeWorkspaces,
		RecentDays:        opts.RecentDays,
		HashWorkers:       opts.HashWorkers,
	})
	scanner.now = now

	s := &Syncer{
		store:        store,
		remote:       NewRemoteClient(store, logger),
		source:       source,
		state:        st,
		cache:        cache,
		scanner:      scanner,
		status:       newStatusTracker(StateSetupRequired),
		logger:       logger,
		maxItemBytes: opts.MaxItemBytes,
		exclude:      opts.ExcludeWorkspaces,
		recentDays:   opts.RecentDays,
		now:          now,
	}

	if last, err := st.LastSync(); err == nil {
		s.status.update(func(cur *Status) { cur.LastSync = last })
	}

	return s, nil
}

// Remote returns the manifest/item client.
func (s *Syncer) Remote() *RemoteClient {
	return s.remote
}

// Status returns the current status.
func (s *Syncer) Status() Status {
	return s.status.get()
}

// Subscribe registers fn for every status change and returns a function
// that unregisters it.
func (s *Syncer) Subscribe(fn func(Status)) func() {
	return s.status.subscribe(fn)
}

// Setup authenticates against the remote store and establishes the
// passphrase. On a store without a verification token the token is
// created, making this the first device; otherwise passphrase must open
// the existing token or ErrDecryptionFailed is returned.
func (s *Syncer) Setup(ctx context.Context, passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: empty passphrase", syncerrors.ErrSetupRequired)
	}

	acct, err := s.store.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	if _, err := s.store.EnsureRepository(ctx); err != nil {
		return fmt.Errorf("preparing remote repository: %w", err)
	}

	token, err := s.remote.VerificationToken(ctx)

	switch {
	case errors.Is(err, syncerrors.ErrNotFound):
		token, err = CreateVerificationToken(passphrase)
		if err != nil {
			return err
		}

		if err := s.remote.WriteVerificationToken(ctx, token); err != nil {
			return err
		}

		s.logger.Info("initialized remote encryption", slog.String("account", acct.Login))
	case err != nil:
		return fmt.Errorf("reading verification token: %w", err)
	default:
		ok, err := VerifyPassphrase(passphrase, token)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("verifying passphrase: %w", syncerrors.ErrDecryptionFailed)
		}
	}

	owner, repo := s.store.Location()
	if err := s.state.SetRemoteLocation(RemoteLocation{Owner: owner, Repo: repo}); err != nil {
		return err
	}

	s.state.SetPassphrase(passphrase)

	s.status.update(func(cur *Status) {
		if cur.State == StateSetupRequired || cur.State == StateError {
			cur.State = StateIdle
			cur.Error = ""
		}
	})

	return nil
}

// Enable re-enables synchronization after Disable.
func (s *Syncer) Enable() {
	ready := s.state.Passphrase() != ""

	s.status.updateBusy(func(cur *Status, busy bool) {
		if cur.State != StateDisabled {
			return
		}

		switch {
		case busy:
			cur.State = StateSyncing
		case ready:
			cur.State = StateIdle
		default:
			cur.State = StateSetupRequired
		}
	})
}

// Disable turns synchronization off. A running cycle finishes, but its
// outcome does not leave the disabled state.
func (s *Syncer) Disable() {
	s.status.update(func(cur *Status) {
		cur.State = StateDisabled
		cur.Error = ""
	})
}

// Reset clears all local sync state, including the passphrase and the
// device identity. Remote data is untouched. It fails with
// ErrSyncInProgress while a cycle is running, and no cycle can start
// until it returns.
func (s *Syncer) Reset() error {
	if err := s.status.beginReset(); err != nil {
		return err
	}

	if err := s.state.Reset(); err != nil {
		s.status.release(func(*Status) {})
		return err
	}

	s.cache.Clear()

	s.status.release(func(cur *Status) {
		*cur = Status{State: StateSetupRequired}
	})

	return nil
}

// Sync runs one cycle: pull, then push. It returns ErrSyncInProgress,
// ErrSyncDisabled or ErrSetupRequired without doing anything when the
// orchestrator is not idle.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	if err := s.status.beginSync(); err != nil {
		s.logger.Debug("sync request dropped", slog.String("reason", err.Error()))
		return Result{}, err
	}

	start := s.now()
	res, err := s.cycle(ctx)

	if err != nil {
		s.logger.Error("sync failed", slog.String("error", err.Error()), slog.Bool("transient", remote.IsTransient(err)))
		s.status.release(func(cur *Status) {
			if cur.State == StateSyncing {
				cur.State = StateError
				cur.Error = err.Error()
			}
		})

		return res, err
	}

	last := s.now().UnixMilli()
	if err := s.state.SetLastSync(last); err != nil {
		s.logger.Warn("persisting last sync", slog.String("error", err.Error()))
	}

	s.logger.Info("sync complete",
		slog.Int("pulled", res.Pulled),
		slog.Int("pushed", res.Pushed),
		slog.Int("backups", res.Backups),
		slog.Int("failed", res.Failed),
		slog.Int("oversized", res.Oversized),
		slog.String("commit", string(res.Commit)),
		slog.Int("cached_hashes", s.cache.Len()),
		slog.Duration("elapsed", s.now().Sub(start)),
	)

	s.status.release(func(cur *Status) {
		cur.LastSync = last
		cur.ItemCount = res.ItemCount

		if cur.State == StateSyncing {
			cur.State = StateIdle
			cur.Error = ""
		}
	})

	return res, nil
}

func (s *Syncer) cycle(ctx context.Context) (Result, error) {
	var res Result

	passphrase := s.state.Passphrase()
	if passphrase == "" {
		return res, syncerrors.ErrSetupRequired
	}

	if _, err := s.store.Authenticate(ctx); err != nil {
		return res, fmt.Errorf("authenticating: %w", err)
	}

	dec := NewDecryptor(passphrase)

	manifest, err := s.remote.FetchManifest(ctx, dec)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, syncerrors.ErrAuthentication) {
			return res, err
		}

		// Pushing against an empty manifest can fork remote history if the
		// failure was transient.
		s.logger.Warn("manifest unreadable, skipping pull",
			slog.String("error", err.Error()),
			slog.Bool("decryption_failed", isDecryptionFailure(err)),
			slog.Bool("transient", remote.IsTransient(err)),
		)

		manifest = NewManifest()
		res.ManifestUnreadable = true
	} else if err := s.pull(ctx, manifest, dec, &res); err != nil {
		return res, err
	}

	if err := s.push(ctx, manifest, passphrase, &res); err != nil {
		return res, err
	}

	if err := s.state.SaveHashEntries(s.cache.TakeDirty()); err != nil {
		s.logger.Warn("persisting hash cache", slog.String("error", err.Error()))
	}

	return res, nil
}

// inScope filters remote entries down to the workspaces and time window
// this device syncs. Out-of-scope entries are neither pulled nor dropped
// from the manifest.
func (s *Syncer) inScope(entries map[string]ManifestEntry) map[string]ManifestEntry {
	cutoff := int64(0)
	if s.recentDays > 0 {
		cutoff = s.now().Add(-time.Duration(s.recentDays) * 24 * time.Hour).UnixMilli()
	}

	out := make(map[string]ManifestEntry, len(entries))

	for id, e := range entries {
		if slices.Contains(s.exclude, e.WorkspaceID) {
			continue
		}

		if last := e.LastActivity(); cutoff > 0 && last != 0 && last < cutoff {
			continue
		}

		out[id] = e
	}

	return out
}

// plan scans local items and resolves them against the manifest.
// Identities whose local content could not be hashed resolve to skip.
func (s *Syncer) plan(ctx context.Context, manifest *Manifest) (*ScanResult, map[string]Action, error) {
	scan, err := s.scanner.ScanAndHash(ctx)
	if err != nil {
		return nil, nil, err
	}

	actions := ResolveAll(scan.Items, s.inScope(manifest.Sessions), scan.Hashes)
	for id := range scan.Failed {
		actions[id] = ActionSkip
	}

	return scan, actions, nil
}

func (s *Syncer) pull(ctx context.Context, manifest *Manifest, dec *Decryptor, res *Result) error {
	_, actions, err := s.plan(ctx, manifest)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	for _, id := range sortedIDs(actions) {
		if !actions[id].IsPull() {
			continue
		}

		if err := s.pullItem(ctx, manifest.Sessions[id], dec); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			res.Failed++
			s.logger.Warn("pulling item", slog.String("item_id", id), slog.String("error", err.Error()),
				slog.Bool("transient", remote.IsTransient(err)))

			continue
		}

		res.Pulled++
	}

	return nil
}

func (s *Syncer) pullItem(ctx context.Context, entry ManifestEntry, dec *Decryptor) error {
	item, err := s.remote.FetchItem(ctx, entry.ID, dec)
	if err != nil {
		return err
	}

	if item.ID != entry.ID {
		return fmt.Errorf("remote object for %s holds item %s", entry.ID, item.ID)
	}

	if got := HashContent(item.Content); got != entry.SHA {
		s.logger.Warn("remote object does not match manifest hash",
			slog.String("item_id", entry.ID),
			slog.String("manifest_sha", entry.SHA),
			slog.String("object_sha", got),
		)
	}

	if item.WorkspaceID == "" {
		item.WorkspaceID = entry.WorkspaceID
	}

	item.LastMessageDate = max(item.LastMessageDate, entry.LastMessageDate)

	if err := s.source.WriteContent(ctx, item); err != nil {
		return fmt.Errorf("writing %s locally: %w", entry.ID, err)
	}

	if err := s.source.RegisterItem(ctx, item.WorkspaceID, item); err != nil {
		s.logger.Warn("registering pulled item", slog.String("item_id", entry.ID), slog.String("error", err.Error()))
	}

	s.logger.Debug("pulled item", slog.String("item_id", entry.ID), slog.String("workspace_id", item.WorkspaceID))

	return nil
}

func (s *Syncer) push(ctx context.Context, manifest *Manifest, passphrase string, res *Result) error {
	scan, actions, err := s.plan(ctx, manifest)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	next := manifest.Clone()
	device := s.state.DeviceID()
	now := s.now()

	var (
		files []remote.File
		enc   *CachedEncryptor
	)

	for _, id := range sortedIDs(actions) {
		if !actions[id].IsPush() {
			continue
		}

		m := scan.Items[id]

		if s.oversized(m.Size) {
			res.Oversized++
			s.logger.Info("skipping item", slog.String("item_id", id), slog.Int64("size", m.Size),
				slog.String("reason", syncerrors.ErrOversizedItem.Error()))

			continue
		}

		content, err := s.source.ReadContent(ctx, m.WorkspaceID, id)
		if err != nil {
			res.Failed++
			s.logger.Warn("reading item for push", slog.String("item_id", id), slog.String("error", err.Error()))

			continue
		}

		if s.oversized(int64(len(content))) {
			res.Oversized++
			s.logger.Info("skipping item", slog.String("item_id", id), slog.Int("size", len(content)),
				slog.String("reason", syncerrors.ErrOversizedItem.Error()))

			continue
		}

		if enc == nil {
			if enc, err = NewCachedEncryptor(passphrase); err != nil {
				return err
			}
		}

		staged, err := s.stageItem(ctx, Item{Metadata: m, Content: content}, enc, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			res.Failed++
			s.logger.Warn("staging item", slog.String("item_id", id), slog.String("error", err.Error()),
				slog.Bool("transient", remote.IsTransient(err)))

			continue
		}

		if len(staged) > 1 {
			res.Backups++
		}

		files = append(files, staged...)
		next.Sessions[id] = ManifestEntry{
			ID:              id,
			WorkspaceID:     m.WorkspaceID,
			Title:           m.Title,
			CreationDate:    m.CreationDate,
			LastMessageDate: m.LastMessageDate,
			Format:          m.Format,
			SHA:             HashContent(content),
			DeviceID:        device,
			UpdatedAt:       now.UnixMilli(),
		}
		res.Pushed++
	}

	res.ItemCount = len(next.Sessions)

	if len(files) == 0 {
		return nil
	}

	next.DeviceID = device
	next.LastSync = now.UnixMilli()

	plain, err := EncodeManifest(next)
	if err != nil {
		return err
	}

	text, err := enc.EncryptString(plain)
	if err != nil {
		return fmt.Errorf("encrypting manifest: %w", err)
	}

	files = append(files, remote.File{Path: ManifestPath, Content: []byte(text)})

	msg := fmt.Sprintf("Sync %d session(s) from device %s", res.Pushed, shortID(device))

	mode, err := s.remote.Commit(ctx, files, msg)
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	res.Commit = mode

	return nil
}

// stageItem encrypts an item and returns the files to commit for it: a
// backup of the current remote object if one exists, then the new live
// object. The lookup does not consult the manifest: an unreadable
// manifest or an interrupted sequential commit leaves unlisted objects.
func (s *Syncer) stageItem(ctx context.Context, item Item, enc Encryptor, now time.Time) ([]remote.File, error) {
	envelope, err := encodeRemoteItem(item)
	if err != nil {
		return nil, err
	}

	text, err := enc.EncryptString(envelope)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s: %w", item.ID, err)
	}

	var files []remote.File

	current, err := s.store.GetObject(ctx, ItemPath(item.ID))

	switch {
	case errors.Is(err, syncerrors.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("reading %s for backup: %w", item.ID, err)
	default:
		files = append(files, remote.File{Path: BackupPath(item.ID, now, current), Content: current})
	}

	return append(files, remote.File{Path: ItemPath(item.ID), Content: []byte(text)}), nil
}

func (s *Syncer) oversized(n int64) bool {
	return s.maxItemBytes > 0 && n > s.maxItemBytes
}

// Plan reports what the next cycle would do for every item, without
// transferring content.
func (s *Syncer) Plan(ctx context.Context) (map[string]Action, error) {
	passphrase := s.state.Passphrase()
	if passphrase == "" {
		return nil, syncerrors.ErrSetupRequired
	}

	manifest, err := s.remote.FetchManifest(ctx, NewDecryptor(passphrase))
	if err != nil {
		return nil, err
	}

	_, actions, err := s.plan(ctx, manifest)

	return actions, err
}

// LocalItems lists local items in scope.
func (s *Syncer) LocalItems(ctx context.Context) ([]Metadata, error) {
	return s.scanner.Scan(ctx)
}

func sortedIDs(actions map[string]Action) []string {
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}
