package chatsync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// sessionsSubdir is the per-workspace directory holding session files.
	sessionsSubdir = "chatSessions"

	// indexFile lists, one per line, the items registered after a pull.
	indexFile = ".index"

	dirPerm  = fs.FileMode(0o755)
	filePerm = fs.FileMode(0o644)
)

// mtimeMin and mtimeMax clamp remote-provided activity times before they
// are applied as file modification times.
var (
	mtimeMin = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	mtimeMax = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// FileSource is the filesystem ContentSource. Items live at
// <root>/<workspace>/chatSessions/<id>.json or .jsonl. Writes are
// serialized by an exclusive lock and land atomically via rename.
type FileSource struct {
	root   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewFileSource returns a source rooted at dir, creating it if needed.
// dir must be absolute.
func NewFileSource(dir string, logger *slog.Logger) (*FileSource, error) {
	if dir == "" {
		return nil, fmt.Errorf("sessions directory must not be empty")
	}

	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("sessions directory must be absolute: %s", dir)
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating sessions directory %s: %w", dir, err)
	}

	return &FileSource{root: filepath.Clean(dir), logger: logger}, nil
}

// Root returns the source's root directory.
func (s *FileSource) Root() string {
	return s.root
}

// ListItems walks every workspace's session directory. Unreadable files
// are logged and skipped. When an identity appears more than once the
// most recently modified file wins.
func (s *FileSource) ListItems(ctx context.Context, excludeWorkspaces []string) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workspaces, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces in %s: %w", s.root, err)
	}

	byID := make(map[string]Metadata)

	for _, ws := range workspaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !ws.IsDir() || slices.Contains(excludeWorkspaces, ws.Name()) {
			continue
		}

		dir := filepath.Join(s.root, ws.Name(), sessionsSubdir)

		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("listing sessions", slog.String("workspace_id", ws.Name()), slog.String("error", err.Error()))
			}

			continue
		}

		for _, e := range entries {
			id, format, ok := parseSessionName(e.Name())
			if !ok || !e.Type().IsRegular() {
				continue
			}

			m, err := s.describe(filepath.Join(dir, e.Name()), ws.Name(), id, format)
			if err != nil {
				s.logger.Warn("reading session metadata",
					slog.String("workspace_id", ws.Name()),
					slog.String("item_id", id),
					slog.String("error", err.Error()),
				)

				continue
			}

			if prev, ok := byID[id]; ok {
				if prev.WorkspaceID != m.WorkspaceID {
					s.logger.Warn("item identity in multiple workspaces",
						slog.String("item_id", id),
						slog.String("workspace_id", prev.WorkspaceID),
						slog.String("other_workspace_id", m.WorkspaceID),
					)
				}

				if prev.ModTime >= m.ModTime {
					continue
				}
			}

			byID[id] = m
		}
	}

	out := make([]Metadata, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b Metadata) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

// describe stats a session file and peeks at its header. The last
// activity time is the later of the recorded one and the file's
// modification time, so appends that do not rewrite the header still
// count as activity.
func (s *FileSource) describe(path, workspaceID, id string, format Format) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Metadata{}, err
	}

	h := ExtractorFor(format).Extract(f)
	mtime := info.ModTime().UnixMilli()

	return Metadata{
		ID:              id,
		WorkspaceID:     workspaceID,
		Title:           h.Title,
		CreationDate:    h.CreationDate,
		LastMessageDate: max(h.LastMessageDate, mtime),
		Format:          format,
		Size:            info.Size(),
		ModTime:         mtime,
	}, nil
}

// ReadContent returns an item's raw bytes.
func (s *FileSource) ReadContent(_ context.Context, workspaceID, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, _, err := s.find(workspaceID, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}

	return data, nil
}

// WriteContent writes an item verbatim via a temp file and rename, then
// sets its modification time to the item's last activity. A copy of the
// item in the other format is removed.
func (s *FileSource) WriteContent(_ context.Context, item Item) error {
	dir, err := s.sessionsDir(item.WorkspaceID)
	if err != nil {
		return err
	}

	if err := checkSegment(item.ID); err != nil {
		return err
	}

	format := item.Format
	if !format.Valid() {
		format = FormatJSON
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", item.ID, err)
	}

	target := filepath.Join(dir, item.ID+"."+string(format))

	tmp, err := os.CreateTemp(dir, "."+item.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", item.ID, err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(item.Content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", item.ID, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", item.ID, err)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("setting mode for %s: %w", item.ID, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("replacing %s: %w", item.ID, err)
	}

	if last := item.LastActivity(); last > 0 {
		mtime := clampMtime(time.UnixMilli(last))
		if err := os.Chtimes(target, mtime, mtime); err != nil {
			return fmt.Errorf("setting mtime for %s: %w", item.ID, err)
		}
	}

	other := FormatJSONL
	if format == FormatJSONL {
		other = FormatJSON
	}

	if err := os.Remove(filepath.Join(dir, item.ID+"."+string(other))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale %s copy of %s: %w", other, item.ID, err)
	}

	return nil
}

// RegisterItem appends the item's identity to the workspace index file
// unless it is already listed.
func (s *FileSource) RegisterItem(_ context.Context, workspaceID string, item Item) error {
	dir, err := s.sessionsDir(workspaceID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(dir, indexFile)

	ids, err := readIndex(path)
	if err != nil {
		return err
	}

	if slices.Contains(ids, item.ID) {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}

	if _, err := fmt.Fprintln(f, item.ID); err != nil {
		f.Close()
		return fmt.Errorf("appending to index: %w", err)
	}

	return f.Close()
}

// Indexed returns the identities registered for a workspace.
func (s *FileSource) Indexed(workspaceID string) ([]string, error) {
	dir, err := s.sessionsDir(workspaceID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readIndex(filepath.Join(dir, indexFile))
}

func readIndex(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	var ids []string

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			ids = append(ids, line)
		}
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	return ids, nil
}

// find locates an item's file in either format. Caller holds mu.
func (s *FileSource) find(workspaceID, id string) (string, Format, error) {
	dir, err := s.sessionsDir(workspaceID)
	if err != nil {
		return "", "", err
	}

	if err := checkSegment(id); err != nil {
		return "", "", err
	}

	for _, f := range []Format{FormatJSONL, FormatJSON} {
		p := filepath.Join(dir, id+"."+string(f))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, f, nil
		}
	}

	return "", "", fmt.Errorf("item %s in workspace %s: %w", id, workspaceID, fs.ErrNotExist)
}

func (s *FileSource) sessionsDir(workspaceID string) (string, error) {
	if err := checkSegment(workspaceID); err != nil {
		return "", fmt.Errorf("workspace id: %w", err)
	}

	return filepath.Join(s.root, workspaceID, sessionsSubdir), nil
}

// checkSegment rejects identities that are not a single safe path
// segment. Remote-provided identities go through here before touching
// the filesystem.
func checkSegment(seg string) error {
	switch {
	case seg == "", seg == ".", seg == "..":
		return fmt.Errorf("invalid path segment %q", seg)
	case strings.ContainsAny(seg, "/\\\x00"):
		return fmt.Errorf("path segment contains separator or null byte: %q", seg)
	}

	return nil
}

func parseSessionName(name string) (string, Format, bool) {
	if strings.HasPrefix(name, ".") {
		return "", "", false
	}

	ext := filepath.Ext(name)
	format := Format(strings.TrimPrefix(ext, "."))

	if !format.Valid() {
		return "", "", false
	}

	id := strings.TrimSuffix(name, ext)

	return id, format, id != ""
}

func clampMtime(t time.Time) time.Time {
	if t.Before(mtimeMin) {
		return mtimeMin
	}

	if t.After(mtimeMax) {
		return mtimeMax
	}

	return t
}
