// Package remote talks to the remote object store that holds encrypted
// session objects. The store is a GitHub repository: single objects go
// through the contents API and multi-object commits through the git data
// API (ref -> commit -> tree), which lets a whole push land as one
// commit.
package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"

	// requestTimeout bounds every REST call.
	requestTimeout = 60 * time.Second

	// InlineBlobLimit is the largest object embedded directly in a tree
	// request. Bigger objects are uploaded as separate blobs first so a
	// single request body stays bounded.
	InlineBlobLimit = 500 * 1024

	apiVersion   = "2022-11-28"
	mediaJSON    = "application/vnd.github+json"
	mediaRaw     = "application/vnd.github.raw+json"
	fileMode     = "100644"
	repoDescText = "Encrypted chat session sync"
)

// File is one object staged for a commit.
type File struct {
	Path    string
	Content []byte
}

// Account identifies the authenticated user.
type Account struct {
	Login string
}

// ObjectInfo describes an object found by ListObjects.
type ObjectInfo struct {
	Path string
	Size int64
}

// Config holds the parameters needed to reach a repository.
type Config struct {
	BaseURL string
	Token   string
	// Owner may be empty; Authenticate then fills it with the account login.
	Owner string
	Repo  string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// GitHubStore is the remote object store backed by one repository.
type GitHubStore struct {
	client *resty.Client
	logger *slog.Logger

	mu     sync.Mutex
	owner  string
	repo   string
	branch string
	login  string
}

// NewGitHubStore creates a store for the configured repository.
func NewGitHubStore(cfg Config, logger *slog.Logger) (*GitHubStore, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("creating github store: %w: missing token", syncerrors.ErrAuthentication)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf("creating github store: empty repository name")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}

	client.
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", mediaJSON).
		SetHeader("X-GitHub-Api-Version", apiVersion).
		SetError(&apiError{})

	return &GitHubStore{
		client: client,
		logger: logger,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
	}, nil
}

// Location returns the owner and repository name. The owner is empty
// until Authenticate has run when none was configured.
func (g *GitHubStore) Location() (string, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.owner, g.repo
}

// Authenticate checks the bearer credential and resolves the account.
func (g *GitHubStore) Authenticate(ctx context.Context) (Account, error) {
	var user struct {
		Login string `json:"login"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&user).
		Get("/user")
	if err := checkResponse("get user", resp, err); err != nil {
		if errors.Is(err, syncerrors.ErrNotFound) {
			return Account{}, fmt.Errorf("get user: %w", syncerrors.ErrAuthentication)
		}

		return Account{}, err
	}

	if user.Login == "" {
		return Account{}, fmt.Errorf("get user: %w: empty login", syncerrors.ErrAuthentication)
	}

	g.mu.Lock()
	g.login = user.Login
	if g.owner == "" {
		g.owner = user.Login
	}
	g.mu.Unlock()

	return Account{Login: user.Login}, nil
}

// EnsureRepository creates the private repository when it does not exist.
// Returns true when a repository was created.
func (g *GitHubStore) EnsureRepository(ctx context.Context) (bool, error) {
	if _, err := g.defaultBranch(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, syncerrors.ErrNotFound) {
		return false, err
	}

	g.mu.Lock()
	owner, repo, login := g.owner, g.repo, g.login
	g.mu.Unlock()

	endpoint := "/user/repos"
	if owner != "" && owner != login {
		endpoint = "/orgs/" + url.PathEscape(owner) + "/repos"
	}

	var created struct {
		DefaultBranch string `json:"default_branch"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"name":        repo,
			"private":     true,
			"description": repoDescText,
		}).
		SetResult(&created).
		Post(endpoint)
	if err := checkResponse("create repository", resp, err); err != nil {
		return false, err
	}

	g.mu.Lock()
	g.branch = created.DefaultBranch
	g.mu.Unlock()

	g.logger.Info("created remote repository",
		slog.String("owner", owner),
		slog.String("repo", repo),
	)

	return true, nil
}

// GetObject returns the raw bytes stored at path, or an error wrapping
// ErrNotFound when nothing is stored there.
func (g *GitHubStore) GetObject(ctx context.Context, path string) ([]byte, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Accept", mediaRaw).
		Get(g.contentsURL(path))
	if err := checkResponse("get "+path, resp, err); err != nil {
		return nil, err
	}

	return resp.Body(), nil
}

// PutObject writes a single object in its own commit. The current blob
// sha is sent as the revision token, so a concurrent writer that changed
// the object in between makes the write fail instead of clobbering it.
// Returns the new commit sha.
func (g *GitHubStore) PutObject(ctx context.Context, path string, content []byte, message string) (string, error) {
	sha, err := g.objectSHA(ctx, path)
	if err != nil && !errors.Is(err, syncerrors.ErrNotFound) {
		return "", err
	}

	body := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if sha != "" {
		body["sha"] = sha
	}

	var result struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Put(g.contentsURL(path))
	if resp != nil && (resp.StatusCode() == http.StatusConflict || resp.StatusCode() == http.StatusUnprocessableEntity) {
		return "", fmt.Errorf("put %s: revision changed concurrently (%d): %s", path, resp.StatusCode(), errorMessage(resp))
	}

	if err := checkResponse("put "+path, resp, err); err != nil {
		return "", err
	}

	return result.Commit.SHA, nil
}

// ListObjects returns the files directly under dir. A missing directory
// yields an empty list.
func (g *GitHubStore) ListObjects(ctx context.Context, dir string) ([]ObjectInfo, error) {
	var entries []struct {
		Path string `json:"path"`
		Size int64  `json:"size"`
		Type string `json:"type"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&entries).
		Get(g.contentsURL(dir))
	if err := checkResponse("list "+dir, resp, err); err != nil {
		if errors.Is(err, syncerrors.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	var out []ObjectInfo

	for _, e := range entries {
		if e.Type != "file" {
			continue
		}

		out = append(out, ObjectInfo{Path: e.Path, Size: e.Size})
	}

	return out, nil
}

// BatchCommit writes files and removes deletions in a single commit on
// the default branch:
//
//  1. read the branch head
//  2. read the head commit's tree
//  3. upload oversized objects as blobs, inline the rest
//  4. create a tree on top of the base tree
//  5. create a commit whose parent is the head
//  6. fast-forward the branch ref
//
// A repository without history, or a head that moved before step 6,
// yields an error wrapping ErrBatchCommitConflict. Any failure leaves the
// branch untouched.
func (g *GitHubStore) BatchCommit(ctx context.Context, files []File, deletions []string, message string) (string, error) {
	branch, err := g.defaultBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("batch commit: %w", err)
	}

	head, err := g.headSHA(ctx, branch)
	if err != nil {
		return "", err
	}

	baseTree, err := g.commitTree(ctx, head)
	if err != nil {
		return "", err
	}

	entries := make([]any, 0, len(files)+len(deletions))

	for _, f := range files {
		entry, err := g.treeEntry(ctx, f)
		if err != nil {
			return "", err
		}

		entries = append(entries, entry)
	}

	for _, p := range deletions {
		entries = append(entries, deleteEntry{Path: p, Mode: fileMode, Type: "blob"})
	}

	var tree struct {
		SHA string `json:"sha"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"base_tree": baseTree, "tree": entries}).
		SetResult(&tree).
		Post(g.repoURL("/git/trees"))
	if err := checkResponse("create tree", resp, err); err != nil {
		return "", err
	}

	var commit struct {
		SHA string `json:"sha"`
	}

	resp, err = g.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"message": message,
			"tree":    tree.SHA,
			"parents": []string{head},
		}).
		SetResult(&commit).
		Post(g.repoURL("/git/commits"))
	if err := checkResponse("create commit", resp, err); err != nil {
		return "", err
	}

	resp, err = g.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"sha": commit.SHA, "force": false}).
		Patch(g.repoURL("/git/refs/heads/" + escapePath(branch)))
	if resp != nil && resp.StatusCode() == http.StatusUnprocessableEntity {
		return "", fmt.Errorf("update ref %s: %w: head moved concurrently", branch, syncerrors.ErrBatchCommitConflict)
	}

	if err := checkResponse("update ref "+branch, resp, err); err != nil {
		return "", err
	}

	return commit.SHA, nil
}

type inlineEntry struct {
	Path    string `json:"path"`
	Mode    string `json:"mode"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type blobEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// deleteEntry marks a path as removed: the API requires an explicit
// "sha": null, so SHA has no omitempty.
type deleteEntry struct {
	Path string  `json:"path"`
	Mode string  `json:"mode"`
	Type string  `json:"type"`
	SHA  *string `json:"sha"`
}

func (g *GitHubStore) treeEntry(ctx context.Context, f File) (any, error) {
	// Inline tree content must be UTF-8 text.
	if len(f.Content) <= InlineBlobLimit && utf8.Valid(f.Content) {
		return inlineEntry{Path: f.Path, Mode: fileMode, Type: "blob", Content: string(f.Content)}, nil
	}

	var blob struct {
		SHA string `json:"sha"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"content":  base64.StdEncoding.EncodeToString(f.Content),
			"encoding": "base64",
		}).
		SetResult(&blob).
		Post(g.repoURL("/git/blobs"))
	if err := checkResponse("create blob "+f.Path, resp, err); err != nil {
		return nil, err
	}

	return blobEntry{Path: f.Path, Mode: fileMode, Type: "blob", SHA: blob.SHA}, nil
}

func (g *GitHubStore) headSHA(ctx context.Context, branch string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&ref).
		Get(g.repoURL("/git/ref/heads/" + escapePath(branch)))
	// An empty repository answers 409 ("Git Repository is empty") and a
	// repository whose branch was never created answers 404.
	if resp != nil && (resp.StatusCode() == http.StatusConflict || resp.StatusCode() == http.StatusNotFound) {
		return "", fmt.Errorf("read head of %s: %w: repository has no history", branch, syncerrors.ErrBatchCommitConflict)
	}

	if err := checkResponse("read head of "+branch, resp, err); err != nil {
		return "", err
	}

	return ref.Object.SHA, nil
}

func (g *GitHubStore) commitTree(ctx context.Context, commitSHA string) (string, error) {
	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&commit).
		Get(g.repoURL("/git/commits/" + url.PathEscape(commitSHA)))
	if err := checkResponse("read commit "+commitSHA, resp, err); err != nil {
		return "", err
	}

	return commit.Tree.SHA, nil
}

// objectSHA returns the blob sha of the object at path.
func (g *GitHubStore) objectSHA(ctx context.Context, path string) (string, error) {
	var meta struct {
		SHA string `json:"sha"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&meta).
		Get(g.contentsURL(path))
	if err := checkResponse("stat "+path, resp, err); err != nil {
		return "", err
	}

	return meta.SHA, nil
}

func (g *GitHubStore) defaultBranch(ctx context.Context) (string, error) {
	g.mu.Lock()
	branch := g.branch
	g.mu.Unlock()

	if branch != "" {
		return branch, nil
	}

	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&repo).
		Get(g.repoURL(""))
	if err := checkResponse("get repository", resp, err); err != nil {
		return "", err
	}

	branch = repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	g.mu.Lock()
	g.branch = branch
	g.mu.Unlock()

	return branch, nil
}

func (g *GitHubStore) repoURL(suffix string) string {
	g.mu.Lock()
	owner, repo := g.owner, g.repo
	g.mu.Unlock()

	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + suffix
}

func (g *GitHubStore) contentsURL(path string) string {
	return g.repoURL("/contents/" + escapePath(path))
}

// escapePath escapes each segment of a slash-separated path while
// keeping the separators.
func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}

	return strings.Join(segs, "/")
}
