// Package mcpserver registers MCP tools that expose sync operations.
// It adapts the chatsync orchestrator to the MCP SDK's tool handler
// interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arbob/session-sync/internal/chatsync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Service is the part of the orchestrator the tools call.
// *chatsync.Syncer implements it.
type Service interface {
	Status() chatsync.Status
	Sync(ctx context.Context) (chatsync.Result, error)
	LocalItems(ctx context.Context) ([]chatsync.Metadata, error)
	Backups(ctx context.Context, id string) ([]chatsync.Backup, error)
}

// RegisterTools adds all sync tools to the given MCP server.
func RegisterTools(server *mcp.Server, s Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report the sync state (setup-required, idle, syncing, error, disabled), the last successful sync time and the number of synced sessions.",
	}, statusHandler(s))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_now",
		Description: "Run one sync cycle: pull newer remote sessions, then push newer local ones. Fails if a cycle is already running, sync is disabled, or setup has not completed.",
	}, syncHandler(s))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List local chat sessions in sync scope with title, workspace, format, size and last activity. No content.",
	}, listSessionsHandler(s))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_backups",
		Description: "List the remote backups of one session, oldest first. A backup is written every time a push overwrites the session.",
	}, listBackupsHandler(s))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// StatusInput has no parameters.
type StatusInput struct{}

// SyncInput has no parameters.
type SyncInput struct{}

// ListSessionsInput holds parameters for list_sessions.
type ListSessionsInput struct {
	Workspace string `json:"workspace,omitempty" jsonschema:"only list sessions in this workspace"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of sessions, most recent first, 0 means all"`
}

// ListBackupsInput holds parameters for list_backups.
type ListBackupsInput struct {
	ID string `json:"id" jsonschema:"required,session id"`
}

// --- Output types ---

// StatusResult is the sync_status output.
type StatusResult struct {
	State     string `json:"state"`
	LastSync  string `json:"last_sync,omitempty"`
	ItemCount int    `json:"item_count"`
	Error     string `json:"error,omitempty"`
}

// SessionEntry describes one local session.
type SessionEntry struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"`
	Title        string `json:"title"`
	Format       string `json:"format"`
	Size         int64  `json:"size"`
	LastActivity string `json:"last_activity,omitempty"`
}

// ListSessionsResult is the list_sessions output.
type ListSessionsResult struct {
	Total    int            `json:"total"`
	Sessions []SessionEntry `json:"sessions"`
}

// BackupEntry describes one stored backup.
type BackupEntry struct {
	Path string `json:"path"`
	Time string `json:"time"`
	Size int64  `json:"size"`
}

// ListBackupsResult is the list_backups output.
type ListBackupsResult struct {
	ID      string        `json:"id"`
	Backups []BackupEntry `json:"backups"`
}

// --- Handlers ---

func statusHandler(s Service) mcp.ToolHandlerFor[StatusInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *StatusResult, error) {
		result := toStatusResult(s.Status())
		return textResult(result), result, nil
	}
}

func syncHandler(s Service) mcp.ToolHandlerFor[SyncInput, *chatsync.Result] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ SyncInput) (*mcp.CallToolResult, *chatsync.Result, error) {
		result, err := s.Sync(ctx)
		if err != nil {
			return nil, nil, err
		}
		return textResult(result), &result, nil
	}
}

func listSessionsHandler(s Service) mcp.ToolHandlerFor[ListSessionsInput, *ListSessionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListSessionsInput) (*mcp.CallToolResult, *ListSessionsResult, error) {
		if input.Limit < 0 {
			return nil, nil, fmt.Errorf("limit must not be negative")
		}

		items, err := s.LocalItems(ctx)
		if err != nil {
			return nil, nil, err
		}

		result := &ListSessionsResult{Sessions: []SessionEntry{}}
		for _, m := range items {
			if input.Workspace != "" && m.WorkspaceID != input.Workspace {
				continue
			}
			result.Sessions = append(result.Sessions, toSessionEntry(m))
		}

		sortByActivity(result.Sessions)

		result.Total = len(result.Sessions)
		if input.Limit > 0 && len(result.Sessions) > input.Limit {
			result.Sessions = result.Sessions[:input.Limit]
		}

		return textResult(result), result, nil
	}
}

func listBackupsHandler(s Service) mcp.ToolHandlerFor[ListBackupsInput, *ListBackupsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListBackupsInput) (*mcp.CallToolResult, *ListBackupsResult, error) {
		if input.ID == "" {
			return nil, nil, fmt.Errorf("id is required")
		}

		backups, err := s.Backups(ctx, input.ID)
		if err != nil {
			return nil, nil, err
		}

		result := &ListBackupsResult{ID: input.ID, Backups: make([]BackupEntry, 0, len(backups))}
		for _, b := range backups {
			result.Backups = append(result.Backups, BackupEntry{
				Path: b.Path,
				Time: b.Time.UTC().Format(time.RFC3339),
				Size: b.Size,
			})
		}

		return textResult(result), result, nil
	}
}

func toStatusResult(st chatsync.Status) *StatusResult {
	return &StatusResult{
		State:     string(st.State),
		LastSync:  formatMillis(st.LastSync),
		ItemCount: st.ItemCount,
		Error:     st.Error,
	}
}

func toSessionEntry(m chatsync.Metadata) SessionEntry {
	return SessionEntry{
		ID:           m.ID,
		WorkspaceID:  m.WorkspaceID,
		Title:        m.Title,
		Format:       string(m.Format),
		Size:         m.Size,
		LastActivity: formatMillis(m.LastActivity()),
	}
}

// sortByActivity orders sessions most recent first. RFC 3339 UTC strings
// sort chronologically; unknown activity sorts last.
func sortByActivity(entries []SessionEntry) {
	slices.SortStableFunc(entries, func(a, b SessionEntry) int {
		if c := strings.Compare(b.LastActivity, a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
