package chatsync

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
)

const (
	// ManifestVersion is the version written by this build.
	ManifestVersion = 2

	// legacyManifestVersion stored sessions as an array of entries.
	legacyManifestVersion = 1
)

// ManifestEntry describes the remote copy of one item. SHA is the content
// hash of the item's content as pushed.
type ManifestEntry struct {
	ID              string `json:"id"`
	WorkspaceID     string `json:"workspaceId"`
	Title           string `json:"title"`
	CreationDate    int64  `json:"creationDate"`
	LastMessageDate int64  `json:"lastMessageDate"`
	Format          Format `json:"format,omitempty"`
	SHA             string `json:"sha"`
	DeviceID        string `json:"deviceId"`
	UpdatedAt       int64  `json:"updatedAt"`
}

// LastActivity mirrors Metadata.LastActivity for the remote side.
func (e ManifestEntry) LastActivity() int64 {
	if e.LastMessageDate > 0 {
		return e.LastMessageDate
	}

	return e.CreationDate
}

// Manifest indexes every item stored remotely.
type Manifest struct {
	Version  int                      `json:"version"`
	DeviceID string                   `json:"deviceId"`
	LastSync int64                    `json:"lastSync"`
	Sessions map[string]ManifestEntry `json:"sessions"`
}

// NewManifest returns an empty current-version manifest.
func NewManifest() *Manifest {
	return &Manifest{Version: ManifestVersion, Sessions: make(map[string]ManifestEntry)}
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Sessions = make(map[string]ManifestEntry, len(m.Sessions))

	for k, v := range m.Sessions {
		c.Sessions[k] = v
	}

	return &c
}

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

var manifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	schema, err := jsonschema.NewCompiler().Compile(manifestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compiling manifest schema: %w", err)
	}

	return schema, nil
})

// manifestWire is the decode-side shape. Sessions is either the current
// map of entries or the legacy array.
type manifestWire struct {
	Version  int             `json:"version"`
	DeviceID string          `json:"deviceId"`
	LastSync int64           `json:"lastSync"`
	Sessions json.RawMessage `json:"sessions"`
}

// DecodeManifest validates and parses a plaintext manifest. Legacy
// array-shaped manifests are migrated to the current shape before being
// returned, so callers only ever see version 2.
func DecodeManifest(data []byte) (*Manifest, error) {
	schema, err := manifestSchema()
	if err != nil {
		return nil, err
	}

	if result := schema.ValidateJSON(data); !result.IsValid() {
		return nil, fmt.Errorf("manifest schema validation failed: %v", result.Errors)
	}

	var wire manifestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	m := &Manifest{
		Version:  ManifestVersion,
		DeviceID: wire.DeviceID,
		LastSync: wire.LastSync,
	}

	trimmed := bytes.TrimSpace(wire.Sessions)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []ManifestEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decoding legacy manifest entries: %w", err)
		}

		m.Sessions = migrateEntries(entries)

		return m, nil
	}

	if wire.Version == legacyManifestVersion {
		return nil, fmt.Errorf("decoding manifest: version %d with map-shaped sessions", wire.Version)
	}

	if err := json.Unmarshal(trimmed, &m.Sessions); err != nil {
		return nil, fmt.Errorf("decoding manifest entries: %w", err)
	}

	for id, e := range m.Sessions {
		if e.ID != id {
			return nil, fmt.Errorf("decoding manifest: entry key %q holds id %q", id, e.ID)
		}
	}

	return m, nil
}

// migrateEntries converts the legacy array form into the keyed map. When
// an identity repeats, the most recently written entry wins.
func migrateEntries(entries []ManifestEntry) map[string]ManifestEntry {
	out := make(map[string]ManifestEntry, len(entries))

	for _, e := range entries {
		if prev, ok := out[e.ID]; ok && prev.UpdatedAt > e.UpdatedAt {
			continue
		}

		out[e.ID] = e
	}

	return out
}

// EncodeManifest serializes m in canonical (RFC 8785) form, so two
// devices writing the same manifest produce identical plaintext.
func EncodeManifest(m *Manifest) ([]byte, error) {
	out := *m
	out.Version = ManifestVersion

	if out.Sessions == nil {
		out.Sessions = map[string]ManifestEntry{}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing manifest: %w", err)
	}

	return canonical, nil
}

// remoteItem is the plaintext envelope stored for each item. Content is
// carried as base64 so its exact bytes survive the JSON round trip.
type remoteItem struct {
	ID              string `json:"id"`
	WorkspaceID     string `json:"workspaceId"`
	Title           string `json:"title"`
	CreationDate    int64  `json:"creationDate"`
	LastMessageDate int64  `json:"lastMessageDate"`
	Format          Format `json:"format"`
	Content         []byte `json:"content"`
}

func encodeRemoteItem(item Item) ([]byte, error) {
	raw, err := json.Marshal(remoteItem{
		ID:              item.ID,
		WorkspaceID:     item.WorkspaceID,
		Title:           item.Title,
		CreationDate:    item.CreationDate,
		LastMessageDate: item.LastMessageDate,
		Format:          item.Format,
		Content:         item.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding item %s: %w", item.ID, err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing item %s: %w", item.ID, err)
	}

	return canonical, nil
}

func decodeRemoteItem(data []byte) (Item, error) {
	var r remoteItem
	if err := json.Unmarshal(data, &r); err != nil {
		return Item{}, fmt.Errorf("decoding item: %w", err)
	}

	if r.ID == "" {
		return Item{}, fmt.Errorf("decoding item: missing id")
	}

	if !r.Format.Valid() {
		r.Format = FormatJSON
	}

	content := r.Content
	if content == nil {
		content = []byte{}
	}

	return Item{
		Metadata: Metadata{
			ID:              r.ID,
			WorkspaceID:     r.WorkspaceID,
			Title:           r.Title,
			CreationDate:    r.CreationDate,
			LastMessageDate: r.LastMessageDate,
			Format:          r.Format,
			Size:            int64(len(content)),
		},
		Content: content,
	}, nil
}
