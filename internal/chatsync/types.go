package chatsync

// Format tags how an item's content is laid out on disk so the receiving
// device can write it back verbatim.
type Format string

const (
	// FormatJSON is a whole-document session file.
	FormatJSON Format = "json"
	// FormatJSONL is an append-only log whose first line is a header record.
	FormatJSONL Format = "jsonl"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatJSONL
}

// Metadata describes a local item without its content. Timestamps are
// Unix milliseconds.
type Metadata struct {
	ID              string
	WorkspaceID     string
	Title           string
	CreationDate    int64
	LastMessageDate int64
	Format          Format
	Size            int64
	ModTime         int64
}

// LastActivity returns the last-activity time, falling back to the
// creation time when unset. Zero means neither is known.
func (m Metadata) LastActivity() int64 {
	if m.LastMessageDate > 0 {
		return m.LastMessageDate
	}

	return m.CreationDate
}

// Fingerprint returns the (size, modification time) pair a cached hash is
// valid for.
func (m Metadata) Fingerprint() Fingerprint {
	return Fingerprint{Size: m.Size, ModTime: m.ModTime}
}

// Item is a synchronizable unit. Content is opaque and never parsed or
// re-serialized by the sync core.
type Item struct {
	Metadata
	Content []byte
}

// Fingerprint identifies the on-disk version a hash was computed from.
type Fingerprint struct {
	Size    int64 `json:"size"`
	ModTime int64 `json:"mtime"`
}

// Action is the outcome of resolving one item.
type Action string

const (
	// ActionNewLocal means the item exists only locally and is pushed.
	ActionNewLocal Action = "new-local"
	// ActionNewRemote means the item exists only remotely and is pulled.
	ActionNewRemote Action = "new-remote"
	// ActionSkip means both sides agree, or neither side has the item.
	ActionSkip Action = "skip"
	// ActionPush means the local copy wins.
	ActionPush Action = "push"
	// ActionPull means the remote copy wins.
	ActionPull Action = "pull"
)

// IsPull reports whether a resolves to writing the remote copy locally.
func (a Action) IsPull() bool {
	return a == ActionPull || a == ActionNewRemote
}

// IsPush reports whether a resolves to uploading the local copy.
func (a Action) IsPush() bool {
	return a == ActionPush || a == ActionNewLocal
}
