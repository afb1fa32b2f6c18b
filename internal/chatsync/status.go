package chatsync

import (
	"sort"
	"sync"

	syncerrors "github.com/arbob/session-sync/internal/errors"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateSetupRequired State = "setup-required"
	StateIdle          State = "idle"
	StateSyncing       State = "syncing"
	StateError         State = "error"
	StateDisabled      State = "disabled"
)

// Status is a snapshot of the orchestrator's state.
type Status struct {
	State     State  `json:"state" yaml:"state"`
	LastSync  int64  `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	ItemCount int    `json:"item_count" yaml:"item_count"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// statusTracker holds the current status and notifies subscribers of
// every change. Subscribers run synchronously on the goroutine that made
// the change, outside the tracker's lock.
//
// busy is held by a running cycle or reset and is independent of the
// displayed state, which Disable and Enable may change mid-cycle.
type statusTracker struct {
	mu     sync.Mutex
	cur    Status
	busy   bool
	subs   map[int]func(Status)
	nextID int
}

func newStatusTracker(initial State) *statusTracker {
	return &statusTracker{cur: Status{State: initial}, subs: make(map[int]func(Status))}
}

func (t *statusTracker) get() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cur
}

func (t *statusTracker) subscribe(fn func(Status)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// update applies fn to the status and notifies subscribers if anything
// changed.
func (t *statusTracker) update(fn func(*Status)) {
	t.apply(func(cur *Status, _ bool) { fn(cur) }, false)
}

// updateBusy is update with fn also told whether a cycle or reset is
// running.
func (t *statusTracker) updateBusy(fn func(cur *Status, busy bool)) {
	t.apply(fn, false)
}

// release applies fn and clears busy in one step.
func (t *statusTracker) release(fn func(*Status)) {
	t.apply(func(cur *Status, _ bool) { fn(cur) }, true)
}

func (t *statusTracker) apply(fn func(*Status, bool), release bool) {
	t.mu.Lock()
	prev := t.cur
	fn(&t.cur, t.busy)

	if release {
		t.busy = false
	}

	next := t.cur
	subs := t.snapshotSubs()
	t.mu.Unlock()

	if prev == next {
		return
	}

	for _, s := range subs {
		s(next)
	}
}

// snapshotSubs returns subscribers in registration order. Caller holds mu.
func (t *statusTracker) snapshotSubs() []func(Status) {
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	out := make([]func(Status), len(ids))
	for i, id := range ids {
		out[i] = t.subs[id]
	}

	return out
}

// beginSync takes busy and moves to syncing. It fails without changing
// state when a cycle or reset is running, sync is disabled, or setup is
// incomplete. The caller must release when the cycle ends.
func (t *statusTracker) beginSync() error {
	t.mu.Lock()

	switch {
	case t.busy || t.cur.State == StateSyncing:
		t.mu.Unlock()
		return syncerrors.ErrSyncInProgress
	case t.cur.State == StateDisabled:
		t.mu.Unlock()
		return syncerrors.ErrSyncDisabled
	case t.cur.State == StateSetupRequired:
		t.mu.Unlock()
		return syncerrors.ErrSetupRequired
	}

	t.busy = true
	t.cur.State = StateSyncing
	t.cur.Error = ""
	next := t.cur
	subs := t.snapshotSubs()
	t.mu.Unlock()

	for _, s := range subs {
		s(next)
	}

	return nil
}

// beginReset takes busy without changing the displayed state. It fails
// with ErrSyncInProgress while a cycle or another reset is running.
func (t *statusTracker) beginReset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.busy {
		return syncerrors.ErrSyncInProgress
	}

	t.busy = true

	return nil
}
