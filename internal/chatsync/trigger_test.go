package chatsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_DropsWhenNotReady(t *testing.T) {
	store := newMemStore()
	d := newDevice(t, store, Options{})

	// Setup required: nothing reaches the store.
	d.syncer.Trigger(context.Background(), "timer")
	assert.Equal(t, StateSetupRequired, d.syncer.Status().State)
	assert.Zero(t, store.commits)

	d.setup(t)
	d.syncer.Disable()
	d.writeSession(t, "ws1", "s1", FormatJSON, jsonSession("s1", "A", t0.UnixMilli(), ""), t0)

	d.syncer.Trigger(context.Background(), "file change")
	assert.Equal(t, StateDisabled, d.syncer.Status().State)
	assert.Empty(t, store.paths(SessionsDir+"/"))
}

func TestTrigger_RunsCycle(t *testing.T) {
	store := newMemStore()
	d := newDevice(t, store, Options{})
	d.setup(t)
	d.writeSession(t, "ws1", "s1", FormatJSON, jsonSession("s1", "A", t0.UnixMilli(), ""), t0)

	d.syncer.Trigger(context.Background(), "startup")

	assert.Equal(t, StateIdle, d.syncer.Status().State)
	assert.Equal(t, []string{ItemPath("s1")}, store.paths(SessionsDir+"/"))
}

func TestRunPeriodic(t *testing.T) {
	store := newMemStore()
	d := newDevice(t, store, Options{})
	d.setup(t)
	d.writeSession(t, "ws1", "s1", FormatJSON, jsonSession("s1", "A", t0.UnixMilli(), ""), t0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- d.syncer.RunPeriodic(ctx, 20*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return d.syncer.Status().LastSync > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
