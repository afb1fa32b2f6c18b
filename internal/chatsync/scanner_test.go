package chatsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFilterRecent(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day := int64(24 * time.Hour / time.Millisecond)
	nowMs := now.UnixMilli()

	items := []Metadata{
		{ID: "fresh", LastMessageDate: nowMs - day},
		{ID: "stale", LastMessageDate: nowMs - 10*day},
		{ID: "created-recently", CreationDate: nowMs - 2*day},
		{ID: "unknown"},
	}

	tests := []struct {
		name string
		days int
		want []string
	}{
		{"disabled", 0, []string{"fresh", "stale", "created-recently", "unknown"}},
		{"negative disables", -3, []string{"fresh", "stale", "created-recently", "unknown"}},
		{"one day boundary inclusive", 1, []string{"fresh", "unknown"}},
		{"week", 7, []string{"fresh", "created-recently", "unknown"}},
		{"month", 30, []string{"fresh", "stale", "created-recently", "unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range FilterRecent(items, tt.days, now) {
				got = append(got, m.ID)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanner_ScanAndHash(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockContentSource(ctrl)
	ctx := context.Background()

	items := []Metadata{
		{ID: "a", WorkspaceID: "ws", Size: 1, ModTime: 10},
		{ID: "b", WorkspaceID: "ws", Size: 2, ModTime: 20},
		{ID: "c", WorkspaceID: "ws", Size: 3, ModTime: 30},
	}

	src.EXPECT().ListItems(gomock.Any(), []string{"skip"}).Return(items, nil)
	src.EXPECT().ReadContent(gomock.Any(), "ws", "a").Return([]byte("alpha"), nil)
	src.EXPECT().ReadContent(gomock.Any(), "ws", "c").Return(nil, errors.New("permission denied"))

	// b is already cached under its current fingerprint.
	cache := NewHashCache(map[string]HashEntry{
		"b": {Hash: "cached-b", Fingerprint: items[1].Fingerprint()},
	})

	sc := NewScanner(src, cache, testLogger(), ScannerOptions{ExcludeWorkspaces: []string{"skip"}, HashWorkers: 2})

	res, err := sc.ScanAndHash(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Read)
	assert.Equal(t, HashContent([]byte("alpha")), res.Hashes["a"])
	assert.Equal(t, "cached-b", res.Hashes["b"])
	assert.Len(t, res.Items, 2)

	require.Contains(t, res.Failed, "c")
	assert.NotContains(t, res.Items, "c")
	assert.NotContains(t, res.Hashes, "c")
}

func TestScanner_ScanAppliesRecentFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockContentSource(ctrl)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src.EXPECT().ListItems(gomock.Any(), gomock.Nil()).Return([]Metadata{
		{ID: "new", LastMessageDate: now.Add(-time.Hour).UnixMilli()},
		{ID: "old", LastMessageDate: now.Add(-100 * 24 * time.Hour).UnixMilli()},
	}, nil)

	sc := NewScanner(src, NewHashCache(nil), testLogger(), ScannerOptions{RecentDays: 30})
	sc.now = func() time.Time { return now }

	got, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestScanner_ListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockContentSource(ctrl)
	src.EXPECT().ListItems(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk gone"))

	sc := NewScanner(src, NewHashCache(nil), testLogger(), ScannerOptions{})

	_, err := sc.ScanAndHash(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestScanner_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockContentSource(ctrl)

	ctx, cancel := context.WithCancel(context.Background())

	src.EXPECT().ListItems(gomock.Any(), gomock.Any()).Return([]Metadata{{ID: "a", WorkspaceID: "ws"}}, nil)
	src.EXPECT().ReadContent(gomock.Any(), "ws", "a").DoAndReturn(func(context.Context, string, string) ([]byte, error) {
		cancel()
		return nil, context.Canceled
	})

	sc := NewScanner(src, NewHashCache(nil), testLogger(), ScannerOptions{})

	_, err := sc.ScanAndHash(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
