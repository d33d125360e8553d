package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/notify"
	"github.com/starford/raido/internal/remote"
	"github.com/starford/raido/internal/store"
)

// fakeClient scripts pull responses and records every request.
type fakeClient struct {
	mu         sync.Mutex
	pulls      []remote.PullRequest
	pushes     []remote.PushRequest
	pullErr    error
	pushErr    error
	serverTime int64
	diffs      models.DiffBatch
	entered    chan struct{} // when non-nil, Pull signals entry and blocks until closed
	block      chan struct{}
}

func (f *fakeClient) Pull(ctx context.Context, req remote.PullRequest) (*remote.PullResponse, error) {
	f.mu.Lock()
	f.pulls = append(f.pulls, req)
	entered, block := f.entered, f.block
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return &remote.PullResponse{Diffs: f.diffs, ServerTime: f.serverTime}, nil
}

func (f *fakeClient) Push(_ context.Context, req remote.PushRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, req)
	return nil
}

func (f *fakeClient) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pulls)
}

// memCursors is an in-memory CursorStore.
type memCursors struct {
	mu sync.Mutex
	m  map[string]int64
}

func newMemCursors() *memCursors { return &memCursors{m: make(map[string]int64)} }

func (c *memCursors) Cursor(account, purpose string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[account+"/"+purpose], nil
}

func (c *memCursors) SetCursor(account, purpose string, since int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[account+"/"+purpose] = since
	return nil
}

func newCoordinator(client *fakeClient, cursors CursorStore) (*Coordinator, *store.Store) {
	s := store.New(nil)
	c := New(Config{
		Account: "acct",
		Device:  "dev",
		Client:  client,
		Store:   s,
		Cursors: cursors,
	})
	return c, s
}

func TestPullAdvancesCursorOnSuccess(t *testing.T) {
	client := &fakeClient{serverTime: 5000, diffs: models.DiffBatch{
		Checklists: []models.ChecklistDiff{{ID: "c1", Title: "Study", UpdatedAt: 4000}},
	}}
	cursors := newMemCursors()
	coord, s := newCoordinator(client, cursors)

	if err := coord.Pull(context.Background(), PurposeLive); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	since, _ := cursors.Cursor("acct", PurposeLive)
	if since != 5000 {
		t.Errorf("cursor = %d, want server time 5000", since)
	}
	if _, ok := s.Checklist("c1"); !ok {
		t.Error("pulled diff not applied to store")
	}
	if client.pulls[0].Since != 0 {
		t.Errorf("first pull since = %d, want 0", client.pulls[0].Since)
	}
}

func TestPullFailureLeavesCursor(t *testing.T) {
	client := &fakeClient{pullErr: errors.New("network down")}
	cursors := newMemCursors()
	cursors.SetCursor("acct", PurposeLive, 777)
	coord, _ := newCoordinator(client, cursors)

	if err := coord.Pull(context.Background(), PurposeLive); err == nil {
		t.Fatal("expected pull error")
	}
	since, _ := cursors.Cursor("acct", PurposeLive)
	if since != 777 {
		t.Errorf("cursor moved to %d after failed pull", since)
	}

	// The retry targets the same window.
	client.pullErr = nil
	client.serverTime = 900
	if err := coord.Pull(context.Background(), PurposeLive); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if client.pulls[1].Since != 777 {
		t.Errorf("retry since = %d, want 777", client.pulls[1].Since)
	}
}

func TestAbortedPullLeavesStateUntouched(t *testing.T) {
	client := &fakeClient{entered: make(chan struct{}), block: make(chan struct{}), serverTime: 5000}
	cursors := newMemCursors()
	coord, _ := newCoordinator(client, cursors)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Pull(ctx, PurposeLive) }()
	<-client.entered
	cancel()

	if err := <-done; err == nil {
		t.Fatal("expected context error")
	}
	since, _ := cursors.Cursor("acct", PurposeLive)
	if since != 0 {
		t.Errorf("cursor = %d after aborted pull, want 0", since)
	}
}

func TestSecondPullIsNoOp(t *testing.T) {
	client := &fakeClient{entered: make(chan struct{}), block: make(chan struct{}), serverTime: 100}
	coord, _ := newCoordinator(client, newMemCursors())

	go coord.Pull(context.Background(), PurposeLive)
	<-client.entered

	if err := coord.Pull(context.Background(), PurposeLive); !errors.Is(err, apperr.ErrSyncInFlight) {
		t.Errorf("concurrent pull err = %v, want ErrSyncInFlight", err)
	}
	close(client.block)
}

func TestPurposesDoNotShareInFlight(t *testing.T) {
	client := &fakeClient{entered: make(chan struct{}, 2), block: make(chan struct{}), serverTime: 100}
	coord, _ := newCoordinator(client, newMemCursors())

	go coord.Pull(context.Background(), PurposeLive)
	<-client.entered

	done := make(chan error, 1)
	go func() { done <- coord.Pull(context.Background(), PurposeHistory) }()
	<-client.entered
	close(client.block)
	if err := <-done; errors.Is(err, apperr.ErrSyncInFlight) {
		t.Error("history pull blocked by live pull")
	}
}

func TestBackfillScenario(t *testing.T) {
	client := &fakeClient{serverTime: 2_000_000}
	cursors := newMemCursors()
	// The history cursor is globally current, far past the queried window.
	cursors.SetCursor("acct", PurposeHistory, 1_000_000)
	coord, _ := newCoordinator(client, cursors)

	windowEnd := int64(500_000) // windowEnd + margin < since

	forced, err := coord.EnsureWindow(context.Background(), PurposeHistory, windowEnd)
	if err != nil {
		t.Fatalf("EnsureWindow: %v", err)
	}
	if !forced {
		t.Fatal("expected a forced backfill")
	}
	if got := client.pulls[0].Since; got != 0 {
		t.Errorf("backfill pull since = %d, want 0", got)
	}
	since, _ := cursors.Cursor("acct", PurposeHistory)
	if since != 2_000_000 {
		t.Errorf("cursor after backfill = %d, want server time", since)
	}

	// Exactly one: the epoch is covered now, a second query must not repull.
	forced, err = coord.EnsureWindow(context.Background(), PurposeHistory, windowEnd)
	if err != nil || forced {
		t.Errorf("second EnsureWindow forced=%v err=%v, want no repull", forced, err)
	}
	if client.pullCount() != 1 {
		t.Errorf("pull count = %d, want 1", client.pullCount())
	}
}

func TestEnsureWindowNoGapNoPull(t *testing.T) {
	client := &fakeClient{serverTime: 100}
	cursors := newMemCursors()
	cursors.SetCursor("acct", PurposeHistory, 1_000_000)
	coord, _ := newCoordinator(client, cursors)

	// Window end within the margin of the cursor: no backfill.
	forced, err := coord.EnsureWindow(context.Background(), PurposeHistory, 999_000)
	if err != nil {
		t.Fatalf("EnsureWindow: %v", err)
	}
	if forced || client.pullCount() != 0 {
		t.Errorf("unexpected backfill: forced=%v pulls=%d", forced, client.pullCount())
	}
}

func TestPushQueuesAndFlushes(t *testing.T) {
	client := &fakeClient{pushErr: errors.New("offline")}
	coord, _ := newCoordinator(client, newMemCursors())

	batch := models.DiffBatch{Checklists: []models.ChecklistDiff{{ID: "c1", UpdatedAt: 1}}}
	if err := coord.Push(context.Background(), batch); err == nil {
		t.Fatal("expected push failure")
	}
	if coord.PendingPushes() != 1 {
		t.Errorf("pending = %d, want 1", coord.PendingPushes())
	}
	if coord.LastPushError() == nil {
		t.Error("last push error not surfaced")
	}

	// Connectivity returns; the next flush drains the outbox in order.
	client.pushErr = nil
	if err := coord.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if coord.PendingPushes() != 0 {
		t.Errorf("pending after flush = %d", coord.PendingPushes())
	}
	if coord.LastPushError() != nil {
		t.Errorf("last error not cleared: %v", coord.LastPushError())
	}
	if len(client.pushes) != 1 || client.pushes[0].Account != "acct" || client.pushes[0].Device != "dev" {
		t.Errorf("push request = %+v", client.pushes)
	}
}

func TestResetRepullsFromEpoch(t *testing.T) {
	client := &fakeClient{serverTime: 9000}
	cursors := newMemCursors()
	cursors.SetCursor("acct", PurposeLive, 5000)
	coord, _ := newCoordinator(client, cursors)

	if err := coord.Reset(context.Background(), PurposeLive); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if client.pulls[0].Since != 0 {
		t.Errorf("reset pull since = %d, want 0", client.pulls[0].Since)
	}
	since, _ := cursors.Cursor("acct", PurposeLive)
	if since != 9000 {
		t.Errorf("cursor after reset = %d", since)
	}
}

func TestHandleSignal(t *testing.T) {
	client := &fakeClient{serverTime: 100}
	coord, _ := newCoordinator(client, newMemCursors())

	coord.HandleSignal(context.Background(), notify.Signal{Type: notify.TypePull})
	if client.pullCount() != 1 {
		t.Errorf("pull signal: pulls = %d, want 1", client.pullCount())
	}

	client.pushErr = errors.New("offline")
	coord.Push(context.Background(), models.DiffBatch{
		Checklists: []models.ChecklistDiff{{ID: "c1", UpdatedAt: 1}},
	})
	client.pushErr = nil
	coord.HandleSignal(context.Background(), notify.Signal{Type: notify.TypePush})
	if coord.PendingPushes() != 0 {
		t.Errorf("push signal left %d pending", coord.PendingPushes())
	}

	coord.HandleSignal(context.Background(), notify.Signal{Type: notify.TypeReset, Purpose: PurposeLive})
	if client.pullCount() != 2 {
		t.Errorf("reset signal: pulls = %d, want 2", client.pullCount())
	}
}
