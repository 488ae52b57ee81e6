package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"quillpad/sync/internal/auth"
	"quillpad/sync/internal/event"
	"quillpad/sync/internal/relay"
	"quillpad/sync/internal/store"
)

var channelTestSecret = []byte("channel-test-secret")

type testDirectory struct{}

func (testDirectory) GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error) {
	switch workspaceID {
	case "ws-shared":
		return store.Workspace{
			ID:         "ws-shared",
			Visibility: store.VisibilityShared,
			OwnerID:    "user_owner",
			Collaborators: []store.Collaborator{
				{WorkspaceID: "ws-shared", UserID: "user_bob"},
			},
		}, nil
	case "ws-private":
		return store.Workspace{ID: "ws-private", Visibility: store.VisibilityPrivate, OwnerID: "user_owner"}, nil
	}
	return store.Workspace{}, errors.New("workspace not found")
}

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := relay.NewServer(relay.NewHub(), channelTestSecret, testDirectory{}, nil, "*")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func issueChannelToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken(channelTestSecret, userID, userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func waitEvent(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func expectNoChannelEvent(t *testing.T, ch <-chan event.Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s from %s", e.Name, e.ActorID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChannelEmitReachesPeerNotSender(t *testing.T) {
	ts := newRelayServer(t)
	ctx := context.Background()
	shared := store.Workspace{ID: "ws-shared", Visibility: store.VisibilityShared}

	senderEvents := make(chan event.Event, 8)
	sender := NewChannel(ts.URL, issueChannelToken(t, "user_owner"), func(e event.Event) { senderEvents <- e })
	sender.Connect(ctx, shared)
	t.Cleanup(sender.Disconnect)
	if sender.State() != Connected {
		t.Fatalf("sender state = %s, want %s", sender.State(), Connected)
	}

	peerEvents := make(chan event.Event, 8)
	peer := NewChannel(ts.URL, issueChannelToken(t, "user_bob"), func(e event.Event) { peerEvents <- e })
	peer.Connect(ctx, shared)
	t.Cleanup(peer.Disconnect)
	if peer.State() != Connected {
		t.Fatalf("peer state = %s, want %s", peer.State(), Connected)
	}

	folder := store.Folder{ID: "folder_1", WorkspaceID: "ws-shared", Title: "Inbox"}
	if err := sender.Emit(event.Event{
		Name:    event.AddFolder,
		RoomID:  "ws-shared",
		ActorID: "user_owner",
		Folder:  &folder,
	}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got := waitEvent(t, peerEvents)
	if got.Name != event.AddFolder || got.ActorID != "user_owner" {
		t.Errorf("peer received %+v", got)
	}
	if got.Folder == nil || got.Folder.Title != "Inbox" {
		t.Errorf("peer payload = %+v", got.Folder)
	}
	expectNoChannelEvent(t, senderEvents)
}

func TestChannelPrivateWorkspaceDisconnects(t *testing.T) {
	ts := newRelayServer(t)
	ctx := context.Background()

	c := NewChannel(ts.URL, issueChannelToken(t, "user_owner"), nil)
	c.Connect(ctx, store.Workspace{ID: "ws-shared", Visibility: store.VisibilityShared})
	t.Cleanup(c.Disconnect)
	if c.State() != Connected {
		t.Fatalf("state = %s, want %s", c.State(), Connected)
	}

	// Navigating to a private workspace closes the live connection.
	c.Connect(ctx, store.Workspace{ID: "ws-private", Visibility: store.VisibilityPrivate})
	if c.State() != Disconnected {
		t.Errorf("state = %s after private workspace, want %s", c.State(), Disconnected)
	}
}

func TestChannelDialFailureEndsDisconnected(t *testing.T) {
	ts := newRelayServer(t)
	ctx := context.Background()

	c := NewChannel(ts.URL, issueChannelToken(t, "user_owner"), nil)
	c.Connect(ctx, store.Workspace{ID: "ws-missing", Visibility: store.VisibilityShared})
	if c.State() != Disconnected {
		t.Errorf("state = %s for unknown workspace, want %s", c.State(), Disconnected)
	}

	bad := NewChannel(ts.URL, "not-a-token", nil)
	bad.Connect(ctx, store.Workspace{ID: "ws-shared", Visibility: store.VisibilityShared})
	if bad.State() != Disconnected {
		t.Errorf("state = %s for bad credential, want %s", bad.State(), Disconnected)
	}
}

func TestChannelManualReconnect(t *testing.T) {
	ts := newRelayServer(t)
	ctx := context.Background()
	shared := store.Workspace{ID: "ws-shared", Visibility: store.VisibilityShared}

	c := NewChannel(ts.URL, issueChannelToken(t, "user_owner"), nil)
	c.Connect(ctx, shared)
	t.Cleanup(c.Disconnect)

	c.Disconnect()
	c.Disconnect() // idempotent
	if c.State() != Disconnected {
		t.Fatalf("state = %s, want %s", c.State(), Disconnected)
	}
	if err := c.Emit(event.Event{Name: event.DeleteWorkspace, RoomID: "ws-shared", ActorID: "user_owner"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit while disconnected = %v, want ErrNotConnected", err)
	}

	c.Reconnect(ctx)
	if c.State() != Connected {
		t.Errorf("state = %s after reconnect, want %s", c.State(), Connected)
	}
}

func TestChannelStateSubscription(t *testing.T) {
	ts := newRelayServer(t)
	ctx := context.Background()

	c := NewChannel(ts.URL, issueChannelToken(t, "user_owner"), nil)
	var mu sync.Mutex
	var transitions []ConnState
	unsubscribe := c.Subscribe(func(state ConnState) {
		mu.Lock()
		transitions = append(transitions, state)
		mu.Unlock()
	})

	c.Connect(ctx, store.Workspace{ID: "ws-shared", Visibility: store.VisibilityShared})
	c.Disconnect()

	mu.Lock()
	got := append([]ConnState(nil), transitions...)
	mu.Unlock()
	want := []ConnState{Reconnecting, Connected, Disconnected}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}

	unsubscribe()
	c.Reconnect(ctx)
	c.Disconnect()
	mu.Lock()
	after := len(transitions)
	mu.Unlock()
	if after != len(want) {
		t.Errorf("listener ran after unsubscribe: %d transitions", after)
	}
}
