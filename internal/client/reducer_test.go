package client

import (
	"context"
	"errors"
	"testing"

	"quillpad/sync/internal/event"
	"quillpad/sync/internal/store"
)

func newTestReducer(t *testing.T) (*Reducer, *State, *MemoryPointerStore, *[]string) {
	t.Helper()
	s := NewState()
	ws := sharedWorkspace()
	s.SetLists(nil, nil, []store.Workspace{ws})
	s.SetCurrent(ws)

	pointer := NewMemoryPointerStore()
	if err := pointer.SetActiveWorkspace(context.Background(), ws.ID); err != nil {
		t.Fatalf("seed pointer: %v", err)
	}

	var revoked []string
	r := NewReducer(s, "user_bob", pointer, func(workspaceID string) {
		revoked = append(revoked, workspaceID)
	})
	return r, s, pointer, &revoked
}

func TestReducerSkipsOwnEvents(t *testing.T) {
	r, s, _, _ := newTestReducer(t)

	folder := store.Folder{ID: "folder_2", WorkspaceID: "ws_1", Title: "Drafts"}
	r.Apply(context.Background(), event.Event{
		Name:    event.AddFolder,
		RoomID:  "ws_1",
		ActorID: "user_bob",
		Folder:  &folder,
	})

	if _, ok := s.Folder("folder_2"); ok {
		t.Error("event from this client was applied")
	}
}

func TestReducerSkipsOtherRooms(t *testing.T) {
	r, s, _, _ := newTestReducer(t)

	folder := store.Folder{ID: "folder_2", WorkspaceID: "ws_other", Title: "Drafts"}
	r.Apply(context.Background(), event.Event{
		Name:    event.AddFolder,
		RoomID:  "ws_other",
		ActorID: "user_owner",
		Folder:  &folder,
	})

	if _, ok := s.Folder("folder_2"); ok {
		t.Error("event for another room was applied")
	}
}

func TestReducerAppliesAddFolder(t *testing.T) {
	r, s, _, _ := newTestReducer(t)

	folder := store.Folder{ID: "folder_2", WorkspaceID: "ws_1", Title: "Drafts"}
	r.Apply(context.Background(), event.Event{
		Name:    event.AddFolder,
		RoomID:  "ws_1",
		ActorID: "user_owner",
		Folder:  &folder,
	})

	got, ok := s.Folder("folder_2")
	if !ok {
		t.Fatal("folder not applied")
	}
	if got.Title != "Drafts" {
		t.Errorf("folder title = %q", got.Title)
	}
}

func TestReducerIgnoresStaleEvents(t *testing.T) {
	r, s, _, _ := newTestReducer(t)
	before := s.Snapshot()

	r.Apply(context.Background(), event.Event{
		Name:    event.ChangeTitle,
		RoomID:  "ws_1",
		ActorID: "user_owner",
		FieldChange: &event.FieldChange{
			ItemID:   "folder_gone",
			ItemType: event.ItemFolder,
			Value:    "New Title",
		},
	})
	r.Apply(context.Background(), event.Event{
		Name:    event.AddFile,
		RoomID:  "ws_1",
		ActorID: "user_owner",
		File:    &store.File{ID: "file_9", FolderID: "folder_gone", WorkspaceID: "ws_1"},
	})
	// Payload missing entirely.
	r.Apply(context.Background(), event.Event{
		Name:    event.AddFolder,
		RoomID:  "ws_1",
		ActorID: "user_owner",
	})

	after := s.Snapshot()
	if before.Current.Title != after.Current.Title || len(before.Current.Folders) != len(after.Current.Folders) {
		t.Error("stale events changed the state")
	}
}

func TestReducerAppliesFieldAndTrashChanges(t *testing.T) {
	r, s, _, _ := newTestReducer(t)

	r.Apply(context.Background(), event.Event{
		Name:    event.ChangeTitle,
		RoomID:  "ws_1",
		ActorID: "user_owner",
		FieldChange: &event.FieldChange{
			ItemID:   "folder_1",
			ItemType: event.ItemFolder,
			Value:    "Archive",
		},
	})
	if title, _ := s.Title(ItemRef{Type: event.ItemFolder, ID: "folder_1"}); title != "Archive" {
		t.Errorf("title = %q, want %q", title, "Archive")
	}

	r.Apply(context.Background(), event.Event{
		Name:    event.ChangeTrash,
		RoomID:  "ws_1",
		ActorID: "user_owner",
		TrashChange: &event.TrashChange{
			ItemID:    "file_1",
			ItemType:  event.ItemFile,
			FolderID:  "folder_1",
			InTrash:   true,
			TrashedBy: "user_owner",
		},
	})
	inTrash, trashedBy, _ := s.Trash(ItemRef{Type: event.ItemFile, ID: "file_1", FolderID: "folder_1"})
	if !inTrash || trashedBy != "user_owner" {
		t.Errorf("trash state = (%v, %q)", inTrash, trashedBy)
	}

	r.Apply(context.Background(), event.Event{
		Name:    event.DeleteItem,
		RoomID:  "ws_1",
		ActorID: "user_owner",
		ItemDelete: &event.ItemDelete{
			ItemID:   "file_1",
			ItemType: event.ItemFile,
			FolderID: "folder_1",
		},
	})
	if _, ok := s.File("folder_1", "file_1"); ok {
		t.Error("file still present after delete event")
	}
}

func TestReducerSettingsUpdateReplacesCurrent(t *testing.T) {
	r, s, _, revoked := newTestReducer(t)

	updated := sharedWorkspace()
	updated.Title = "Renamed Workspace"
	r.Apply(context.Background(), event.Event{
		Name:            event.UpdateWorkspace,
		RoomID:          "ws_1",
		ActorID:         "user_owner",
		WorkspaceUpdate: &updated,
	})

	current, ok := s.CurrentWorkspace()
	if !ok {
		t.Fatal("current workspace gone after settings update")
	}
	if current.Title != "Renamed Workspace" {
		t.Errorf("title = %q", current.Title)
	}
	if len(*revoked) != 0 {
		t.Errorf("revocation fired for a benign update: %v", *revoked)
	}
}

func TestReducerCollaboratorRemovalRevokes(t *testing.T) {
	r, s, pointer, revoked := newTestReducer(t)

	updated := sharedWorkspace()
	updated.Collaborators = []store.Collaborator{
		{WorkspaceID: "ws_1", UserID: "user_carol"},
	}
	r.Apply(context.Background(), event.Event{
		Name:            event.UpdateWorkspace,
		RoomID:          "ws_1",
		ActorID:         "user_owner",
		WorkspaceUpdate: &updated,
	})

	if s.CurrentID() != "" {
		t.Error("current workspace still open after losing access")
	}
	if _, err := pointer.ActiveWorkspace(context.Background()); !errors.Is(err, ErrNoPointer) {
		t.Errorf("pointer not cleared: %v", err)
	}
	if len(*revoked) != 1 || (*revoked)[0] != "ws_1" {
		t.Errorf("revocations = %v", *revoked)
	}
	if len(s.Snapshot().Collaborating) != 0 {
		t.Error("workspace still listed after losing access")
	}
}

func TestReducerWorkspaceTurnedPrivateRevokes(t *testing.T) {
	r, s, _, revoked := newTestReducer(t)

	updated := sharedWorkspace()
	updated.Visibility = store.VisibilityPrivate
	r.Apply(context.Background(), event.Event{
		Name:            event.UpdateWorkspace,
		RoomID:          "ws_1",
		ActorID:         "user_owner",
		WorkspaceUpdate: &updated,
	})

	if s.CurrentID() != "" {
		t.Error("current workspace still open after it turned private")
	}
	if len(*revoked) != 1 {
		t.Errorf("revocations = %v", *revoked)
	}
}

func TestReducerWorkspaceDeleteRevokes(t *testing.T) {
	r, s, pointer, revoked := newTestReducer(t)

	r.Apply(context.Background(), event.Event{
		Name:    event.DeleteWorkspace,
		RoomID:  "ws_1",
		ActorID: "user_owner",
	})

	if s.CurrentID() != "" {
		t.Error("current workspace still open after deletion")
	}
	if _, err := pointer.ActiveWorkspace(context.Background()); !errors.Is(err, ErrNoPointer) {
		t.Errorf("pointer not cleared: %v", err)
	}
	if len(*revoked) != 1 {
		t.Errorf("revocations = %v", *revoked)
	}
}

func TestReducerOwnerKeepsAccessWithoutCollaboratorEntry(t *testing.T) {
	s := NewState()
	ws := sharedWorkspace()
	s.SetCurrent(ws)
	r := NewReducer(s, "user_owner", NewMemoryPointerStore(), nil)

	updated := sharedWorkspace()
	updated.Title = "Renamed"
	updated.Collaborators = []store.Collaborator{
		{WorkspaceID: "ws_1", UserID: "user_carol"},
	}
	r.Apply(context.Background(), event.Event{
		Name:            event.UpdateWorkspace,
		RoomID:          "ws_1",
		ActorID:         "user_carol",
		WorkspaceUpdate: &updated,
	})

	if s.CurrentID() != "ws_1" {
		t.Error("owner lost access to their own workspace")
	}
}
