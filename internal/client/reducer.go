package client

import (
	"context"
	"log"

	"quillpad/sync/internal/access"
	"quillpad/sync/internal/event"
	"quillpad/sync/internal/store"
)

// Reducer applies inbound realtime events to the local state. Every event is
// first checked against two filters: the room must be the active workspace
// and the actor must not be this client (its dispatcher already applied the
// mutation optimistically). Events that reference entities the local tree no
// longer has are stale and are dropped without error.
type Reducer struct {
	state   *State
	selfID  string
	pointer PointerStore
	// onRevoke is invoked when access to the active workspace is lost
	// (workspace deleted, made private, or this user removed from the
	// collaborator list). The host navigates back to the workspace list.
	onRevoke func(workspaceID string)
}

func NewReducer(state *State, selfID string, pointer PointerStore, onRevoke func(workspaceID string)) *Reducer {
	return &Reducer{state: state, selfID: selfID, pointer: pointer, onRevoke: onRevoke}
}

// Apply reduces one event into the state. It never fails: filtered, stale and
// malformed events all reduce to "no state change".
func (r *Reducer) Apply(ctx context.Context, e event.Event) {
	roomID := r.state.CurrentID()
	if e.RoomID == "" || e.RoomID != roomID {
		return
	}
	if e.ActorID == r.selfID {
		return
	}

	switch e.Name {
	case event.AddFolder:
		if e.Folder == nil {
			return
		}
		r.state.InsertFolder(*e.Folder)
	case event.AddFile:
		if e.File == nil {
			return
		}
		r.state.InsertFile(*e.File)
	case event.ChangeTitle:
		if e.FieldChange == nil {
			return
		}
		r.state.SetTitle(refOf(e.FieldChange.ItemID, e.FieldChange.ItemType, e.FieldChange.FolderID), e.FieldChange.Value)
	case event.ChangeIcon:
		if e.FieldChange == nil {
			return
		}
		r.state.SetIcon(refOf(e.FieldChange.ItemID, e.FieldChange.ItemType, e.FieldChange.FolderID), e.FieldChange.Value)
	case event.ChangeBanner:
		if e.FieldChange == nil {
			return
		}
		r.state.SetBanner(refOf(e.FieldChange.ItemID, e.FieldChange.ItemType, e.FieldChange.FolderID), e.FieldChange.Value, e.FieldChange.BannerStorageID)
	case event.ChangeTrash:
		if e.TrashChange == nil {
			return
		}
		r.state.SetTrash(refOf(e.TrashChange.ItemID, e.TrashChange.ItemType, e.TrashChange.FolderID), e.TrashChange.InTrash, e.TrashChange.TrashedBy)
	case event.DeleteItem:
		if e.ItemDelete == nil {
			return
		}
		switch e.ItemDelete.ItemType {
		case event.ItemFolder:
			r.state.RemoveFolder(e.ItemDelete.ItemID)
		case event.ItemFile:
			r.state.RemoveFile(e.ItemDelete.FolderID, e.ItemDelete.ItemID)
		}
	case event.UpdateWorkspace:
		if e.WorkspaceUpdate == nil {
			return
		}
		r.applyWorkspaceUpdate(ctx, *e.WorkspaceUpdate)
	case event.DeleteWorkspace:
		r.revoke(ctx, roomID)
	}
}

// applyWorkspaceUpdate merges a settings update, or reacts to access
// revocation: a workspace that turned private, or a collaborator list this
// user is no longer on, means the receiver must leave.
func (r *Reducer) applyWorkspaceUpdate(ctx context.Context, updated store.Workspace) {
	if updated.Visibility != store.VisibilityShared {
		r.revoke(ctx, updated.ID)
		return
	}
	if access.RoleOf(updated, r.selfID) == access.RoleNone {
		r.revoke(ctx, updated.ID)
		return
	}
	r.state.ReplaceCurrent(updated)
}

func (r *Reducer) revoke(ctx context.Context, workspaceID string) {
	if r.pointer != nil {
		if err := r.pointer.Clear(ctx); err != nil {
			log.Printf("client: clearing active workspace pointer failed: %v", err)
		}
	}
	r.state.RemoveWorkspace(workspaceID)
	if r.onRevoke != nil {
		r.onRevoke(workspaceID)
	}
}

func refOf(itemID string, itemType event.ItemType, folderID string) ItemRef {
	return ItemRef{Type: itemType, ID: itemID, FolderID: folderID}
}
