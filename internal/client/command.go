package client

import (
	"context"
	"errors"
	"fmt"

	"quillpad/sync/internal/event"
	"quillpad/sync/internal/store"
	"quillpad/sync/internal/util"
)

var (
	ErrNoWorkspace  = errors.New("no active workspace")
	ErrItemNotFound = errors.New("item not found")
)

// Command is one mutating user operation. Both the forward mutation and its
// exact inverse are computed at construction time from the state as it is
// right now, so a rollback is "apply the precomputed inverse" rather than
// per-call-site undo logic.
type Command struct {
	name        string
	failMessage string
	// sharedRoom records whether the operation touches a shared workspace;
	// only those are eligible for broadcast.
	sharedRoom bool

	forward func() bool
	inverse func()
	persist func(ctx context.Context, p Persister) error
	event   *event.Event
}

func (c *Command) Name() string { return c.name }

// Persister is the persistence boundary the dispatcher calls. A nil error
// means the optimistic mutation is confirmed; any error means it must be
// rolled back.
type Persister interface {
	CreateWorkspace(ctx context.Context, ws store.Workspace) error
	UpdateWorkspace(ctx context.Context, ws store.Workspace) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	CreateFolder(ctx context.Context, folder store.Folder) error
	UpdateFolder(ctx context.Context, folder store.Folder) error
	SetFolderTrash(ctx context.Context, folderID string, inTrash bool, trashedBy string) error
	DeleteFolder(ctx context.Context, folderID string) error
	CreateFile(ctx context.Context, file store.File) error
	UpdateFile(ctx context.Context, file store.File) error
	SetFileTrash(ctx context.Context, fileID string, inTrash bool, trashedBy string) error
	DeleteFile(ctx context.Context, fileID string) error
	AddCollaborators(ctx context.Context, workspaceID string, userIDs []string) error
	RemoveCollaborators(ctx context.Context, workspaceID string, userIDs []string) error
}

// NewCreateWorkspace creates a workspace owned by the actor. The id is
// client-generated so the insert is optimistic. Workspaces are created
// without a room; there is no one to broadcast to yet.
func NewCreateWorkspace(s *State, actorID string, ws store.Workspace) (*Command, error) {
	if ws.ID == "" {
		ws.ID = util.NewID("ws")
	}
	if ws.Visibility == "" {
		ws.Visibility = store.VisibilityPrivate
	}
	if ws.Visibility == store.VisibilityShared && len(ws.Collaborators) == 0 {
		return nil, fmt.Errorf("shared workspace needs at least one collaborator")
	}
	ws.OwnerID = actorID

	created := ws
	return &Command{
		name:        "create_workspace",
		failMessage: "Could not create the workspace.",
		forward:     func() bool { s.AddWorkspace(created); return true },
		inverse:     func() { s.RemoveWorkspace(created.ID) },
		persist: func(ctx context.Context, p Persister) error {
			if err := p.CreateWorkspace(ctx, created); err != nil {
				return err
			}
			if len(created.Collaborators) == 0 {
				return nil
			}
			userIDs := make([]string, len(created.Collaborators))
			for i, c := range created.Collaborators {
				userIDs[i] = c.UserID
			}
			return p.AddCollaborators(ctx, created.ID, userIDs)
		},
	}, nil
}

// NewCreateFolder inserts a folder into the active workspace.
func NewCreateFolder(s *State, actorID string, folder store.Folder) (*Command, error) {
	ws, ok := s.CurrentWorkspace()
	if !ok {
		return nil, ErrNoWorkspace
	}
	if folder.ID == "" {
		folder.ID = util.NewID("folder")
	}
	folder.WorkspaceID = ws.ID

	created := folder
	return &Command{
		name:        "create_folder",
		failMessage: "Could not create the folder.",
		sharedRoom:  ws.Visibility == store.VisibilityShared,
		forward:     func() bool { return s.InsertFolder(created) },
		inverse:     func() { s.RemoveFolder(created.ID) },
		persist: func(ctx context.Context, p Persister) error {
			return p.CreateFolder(ctx, created)
		},
		event: &event.Event{
			Name:    event.AddFolder,
			RoomID:  ws.ID,
			ActorID: actorID,
			Folder:  &created,
		},
	}, nil
}

// NewCreateFile inserts a file into one of the active workspace's folders.
func NewCreateFile(s *State, actorID string, file store.File) (*Command, error) {
	ws, ok := s.CurrentWorkspace()
	if !ok {
		return nil, ErrNoWorkspace
	}
	if _, ok := s.Folder(file.FolderID); !ok {
		return nil, ErrItemNotFound
	}
	if file.ID == "" {
		file.ID = util.NewID("file")
	}
	file.WorkspaceID = ws.ID

	created := file
	return &Command{
		name:        "create_file",
		failMessage: "Could not create the file.",
		sharedRoom:  ws.Visibility == store.VisibilityShared,
		forward:     func() bool { return s.InsertFile(created) },
		inverse:     func() { s.RemoveFile(created.FolderID, created.ID) },
		persist: func(ctx context.Context, p Persister) error {
			return p.CreateFile(ctx, created)
		},
		event: &event.Event{
			Name:    event.AddFile,
			RoomID:  ws.ID,
			ActorID: actorID,
			File:    &created,
		},
	}, nil
}

// NewRename changes an item's title.
func NewRename(s *State, actorID string, ref ItemRef, title string) (*Command, error) {
	return newFieldChange(s, actorID, ref, event.ChangeTitle, "Could not rename the item.", title, "")
}

// NewSetIcon changes an item's icon.
func NewSetIcon(s *State, actorID string, ref ItemRef, icon string) (*Command, error) {
	return newFieldChange(s, actorID, ref, event.ChangeIcon, "Could not update the icon.", icon, "")
}

// NewSetBanner changes an item's banner image. The url and storage id come
// from a prior upload to banner storage.
func NewSetBanner(s *State, actorID string, ref ItemRef, url, storageID string) (*Command, error) {
	return newFieldChange(s, actorID, ref, event.ChangeBanner, "Could not update the banner.", url, storageID)
}

func newFieldChange(s *State, actorID string, ref ItemRef, name event.Name, failMessage, value, storageID string) (*Command, error) {
	ws, ok := s.CurrentWorkspace()
	if !ok {
		return nil, ErrNoWorkspace
	}

	var prior, priorStorage string
	var apply func(string, string) bool
	switch name {
	case event.ChangeTitle:
		title, ok := s.Title(ref)
		if !ok {
			return nil, ErrItemNotFound
		}
		prior = title
		apply = func(v, _ string) bool { return s.SetTitle(ref, v) }
	case event.ChangeIcon:
		icon, ok := s.Icon(ref)
		if !ok {
			return nil, ErrItemNotFound
		}
		prior = icon
		apply = func(v, _ string) bool { return s.SetIcon(ref, v) }
	case event.ChangeBanner:
		url, storage, ok := s.Banner(ref)
		if !ok {
			return nil, ErrItemNotFound
		}
		prior, priorStorage = url, storage
		apply = func(v, sid string) bool { return s.SetBanner(ref, v, sid) }
	default:
		return nil, fmt.Errorf("not a field change event: %s", name)
	}

	persist, err := fieldPersist(s, ref, name, value, storageID)
	if err != nil {
		return nil, err
	}

	return &Command{
		name:        string(name),
		failMessage: failMessage,
		sharedRoom:  ws.Visibility == store.VisibilityShared,
		forward:     func() bool { return apply(value, storageID) },
		inverse:     func() { apply(prior, priorStorage) },
		persist:     persist,
		event: &event.Event{
			Name:    name,
			RoomID:  ws.ID,
			ActorID: actorID,
			FieldChange: &event.FieldChange{
				ItemID:          ref.ID,
				ItemType:        ref.Type,
				FolderID:        ref.FolderID,
				Value:           value,
				BannerStorageID: storageID,
			},
		},
	}, nil
}

// fieldPersist captures the post-change entity now so the persistence call is
// independent of any state mutations that happen after construction.
func fieldPersist(s *State, ref ItemRef, name event.Name, value, storageID string) (func(context.Context, Persister) error, error) {
	applyField := func(title, icon, bannerURL, bannerStorageID *string) {
		switch name {
		case event.ChangeTitle:
			*title = value
		case event.ChangeIcon:
			*icon = value
		case event.ChangeBanner:
			*bannerURL = value
			*bannerStorageID = storageID
		}
	}

	switch ref.Type {
	case event.ItemWorkspace:
		ws, ok := s.CurrentWorkspace()
		if !ok || ws.ID != ref.ID {
			return nil, ErrItemNotFound
		}
		applyField(&ws.Title, &ws.Icon, &ws.BannerURL, &ws.BannerStorageID)
		return func(ctx context.Context, p Persister) error {
			return p.UpdateWorkspace(ctx, ws)
		}, nil
	case event.ItemFolder:
		folder, ok := s.Folder(ref.ID)
		if !ok {
			return nil, ErrItemNotFound
		}
		applyField(&folder.Title, &folder.Icon, &folder.BannerURL, &folder.BannerStorageID)
		return func(ctx context.Context, p Persister) error {
			return p.UpdateFolder(ctx, folder)
		}, nil
	case event.ItemFile:
		file, ok := s.File(ref.FolderID, ref.ID)
		if !ok {
			return nil, ErrItemNotFound
		}
		applyField(&file.Title, &file.Icon, &file.BannerURL, &file.BannerStorageID)
		return func(ctx context.Context, p Persister) error {
			return p.UpdateFile(ctx, file)
		}, nil
	}
	return nil, fmt.Errorf("unknown item type %q", ref.Type)
}

// NewSetTrash moves a folder or file into or out of the trash. Trashing
// records the actor; restoring clears it.
func NewSetTrash(s *State, actorID string, ref ItemRef, inTrash bool) (*Command, error) {
	ws, ok := s.CurrentWorkspace()
	if !ok {
		return nil, ErrNoWorkspace
	}
	if ref.Type != event.ItemFolder && ref.Type != event.ItemFile {
		return nil, fmt.Errorf("only folders and files can be trashed")
	}
	priorInTrash, priorTrashedBy, ok := s.Trash(ref)
	if !ok {
		return nil, ErrItemNotFound
	}

	trashedBy := ""
	if inTrash {
		trashedBy = actorID
	}

	return &Command{
		name:        "change_trash",
		failMessage: "Could not update the trash state.",
		sharedRoom:  ws.Visibility == store.VisibilityShared,
		forward:     func() bool { return s.SetTrash(ref, inTrash, trashedBy) },
		inverse:     func() { s.SetTrash(ref, priorInTrash, priorTrashedBy) },
		persist: func(ctx context.Context, p Persister) error {
			if ref.Type == event.ItemFolder {
				return p.SetFolderTrash(ctx, ref.ID, inTrash, trashedBy)
			}
			return p.SetFileTrash(ctx, ref.ID, inTrash, trashedBy)
		},
		event: &event.Event{
			Name:    event.ChangeTrash,
			RoomID:  ws.ID,
			ActorID: actorID,
			TrashChange: &event.TrashChange{
				ItemID:    ref.ID,
				ItemType:  ref.Type,
				FolderID:  ref.FolderID,
				InTrash:   inTrash,
				TrashedBy: trashedBy,
			},
		},
	}, nil
}

// NewDeleteItem permanently deletes a trashed folder or file. Once the
// persistence call confirms there is no way back; until then a failure still
// restores the optimistic removal.
func NewDeleteItem(s *State, actorID string, ref ItemRef) (*Command, error) {
	ws, ok := s.CurrentWorkspace()
	if !ok {
		return nil, ErrNoWorkspace
	}

	cmd := &Command{
		name:        "delete_item",
		failMessage: "Could not delete the item.",
		sharedRoom:  ws.Visibility == store.VisibilityShared,
		event: &event.Event{
			Name:    event.DeleteItem,
			RoomID:  ws.ID,
			ActorID: actorID,
			ItemDelete: &event.ItemDelete{
				ItemID:   ref.ID,
				ItemType: ref.Type,
				FolderID: ref.FolderID,
			},
		},
	}

	switch ref.Type {
	case event.ItemFolder:
		removed, ok := s.Folder(ref.ID)
		if !ok {
			return nil, ErrItemNotFound
		}
		cmd.forward = func() bool { _, ok := s.RemoveFolder(ref.ID); return ok }
		cmd.inverse = func() { s.InsertFolder(removed) }
		cmd.persist = func(ctx context.Context, p Persister) error {
			return p.DeleteFolder(ctx, ref.ID)
		}
	case event.ItemFile:
		removed, ok := s.File(ref.FolderID, ref.ID)
		if !ok {
			return nil, ErrItemNotFound
		}
		cmd.forward = func() bool { _, ok := s.RemoveFile(ref.FolderID, ref.ID); return ok }
		cmd.inverse = func() { s.InsertFile(removed) }
		cmd.persist = func(ctx context.Context, p Persister) error {
			return p.DeleteFile(ctx, ref.ID)
		}
	default:
		return nil, fmt.Errorf("cannot permanently delete item type %q", ref.Type)
	}
	return cmd, nil
}

// NewUpdateWorkspaceSettings replaces the active workspace's settings
// (title, icon, banner, visibility, collaborators) in one operation.
func NewUpdateWorkspaceSettings(s *State, actorID string, updated store.Workspace) (*Command, error) {
	prior, ok := s.CurrentWorkspace()
	if !ok || prior.ID != updated.ID {
		return nil, ErrNoWorkspace
	}
	if updated.Visibility == store.VisibilityShared && len(updated.Collaborators) == 0 {
		return nil, fmt.Errorf("shared workspace needs at least one collaborator")
	}
	// Keep tree ownership with the state; settings updates never carry folders.
	updated.Folders = prior.Folders

	return &Command{
		name:        "update_workspace",
		failMessage: "Could not update the workspace settings.",
		sharedRoom:  prior.Visibility == store.VisibilityShared || updated.Visibility == store.VisibilityShared,
		forward:     func() bool { return s.ReplaceCurrent(updated) },
		inverse:     func() { s.ReplaceCurrent(prior) },
		persist: func(ctx context.Context, p Persister) error {
			if err := p.UpdateWorkspace(ctx, updated); err != nil {
				return err
			}
			added, removed := collaboratorDiff(prior.Collaborators, updated.Collaborators)
			if len(added) > 0 {
				if err := p.AddCollaborators(ctx, updated.ID, added); err != nil {
					return err
				}
			}
			if len(removed) > 0 {
				if err := p.RemoveCollaborators(ctx, updated.ID, removed); err != nil {
					return err
				}
			}
			return nil
		},
		event: &event.Event{
			Name:            event.UpdateWorkspace,
			RoomID:          updated.ID,
			ActorID:         actorID,
			WorkspaceUpdate: &updated,
		},
	}, nil
}

// NewAddCollaborators shares the active workspace with more users.
func NewAddCollaborators(s *State, actorID string, userIDs []string) (*Command, error) {
	prior, ok := s.CurrentWorkspace()
	if !ok {
		return nil, ErrNoWorkspace
	}

	updated := copyWorkspace(prior)
	existing := map[string]bool{}
	for _, c := range prior.Collaborators {
		existing[c.UserID] = true
	}
	var added []string
	for _, userID := range userIDs {
		if existing[userID] {
			continue
		}
		existing[userID] = true
		added = append(added, userID)
		updated.Collaborators = append(updated.Collaborators, store.Collaborator{
			WorkspaceID: prior.ID,
			UserID:      userID,
		})
	}
	updated.Visibility = store.VisibilityShared

	return &Command{
		name:        "add_collaborators",
		failMessage: "Could not add collaborators.",
		sharedRoom:  true,
		forward:     func() bool { return s.ReplaceCurrent(updated) },
		inverse:     func() { s.ReplaceCurrent(prior) },
		persist: func(ctx context.Context, p Persister) error {
			if prior.Visibility != store.VisibilityShared {
				if err := p.UpdateWorkspace(ctx, updated); err != nil {
					return err
				}
			}
			if len(added) == 0 {
				return nil
			}
			return p.AddCollaborators(ctx, prior.ID, added)
		},
		event: &event.Event{
			Name:            event.UpdateWorkspace,
			RoomID:          prior.ID,
			ActorID:         actorID,
			WorkspaceUpdate: &updated,
		},
	}, nil
}

// NewDeleteWorkspace permanently deletes the active workspace.
func NewDeleteWorkspace(s *State, actorID string) (*Command, error) {
	ws, ok := s.CurrentWorkspace()
	if !ok {
		return nil, ErrNoWorkspace
	}

	return &Command{
		name:        "delete_workspace",
		failMessage: "Could not delete the workspace.",
		sharedRoom:  ws.Visibility == store.VisibilityShared,
		forward:     func() bool { _, ok := s.RemoveWorkspace(ws.ID); return ok },
		inverse: func() {
			s.AddWorkspace(ws)
			s.SetCurrent(ws)
		},
		persist: func(ctx context.Context, p Persister) error {
			return p.DeleteWorkspace(ctx, ws.ID)
		},
		event: &event.Event{
			Name:    event.DeleteWorkspace,
			RoomID:  ws.ID,
			ActorID: actorID,
		},
	}, nil
}

func collaboratorDiff(prior, updated []store.Collaborator) (added, removed []string) {
	priorSet := map[string]bool{}
	for _, c := range prior {
		priorSet[c.UserID] = true
	}
	updatedSet := map[string]bool{}
	for _, c := range updated {
		updatedSet[c.UserID] = true
		if !priorSet[c.UserID] {
			added = append(added, c.UserID)
		}
	}
	for _, c := range prior {
		if !updatedSet[c.UserID] {
			removed = append(removed, c.UserID)
		}
	}
	return added, removed
}
