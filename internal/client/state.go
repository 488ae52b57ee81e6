// Package client is the sync SDK embedded in Quillpad clients: an optimistic
// state container for one workspace tree, a command dispatcher that rolls back
// failed persistence, a reducer for inbound realtime events, the channel
// client that talks to the relay, and the persisted active-workspace pointer.
package client

import (
	"sync"

	"quillpad/sync/internal/event"
	"quillpad/sync/internal/store"
)

// ItemRef names one workspace, folder or file inside the current workspace.
// FolderID is only meaningful for files.
type ItemRef struct {
	Type     event.ItemType
	ID       string
	FolderID string
}

// Snapshot is a consistent copy of the whole state, safe to hand to renderers.
type Snapshot struct {
	Current           *store.Workspace
	Private           []store.Workspace
	Shared            []store.Workspace
	Collaborating     []store.Workspace
	Loading           bool
	BackgroundOverlay bool
}

// State holds the client's optimistic view of its workspaces. It is mutated
// from two directions only: the dispatcher (local intent) and the reducer
// (remote intent). Every mutation happens under one mutex and is visible to
// renderers only as a whole; there are no partial writes.
type State struct {
	mu                sync.Mutex
	current           *store.Workspace
	private           []store.Workspace
	shared            []store.Workspace
	collaborating     []store.Workspace
	loading           bool
	backgroundOverlay bool

	nextListener int
	listeners    map[int]func()
}

func NewState() *State {
	return &State{listeners: map[int]func(){}}
}

// Subscribe registers fn to run after every mutation. The returned function
// unsubscribes. Callbacks must not mutate the state re-entrantly.
func (s *State) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *State) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Snapshot returns a deep copy of the full state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Private:           copyWorkspaces(s.private),
		Shared:            copyWorkspaces(s.shared),
		Collaborating:     copyWorkspaces(s.collaborating),
		Loading:           s.loading,
		BackgroundOverlay: s.backgroundOverlay,
	}
	if s.current != nil {
		ws := copyWorkspace(*s.current)
		snap.Current = &ws
	}
	return snap
}

// CurrentID returns the active workspace id, or "" when none is open. The
// reducer uses it as the room filter.
func (s *State) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// CurrentWorkspace returns a deep copy of the active workspace.
func (s *State) CurrentWorkspace() (store.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return store.Workspace{}, false
	}
	return copyWorkspace(*s.current), true
}

// SetCurrent opens a workspace as the active one.
func (s *State) SetCurrent(ws store.Workspace) {
	s.mu.Lock()
	copied := copyWorkspace(ws)
	s.current = &copied
	s.mu.Unlock()
	s.notify()
}

// ClearCurrent forgets the active workspace (navigation away, revocation).
func (s *State) ClearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.notify()
}

// ReplaceCurrent swaps the active workspace tree wholesale, provided the ids
// match. Used when workspace settings arrive from another client.
func (s *State) ReplaceCurrent(ws store.Workspace) bool {
	s.mu.Lock()
	if s.current == nil || s.current.ID != ws.ID {
		s.mu.Unlock()
		return false
	}
	copied := copyWorkspace(ws)
	s.current = &copied
	s.mu.Unlock()
	s.notify()
	return true
}

// SetLists replaces the category-partitioned workspace lists.
func (s *State) SetLists(private, shared, collaborating []store.Workspace) {
	s.mu.Lock()
	s.private = copyWorkspaces(private)
	s.shared = copyWorkspaces(shared)
	s.collaborating = copyWorkspaces(collaborating)
	s.mu.Unlock()
	s.notify()
}

// AddWorkspace appends a workspace to the list matching its visibility.
func (s *State) AddWorkspace(ws store.Workspace) {
	s.mu.Lock()
	if ws.Visibility == store.VisibilityShared {
		s.shared = append(s.shared, copyWorkspace(ws))
	} else {
		s.private = append(s.private, copyWorkspace(ws))
	}
	s.mu.Unlock()
	s.notify()
}

// RemoveWorkspace drops a workspace from every list and clears it if active.
// The removed copy is returned so a failed delete can be rolled back.
func (s *State) RemoveWorkspace(workspaceID string) (store.Workspace, bool) {
	s.mu.Lock()
	var removed store.Workspace
	found := false
	for _, list := range []*[]store.Workspace{&s.private, &s.shared, &s.collaborating} {
		for i, ws := range *list {
			if ws.ID == workspaceID {
				removed = ws
				found = true
				*list = append((*list)[:i], (*list)[i+1:]...)
				break
			}
		}
	}
	if s.current != nil && s.current.ID == workspaceID {
		if !found {
			removed = *s.current
			found = true
		}
		s.current = nil
	}
	s.mu.Unlock()
	if found {
		s.notify()
	}
	return removed, found
}

func (s *State) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
	s.notify()
}

func (s *State) SetBackgroundOverlay(visible bool) {
	s.mu.Lock()
	s.backgroundOverlay = visible
	s.mu.Unlock()
	s.notify()
}

// Folder and file mutations. All of them no-op and report false when the
// target is missing; the reducer treats that as a stale event.

func (s *State) InsertFolder(folder store.Folder) bool {
	s.mu.Lock()
	if s.current == nil || s.current.ID != folder.WorkspaceID {
		s.mu.Unlock()
		return false
	}
	s.current.Folders = append(s.current.Folders, copyFolder(folder))
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *State) RemoveFolder(folderID string) (store.Folder, bool) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return store.Folder{}, false
	}
	for i, f := range s.current.Folders {
		if f.ID == folderID {
			removed := copyFolder(f)
			s.current.Folders = append(s.current.Folders[:i], s.current.Folders[i+1:]...)
			s.mu.Unlock()
			s.notify()
			return removed, true
		}
	}
	s.mu.Unlock()
	return store.Folder{}, false
}

func (s *State) InsertFile(file store.File) bool {
	s.mu.Lock()
	folder := s.folderLocked(file.FolderID)
	if folder == nil {
		s.mu.Unlock()
		return false
	}
	folder.Files = append(folder.Files, file)
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *State) RemoveFile(folderID, fileID string) (store.File, bool) {
	s.mu.Lock()
	folder := s.folderLocked(folderID)
	if folder == nil {
		s.mu.Unlock()
		return store.File{}, false
	}
	for i, f := range folder.Files {
		if f.ID == fileID {
			removed := f
			folder.Files = append(folder.Files[:i], folder.Files[i+1:]...)
			s.mu.Unlock()
			s.notify()
			return removed, true
		}
	}
	s.mu.Unlock()
	return store.File{}, false
}

// Folder returns a deep copy of one folder in the current workspace.
func (s *State) Folder(folderID string) (store.Folder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder := s.folderLocked(folderID)
	if folder == nil {
		return store.Folder{}, false
	}
	return copyFolder(*folder), true
}

// File returns a copy of one file in the current workspace.
func (s *State) File(folderID, fileID string) (store.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file := s.fileLocked(folderID, fileID)
	if file == nil {
		return store.File{}, false
	}
	return *file, true
}

// Title reads the current title of an item.
func (s *State) Title(ref ItemRef) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields := s.fieldsLocked(ref); fields != nil {
		return *fields.title, true
	}
	return "", false
}

func (s *State) SetTitle(ref ItemRef, title string) bool {
	s.mu.Lock()
	fields := s.fieldsLocked(ref)
	if fields == nil {
		s.mu.Unlock()
		return false
	}
	*fields.title = title
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *State) Icon(ref ItemRef) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields := s.fieldsLocked(ref); fields != nil {
		return *fields.icon, true
	}
	return "", false
}

func (s *State) SetIcon(ref ItemRef, icon string) bool {
	s.mu.Lock()
	fields := s.fieldsLocked(ref)
	if fields == nil {
		s.mu.Unlock()
		return false
	}
	*fields.icon = icon
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *State) Banner(ref ItemRef) (url, storageID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields := s.fieldsLocked(ref); fields != nil {
		return *fields.bannerURL, *fields.bannerStorageID, true
	}
	return "", "", false
}

func (s *State) SetBanner(ref ItemRef, url, storageID string) bool {
	s.mu.Lock()
	fields := s.fieldsLocked(ref)
	if fields == nil {
		s.mu.Unlock()
		return false
	}
	*fields.bannerURL = url
	*fields.bannerStorageID = storageID
	s.mu.Unlock()
	s.notify()
	return true
}

// Trash reads the trash flag and trash actor of a folder or file.
func (s *State) Trash(ref ItemRef) (inTrash bool, trashedBy string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ref.Type {
	case event.ItemFolder:
		if folder := s.folderLocked(ref.ID); folder != nil {
			return folder.InTrash, folder.TrashedBy, true
		}
	case event.ItemFile:
		if file := s.fileLocked(ref.FolderID, ref.ID); file != nil {
			return file.InTrash, file.TrashedBy, true
		}
	}
	return false, "", false
}

func (s *State) SetTrash(ref ItemRef, inTrash bool, trashedBy string) bool {
	s.mu.Lock()
	switch ref.Type {
	case event.ItemFolder:
		if folder := s.folderLocked(ref.ID); folder != nil {
			folder.InTrash = inTrash
			folder.TrashedBy = trashedBy
			s.mu.Unlock()
			s.notify()
			return true
		}
	case event.ItemFile:
		if file := s.fileLocked(ref.FolderID, ref.ID); file != nil {
			file.InTrash = inTrash
			file.TrashedBy = trashedBy
			s.mu.Unlock()
			s.notify()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// itemFields points at the shared display fields of whichever item ref names.
type itemFields struct {
	title           *string
	icon            *string
	bannerURL       *string
	bannerStorageID *string
}

func (s *State) fieldsLocked(ref ItemRef) *itemFields {
	switch ref.Type {
	case event.ItemWorkspace:
		if s.current == nil || s.current.ID != ref.ID {
			return nil
		}
		return &itemFields{
			title:           &s.current.Title,
			icon:            &s.current.Icon,
			bannerURL:       &s.current.BannerURL,
			bannerStorageID: &s.current.BannerStorageID,
		}
	case event.ItemFolder:
		if folder := s.folderLocked(ref.ID); folder != nil {
			return &itemFields{
				title:           &folder.Title,
				icon:            &folder.Icon,
				bannerURL:       &folder.BannerURL,
				bannerStorageID: &folder.BannerStorageID,
			}
		}
	case event.ItemFile:
		if file := s.fileLocked(ref.FolderID, ref.ID); file != nil {
			return &itemFields{
				title:           &file.Title,
				icon:            &file.Icon,
				bannerURL:       &file.BannerURL,
				bannerStorageID: &file.BannerStorageID,
			}
		}
	}
	return nil
}

func (s *State) folderLocked(folderID string) *store.Folder {
	if s.current == nil {
		return nil
	}
	for i := range s.current.Folders {
		if s.current.Folders[i].ID == folderID {
			return &s.current.Folders[i]
		}
	}
	return nil
}

func (s *State) fileLocked(folderID, fileID string) *store.File {
	folder := s.folderLocked(folderID)
	if folder == nil {
		return nil
	}
	for i := range folder.Files {
		if folder.Files[i].ID == fileID {
			return &folder.Files[i]
		}
	}
	return nil
}

func copyWorkspace(ws store.Workspace) store.Workspace {
	copied := ws
	copied.Folders = copyFolders(ws.Folders)
	copied.Collaborators = append([]store.Collaborator(nil), ws.Collaborators...)
	return copied
}

func copyWorkspaces(workspaces []store.Workspace) []store.Workspace {
	if workspaces == nil {
		return nil
	}
	copied := make([]store.Workspace, len(workspaces))
	for i, ws := range workspaces {
		copied[i] = copyWorkspace(ws)
	}
	return copied
}

func copyFolder(folder store.Folder) store.Folder {
	copied := folder
	copied.Files = append([]store.File(nil), folder.Files...)
	return copied
}

func copyFolders(folders []store.Folder) []store.Folder {
	if folders == nil {
		return nil
	}
	copied := make([]store.Folder, len(folders))
	for i, f := range folders {
		copied[i] = copyFolder(f)
	}
	return copied
}
