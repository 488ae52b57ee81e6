package store

import "time"

const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
)

// Workspace is the root collaboration unit. Folders are owned exclusively by
// their workspace; deletion is logical (trash flag) until a permanent delete.
type Workspace struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Icon            string         `json:"icon"`
	BannerURL       string         `json:"bannerUrl"`
	BannerStorageID string         `json:"bannerStorageId"`
	Visibility      string         `json:"visibility"`
	OwnerID         string         `json:"ownerId"`
	InTrash         bool           `json:"inTrash"`
	Folders         []Folder       `json:"folders,omitempty"`
	Collaborators   []Collaborator `json:"collaborators,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

type Folder struct {
	ID              string    `json:"id"`
	WorkspaceID     string    `json:"workspaceId"`
	Title           string    `json:"title"`
	Icon            string    `json:"icon"`
	BannerURL       string    `json:"bannerUrl"`
	BannerStorageID string    `json:"bannerStorageId"`
	InTrash         bool      `json:"inTrash"`
	TrashedBy       string    `json:"trashedBy"`
	Files           []File    `json:"files,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type File struct {
	ID              string    `json:"id"`
	FolderID        string    `json:"folderId"`
	WorkspaceID     string    `json:"workspaceId"`
	Title           string    `json:"title"`
	Icon            string    `json:"icon"`
	BannerURL       string    `json:"bannerUrl"`
	BannerStorageID string    `json:"bannerStorageId"`
	InTrash         bool      `json:"inTrash"`
	TrashedBy       string    `json:"trashedBy"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Collaborator associates a user with a shared workspace. It has no lifecycle
// of its own beyond the association.
type Collaborator struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	AddedAt     time.Time `json:"addedAt"`
}
