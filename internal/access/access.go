// Package access resolves what a user may do with a workspace. There are
// only two grants: ownership and collaborator membership.
package access

import "quillpad/sync/internal/store"

type Role string

const (
	RoleNone         Role = "none"
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
)

// RoleOf resolves userID's role in ws.
func RoleOf(ws store.Workspace, userID string) Role {
	if userID == "" {
		return RoleNone
	}
	if ws.OwnerID == userID {
		return RoleOwner
	}
	for _, c := range ws.Collaborators {
		if c.UserID == userID {
			return RoleCollaborator
		}
	}
	return RoleNone
}

// CanJoinRoom reports whether userID may join the workspace's realtime room.
// Only shared workspaces have rooms, and only members may join them.
func CanJoinRoom(ws store.Workspace, userID string) bool {
	if ws.Visibility != store.VisibilityShared {
		return false
	}
	return RoleOf(ws, userID) != RoleNone
}

// CanMutate reports whether userID may change the workspace or its contents.
// Owners and collaborators both edit; there is no read-only membership.
func CanMutate(ws store.Workspace, userID string) bool {
	return RoleOf(ws, userID) != RoleNone
}
