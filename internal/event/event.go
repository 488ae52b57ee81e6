// Package event defines the realtime event catalogue exchanged through the
// relay. Each event is a typed payload wrapped in a JSON envelope carrying the
// room id and the actor id; receivers use those two fields to filter before
// they ever look at the payload.
package event

import (
	"encoding/json"
	"fmt"

	"quillpad/sync/internal/store"
)

type Name string

const (
	AddFolder       Name = "add_folder"
	AddFile         Name = "add_file"
	ChangeTitle     Name = "change_title"
	ChangeIcon      Name = "change_icon"
	ChangeBanner    Name = "change_banner"
	ChangeTrash     Name = "change_trash"
	DeleteItem      Name = "delete_item"
	UpdateWorkspace Name = "update_workspace"
	DeleteWorkspace Name = "delete_workspace"
)

type ItemType string

const (
	ItemWorkspace ItemType = "workspace"
	ItemFolder    ItemType = "folder"
	ItemFile      ItemType = "file"
)

// Event is one decoded realtime event. Exactly one payload field is set,
// matching Name.
type Event struct {
	Name    Name
	RoomID  string
	ActorID string

	Folder          *store.Folder    // AddFolder
	File            *store.File      // AddFile
	FieldChange     *FieldChange     // ChangeTitle, ChangeIcon, ChangeBanner
	TrashChange     *TrashChange     // ChangeTrash
	ItemDelete      *ItemDelete      // DeleteItem
	WorkspaceUpdate *store.Workspace // UpdateWorkspace
}

// FieldChange updates a single display field (title, icon or banner) on a
// workspace, folder or file. FolderID is empty unless ItemType is file.
type FieldChange struct {
	ItemID          string   `json:"itemId"`
	ItemType        ItemType `json:"itemType"`
	FolderID        string   `json:"folderId,omitempty"`
	Value           string   `json:"value"`
	BannerStorageID string   `json:"bannerStorageId,omitempty"`
}

type TrashChange struct {
	ItemID    string   `json:"itemId"`
	ItemType  ItemType `json:"itemType"`
	FolderID  string   `json:"folderId,omitempty"`
	InTrash   bool     `json:"inTrash"`
	TrashedBy string   `json:"trashedBy"`
}

type ItemDelete struct {
	ItemID   string   `json:"itemId"`
	ItemType ItemType `json:"itemType"`
	FolderID string   `json:"folderId,omitempty"`
}

type envelope struct {
	Event   Name            `json:"event"`
	RoomID  string          `json:"roomId"`
	ActorID string          `json:"actorId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes an event into its wire envelope.
func Encode(e Event) ([]byte, error) {
	var payload any
	switch e.Name {
	case AddFolder:
		payload = e.Folder
	case AddFile:
		payload = e.File
	case ChangeTitle, ChangeIcon, ChangeBanner:
		payload = e.FieldChange
	case ChangeTrash:
		payload = e.TrashChange
	case DeleteItem:
		payload = e.ItemDelete
	case UpdateWorkspace:
		payload = e.WorkspaceUpdate
	case DeleteWorkspace:
		payload = nil
	default:
		return nil, fmt.Errorf("encode event: unknown event %q", e.Name)
	}

	env := envelope{Event: e.Name, RoomID: e.RoomID, ActorID: e.ActorID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", e.Name, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses a wire envelope back into a typed event. Unknown event names
// and malformed payloads are errors, never panics; callers at the channel
// boundary drop such frames.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}

	e := Event{Name: env.Event, RoomID: env.RoomID, ActorID: env.ActorID}
	switch env.Event {
	case AddFolder:
		e.Folder = &store.Folder{}
		if err := json.Unmarshal(env.Payload, e.Folder); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	case AddFile:
		e.File = &store.File{}
		if err := json.Unmarshal(env.Payload, e.File); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	case ChangeTitle, ChangeIcon, ChangeBanner:
		e.FieldChange = &FieldChange{}
		if err := json.Unmarshal(env.Payload, e.FieldChange); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	case ChangeTrash:
		e.TrashChange = &TrashChange{}
		if err := json.Unmarshal(env.Payload, e.TrashChange); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	case DeleteItem:
		e.ItemDelete = &ItemDelete{}
		if err := json.Unmarshal(env.Payload, e.ItemDelete); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	case UpdateWorkspace:
		e.WorkspaceUpdate = &store.Workspace{}
		if err := json.Unmarshal(env.Payload, e.WorkspaceUpdate); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	case DeleteWorkspace:
		// no payload
	default:
		return Event{}, fmt.Errorf("decode event: unknown event %q", env.Event)
	}
	return e, nil
}

// RoomOf peeks at the envelope's room id without decoding the payload. The
// relay uses this to validate inbound frames cheaply.
func RoomOf(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode event envelope: %w", err)
	}
	return env.RoomID, nil
}
