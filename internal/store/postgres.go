package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Workspaces

func (s *PostgresStore) CreateWorkspace(ctx context.Context, ws Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, title, icon, banner_url, banner_storage_id, visibility, owner_id, in_trash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ws.ID, ws.Title, ws.Icon, ws.BannerURL, ws.BannerStorageID, ws.Visibility, ws.OwnerID, ws.InTrash)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateWorkspace(ctx context.Context, ws Workspace) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspaces
		SET title=$2, icon=$3, banner_url=$4, banner_storage_id=$5, visibility=$6, in_trash=$7
		WHERE id=$1
	`, ws.ID, ws.Title, ws.Icon, ws.BannerURL, ws.BannerStorageID, ws.Visibility, ws.InTrash)
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	// Folders, files and collaborators cascade at the schema level.
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

// GetWorkspace loads a workspace with its full folder/file tree and
// collaborator list.
func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, icon, banner_url, banner_storage_id, visibility, owner_id, in_trash, created_at
		FROM workspaces WHERE id=$1
	`, workspaceID).Scan(&ws.ID, &ws.Title, &ws.Icon, &ws.BannerURL, &ws.BannerStorageID, &ws.Visibility, &ws.OwnerID, &ws.InTrash, &ws.CreatedAt)
	if err != nil {
		return Workspace{}, err
	}

	folders, err := s.listFolders(ctx, workspaceID)
	if err != nil {
		return Workspace{}, err
	}
	files, err := s.listFiles(ctx, workspaceID)
	if err != nil {
		return Workspace{}, err
	}
	byFolder := map[string][]File{}
	for _, f := range files {
		byFolder[f.FolderID] = append(byFolder[f.FolderID], f)
	}
	for i := range folders {
		folders[i].Files = byFolder[folders[i].ID]
	}
	ws.Folders = folders

	collaborators, err := s.ListCollaborators(ctx, workspaceID)
	if err != nil {
		return Workspace{}, err
	}
	ws.Collaborators = collaborators
	return ws, nil
}

func (s *PostgresStore) ListPrivateWorkspaces(ctx context.Context, ownerID string) ([]Workspace, error) {
	return s.listWorkspaces(ctx, `
		SELECT id, title, icon, banner_url, banner_storage_id, visibility, owner_id, in_trash, created_at
		FROM workspaces WHERE owner_id=$1 AND visibility='private'
		ORDER BY created_at
	`, ownerID)
}

func (s *PostgresStore) ListSharedWorkspaces(ctx context.Context, ownerID string) ([]Workspace, error) {
	return s.listWorkspaces(ctx, `
		SELECT id, title, icon, banner_url, banner_storage_id, visibility, owner_id, in_trash, created_at
		FROM workspaces WHERE owner_id=$1 AND visibility='shared'
		ORDER BY created_at
	`, ownerID)
}

func (s *PostgresStore) ListCollaboratingWorkspaces(ctx context.Context, userID string) ([]Workspace, error) {
	return s.listWorkspaces(ctx, `
		SELECT w.id, w.title, w.icon, w.banner_url, w.banner_storage_id, w.visibility, w.owner_id, w.in_trash, w.created_at
		FROM workspaces w
		JOIN collaborators c ON c.workspace_id = w.id
		WHERE c.user_id=$1 AND w.owner_id <> $1
		ORDER BY w.created_at
	`, userID)
}

func (s *PostgresStore) listWorkspaces(ctx context.Context, query string, arg any) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.Title, &ws.Icon, &ws.BannerURL, &ws.BannerStorageID, &ws.Visibility, &ws.OwnerID, &ws.InTrash, &ws.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// Folders

func (s *PostgresStore) CreateFolder(ctx context.Context, folder Folder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, workspace_id, title, icon, banner_url, banner_storage_id, in_trash, trashed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, folder.ID, folder.WorkspaceID, folder.Title, folder.Icon, folder.BannerURL, folder.BannerStorageID, folder.InTrash, folder.TrashedBy)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateFolder(ctx context.Context, folder Folder) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE folders
		SET title=$2, icon=$3, banner_url=$4, banner_storage_id=$5
		WHERE id=$1
	`, folder.ID, folder.Title, folder.Icon, folder.BannerURL, folder.BannerStorageID)
	if err != nil {
		return fmt.Errorf("update folder: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SetFolderTrash(ctx context.Context, folderID string, inTrash bool, trashedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE folders SET in_trash=$2, trashed_by=$3 WHERE id=$1
	`, folderID, inTrash, trashedBy)
	if err != nil {
		return fmt.Errorf("set folder trash: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteFolder(ctx context.Context, folderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id=$1`, folderID)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) listFolders(ctx context.Context, workspaceID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, icon, banner_url, banner_storage_id, in_trash, trashed_by, created_at
		FROM folders WHERE workspace_id=$1
		ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.WorkspaceID, &f.Title, &f.Icon, &f.BannerURL, &f.BannerStorageID, &f.InTrash, &f.TrashedBy, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// Files

func (s *PostgresStore) CreateFile(ctx context.Context, file File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, folder_id, workspace_id, title, icon, banner_url, banner_storage_id, in_trash, trashed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, file.ID, file.FolderID, file.WorkspaceID, file.Title, file.Icon, file.BannerURL, file.BannerStorageID, file.InTrash, file.TrashedBy)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateFile(ctx context.Context, file File) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files
		SET title=$2, icon=$3, banner_url=$4, banner_storage_id=$5
		WHERE id=$1
	`, file.ID, file.Title, file.Icon, file.BannerURL, file.BannerStorageID)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SetFileTrash(ctx context.Context, fileID string, inTrash bool, trashedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files SET in_trash=$2, trashed_by=$3 WHERE id=$1
	`, fileID, inTrash, trashedBy)
	if err != nil {
		return fmt.Errorf("set file trash: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *PostgresStore) listFiles(ctx context.Context, workspaceID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folder_id, workspace_id, title, icon, banner_url, banner_storage_id, in_trash, trashed_by, created_at
		FROM files WHERE workspace_id=$1
		ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.FolderID, &f.WorkspaceID, &f.Title, &f.Icon, &f.BannerURL, &f.BannerStorageID, &f.InTrash, &f.TrashedBy, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Collaborators

func (s *PostgresStore) AddCollaborators(ctx context.Context, workspaceID string, userIDs []string) error {
	for _, userID := range userIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO collaborators (workspace_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (workspace_id, user_id) DO NOTHING
		`, workspaceID, userID)
		if err != nil {
			return fmt.Errorf("add collaborator: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) RemoveCollaborators(ctx context.Context, workspaceID string, userIDs []string) error {
	for _, userID := range userIDs {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM collaborators WHERE workspace_id=$1 AND user_id=$2
		`, workspaceID, userID)
		if err != nil {
			return fmt.Errorf("remove collaborator: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListCollaborators(ctx context.Context, workspaceID string) ([]Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workspace_id, user_id, added_at
		FROM collaborators WHERE workspace_id=$1
		ORDER BY added_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	var collaborators []Collaborator
	for rows.Next() {
		var c Collaborator
		if err := rows.Scan(&c.WorkspaceID, &c.UserID, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collaborators = append(collaborators, c)
	}
	return collaborators, rows.Err()
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
