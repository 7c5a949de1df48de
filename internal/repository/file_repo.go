package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/askdesk/internal/domain"
)

// FileRepository handles project file persistence
type FileRepository struct {
	db *DB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, filename, original_name, file_path, file_size, mime_type, file_type,
	metadata, project_id, user_id, created_at`

// Create records a file and adds its size to the project totals
func (r *FileRepository) Create(file *domain.ProjectFile) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	file.CreatedAt = time.Now()
	metadataJSON, _ := json.Marshal(file.Metadata)

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO project_files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, file.ID, file.Filename, file.OriginalName, file.FilePath, file.FileSize,
		file.MimeType, file.FileType, string(metadataJSON), file.ProjectID,
		file.UserID, file.CreatedAt); err != nil {
		return err
	}

	if err := adjustProjectTotals(tx, file.ProjectID, 1, file.FileSize); err != nil {
		return err
	}

	return tx.Commit()
}

// Get retrieves a file owned by userID
func (r *FileRepository) Get(id, userID string) (*domain.ProjectFile, error) {
	file, err := scanFile(r.db.QueryRow(`
		SELECT `+fileColumns+` FROM project_files WHERE id = ? AND user_id = ?
	`, id, userID))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ListByProject retrieves the files of a project, newest first
func (r *FileRepository) ListByProject(projectID string) ([]*domain.ProjectFile, error) {
	return r.list(`WHERE project_id = ?`, projectID)
}

// ListByUser retrieves every file of a user, newest first
func (r *FileRepository) ListByUser(userID string) ([]*domain.ProjectFile, error) {
	return r.list(`WHERE user_id = ?`, userID)
}

func (r *FileRepository) list(where string, arg string) ([]*domain.ProjectFile, error) {
	rows, err := r.db.Query(`SELECT `+fileColumns+` FROM project_files `+where+`
		ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*domain.ProjectFile{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// Delete removes a file and subtracts its size from the project totals
func (r *FileRepository) Delete(file *domain.ProjectFile) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM project_files WHERE id = ? AND project_id = ?`, file.ID, file.ProjectID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("file %s: %w", file.ID, domain.ErrNotFound)
	}

	if err := adjustProjectTotals(tx, file.ProjectID, -1, -file.FileSize); err != nil {
		return err
	}

	return tx.Commit()
}

func adjustProjectTotals(tx *sql.Tx, projectID string, files int, size int64) error {
	_, err := tx.Exec(`
		UPDATE projects SET file_count = file_count + ?, total_size = total_size + ?, updated_at = ?
		WHERE id = ?
	`, files, size, time.Now(), projectID)
	return err
}

func scanFile(row rowScanner) (*domain.ProjectFile, error) {
	file := &domain.ProjectFile{}
	var mimeType, fileType, metadataJSON sql.NullString

	if err := row.Scan(&file.ID, &file.Filename, &file.OriginalName, &file.FilePath,
		&file.FileSize, &mimeType, &fileType, &metadataJSON, &file.ProjectID,
		&file.UserID, &file.CreatedAt); err != nil {
		return nil, err
	}

	file.MimeType = mimeType.String
	file.FileType = fileType.String
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &file.Metadata)
	}
	return file, nil
}
