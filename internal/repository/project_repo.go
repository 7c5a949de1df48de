package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/askdesk/internal/domain"
)

// ProjectRepository handles project persistence
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, description, status, total_size, file_count, user_id, created_at, updated_at`

// Create creates a new project
func (r *ProjectRepository) Create(project *domain.Project) error {
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	if project.Status == "" {
		project.Status = domain.ProjectStatusActive
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.Description, project.Status, project.TotalSize,
		project.FileCount, project.UserID, project.CreatedAt, project.UpdatedAt)

	return err
}

// Get retrieves a project owned by userID
func (r *ProjectRepository) Get(id, userID string) (*domain.Project, error) {
	project, err := scanProject(r.db.QueryRow(`
		SELECT `+projectColumns+` FROM projects WHERE id = ? AND user_id = ?
	`, id, userID))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

// ListByUser retrieves all projects of a user, newest first
func (r *ProjectRepository) ListByUser(userID string) ([]*domain.Project, error) {
	rows, err := r.db.Query(`
		SELECT `+projectColumns+` FROM projects WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []*domain.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}

	return projects, rows.Err()
}

// Update updates a project's name, description and status
func (r *ProjectRepository) Update(project *domain.Project) error {
	project.UpdatedAt = time.Now()

	result, err := r.db.Exec(`
		UPDATE projects SET name = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, project.Name, project.Description, project.Status, project.UpdatedAt,
		project.ID, project.UserID)

	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("project %s: %w", project.ID, domain.ErrNotFound)
	}

	return nil
}

// SetStatus changes the status of a project
func (r *ProjectRepository) SetStatus(id, status string) error {
	result, err := r.db.Exec(`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete deletes a project and, through the foreign key, its file records
func (r *ProjectRepository) Delete(id, userID string) error {
	result, err := r.db.Exec(`DELETE FROM projects WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// Stats aggregates the projects of a user
func (r *ProjectRepository) Stats(userID string) (*domain.ProjectStats, error) {
	stats := &domain.ProjectStats{}
	err := r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(file_count), 0), COALESCE(SUM(total_size), 0)
		FROM projects WHERE user_id = ?
	`, userID).Scan(&stats.TotalProjects, &stats.TotalFiles, &stats.TotalSize)
	return stats, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	project := &domain.Project{}
	var description sql.NullString
	if err := row.Scan(&project.ID, &project.Name, &description, &project.Status,
		&project.TotalSize, &project.FileCount, &project.UserID,
		&project.CreatedAt, &project.UpdatedAt); err != nil {
		return nil, err
	}
	project.Description = description.String
	return project, nil
}
