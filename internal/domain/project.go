package domain

import "time"

// Project status constants
const (
	ProjectStatusActive     = "ACTIVE"
	ProjectStatusProcessing = "PROCESSING"
	ProjectStatusError      = "ERROR"
)

// Project is a knowledge-base folder of uploaded files
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	TotalSize   int64     `json:"totalSize"`
	FileCount   int       `json:"fileCount"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectFile is an uploaded document belonging to a project
type ProjectFile struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	OriginalName string         `json:"originalName"`
	FilePath     string         `json:"filePath"`
	FileSize     int64          `json:"fileSize"`
	MimeType     string         `json:"mimeType"`
	FileType     string         `json:"fileType"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ProjectID    string         `json:"projectId"`
	UserID       string         `json:"userId"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// CreateProjectRequest is the request to create a project
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
}

// UpdateProjectRequest is the request to update a project
type UpdateProjectRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ProjectStats aggregates a user's knowledge base
type ProjectStats struct {
	TotalProjects int   `json:"totalProjects"`
	TotalFiles    int   `json:"totalFiles"`
	TotalSize     int64 `json:"totalSize"`
}

// IsValidProjectStatus reports whether status is a known project status
func IsValidProjectStatus(status string) bool {
	switch status {
	case ProjectStatusActive, ProjectStatusProcessing, ProjectStatusError:
		return true
	}
	return false
}
