package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/repository"
	"go.uber.org/zap"
)

// ProjectService handles knowledge base projects
type ProjectService struct {
	projectRepo *repository.ProjectRepository
	fileRepo    *repository.FileRepository
	storageDir  string
	logger      *zap.Logger
}

// NewProjectService creates a new project service
func NewProjectService(
	projectRepo *repository.ProjectRepository,
	fileRepo *repository.FileRepository,
	storageDir string,
	logger *zap.Logger,
) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		fileRepo:    fileRepo,
		storageDir:  storageDir,
		logger:      logger,
	}
}

func (s *ProjectService) CreateProject(ctx context.Context, userID string, req *domain.CreateProjectRequest) (*domain.Project, error) {
	project := &domain.Project{
		Name:        req.Name,
		Description: req.Description,
		UserID:      userID,
	}
	if err := s.projectRepo.Create(project); err != nil {
		return nil, err
	}
	return project, nil
}

// GetProject returns nil when the project does not exist for this user
func (s *ProjectService) GetProject(ctx context.Context, userID, id string) (*domain.Project, error) {
	return s.projectRepo.Get(id, userID)
}

func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]*domain.Project, error) {
	return s.projectRepo.ListByUser(userID)
}

func (s *ProjectService) UpdateProject(ctx context.Context, userID, id string, req *domain.UpdateProjectRequest) (*domain.Project, error) {
	project, err := s.projectRepo.Get(id, userID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.ErrNotFound
	}

	if req.Name != "" {
		project.Name = req.Name
	}
	if req.Description != "" {
		project.Description = req.Description
	}
	if req.Status != "" {
		if !domain.IsValidProjectStatus(req.Status) {
			return nil, fmt.Errorf("status %q: %w", req.Status, domain.ErrInvalidRequest)
		}
		project.Status = req.Status
	}

	if err := s.projectRepo.Update(project); err != nil {
		return nil, err
	}
	return project, nil
}

// DeleteProject removes the project, its file records and the stored bytes
func (s *ProjectService) DeleteProject(ctx context.Context, userID, id string) error {
	if err := s.projectRepo.Delete(id, userID); err != nil {
		return err
	}

	dir := filepath.Join(s.storageDir, id)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("Failed to remove project files", zap.String("project_id", id), zap.Error(err))
	}
	return nil
}

func (s *ProjectService) GetStats(ctx context.Context, userID string) (*domain.ProjectStats, error) {
	return s.projectRepo.Stats(userID)
}
