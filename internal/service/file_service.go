package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/repository"
	"go.uber.org/zap"
)

// FileService stores uploaded project files on disk, records them and
// indexes their text for questions over the knowledge base
type FileService struct {
	projectRepo *repository.ProjectRepository
	fileRepo    *repository.FileRepository
	chunkRepo   *repository.ChunkRepository
	storageDir  string
	logger      *zap.Logger
}

// NewFileService creates a new file service
func NewFileService(
	projectRepo *repository.ProjectRepository,
	fileRepo *repository.FileRepository,
	chunkRepo *repository.ChunkRepository,
	storageDir string,
	logger *zap.Logger,
) *FileService {
	return &FileService{
		projectRepo: projectRepo,
		fileRepo:    fileRepo,
		chunkRepo:   chunkRepo,
		storageDir:  storageDir,
		logger:      logger,
	}
}

// Document types shown in the knowledge base
const (
	FileTypePDF        = "PDF"
	FileTypeWord       = "Word (.docx)"
	FileTypeExcel      = "Excel"
	FileTypePowerPoint = "PowerPoint"
	FileTypeText       = "Text"
	FileTypeCSV        = "CSV"
	FileTypeEmail      = "Email"
	FileTypeJPEG       = "JPEG"
	FileTypePNG        = "PNG"
	FileTypeTIFF       = "TIFF"
	FileTypeRTF        = "RTF"
	FileTypeZip        = "Zip"
)

var fileTypesByExt = map[string]string{
	".pdf":  FileTypePDF,
	".doc":  FileTypeWord,
	".docx": FileTypeWord,
	".xls":  FileTypeExcel,
	".xlsx": FileTypeExcel,
	".ppt":  FileTypePowerPoint,
	".pptx": FileTypePowerPoint,
	".txt":  FileTypeText,
	".csv":  FileTypeCSV,
	".eml":  FileTypeEmail,
	".jpg":  FileTypeJPEG,
	".jpeg": FileTypeJPEG,
	".png":  FileTypePNG,
	".tif":  FileTypeTIFF,
	".tiff": FileTypeTIFF,
	".rtf":  FileTypeRTF,
	".zip":  FileTypeZip,
}

// DetectFileType returns the document type for filename, or "" if unsupported
func DetectFileType(filename string) string {
	return fileTypesByExt[strings.ToLower(filepath.Ext(filename))]
}

// UploadFile stores an uploaded file under its project and indexes its
// text. The project is PROCESSING while the file is stored and ends ACTIVE,
// or ERROR when storing failed.
func (s *FileService) UploadFile(
	ctx context.Context,
	userID, projectID string,
	file *multipart.FileHeader,
) (*domain.ProjectFile, error) {
	project, err := s.projectRepo.Get(projectID, userID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}

	fileType := DetectFileType(file.Filename)
	if fileType == "" {
		return nil, fmt.Errorf("%s: %w", file.Filename, domain.ErrUnsupportedFile)
	}

	if err := s.projectRepo.SetStatus(projectID, domain.ProjectStatusProcessing); err != nil {
		return nil, err
	}

	record, data, err := s.storeFile(userID, projectID, fileType, file)
	status := domain.ProjectStatusActive
	if err != nil {
		status = domain.ProjectStatusError
	}
	if statusErr := s.projectRepo.SetStatus(projectID, status); statusErr != nil {
		s.logger.Warn("Failed to set project status",
			zap.String("project_id", projectID),
			zap.String("status", status),
			zap.Error(statusErr),
		)
	}
	if err != nil {
		s.logger.Error("Failed to store project file",
			zap.String("project_id", projectID),
			zap.String("name", file.Filename),
			zap.Error(err),
		)
		return nil, err
	}

	chunks := s.index(record, data)
	s.logger.Info("Stored project file",
		zap.String("project_id", projectID),
		zap.String("file_id", record.ID),
		zap.String("type", fileType),
		zap.Int64("size", record.FileSize),
		zap.Int("chunks", chunks),
	)
	return record, nil
}

// storeFile writes the upload to disk and records it. The stored bytes are
// returned for indexing.
func (s *FileService) storeFile(
	userID, projectID, fileType string,
	file *multipart.FileHeader,
) (*domain.ProjectFile, []byte, error) {
	storageDir := filepath.Join(s.storageDir, projectID)
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fileID := uuid.New().String()
	filename := fileID + strings.ToLower(filepath.Ext(file.Filename))
	storagePath := filepath.Join(storageDir, filename)

	src, err := file.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(storagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage file: %w", err)
	}
	var data bytes.Buffer
	written, err := io.Copy(dst, io.TeeReader(src, &data))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(storagePath)
		return nil, nil, fmt.Errorf("failed to save file: %w", err)
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	record := &domain.ProjectFile{
		ID:           fileID,
		Filename:     filename,
		OriginalName: file.Filename,
		FilePath:     storagePath,
		FileSize:     written,
		MimeType:     mimeType,
		FileType:     fileType,
		ProjectID:    projectID,
		UserID:       userID,
	}
	if err := s.fileRepo.Create(record); err != nil {
		os.Remove(storagePath)
		return nil, nil, err
	}
	return record, data.Bytes(), nil
}

// index extracts the text of a stored file into the chunk index and returns
// the number of passages. A file that cannot be read stays stored but is not
// searchable.
func (s *FileService) index(record *domain.ProjectFile, data []byte) int {
	text, err := ExtractText(record.OriginalName, record.MimeType, data)
	if err != nil {
		s.logger.Warn("Failed to extract file text",
			zap.String("file_id", record.ID),
			zap.String("name", record.OriginalName),
			zap.Error(err),
		)
		return 0
	}

	chunks := Chunk(text, ChunkSize, ChunkOverlap)
	if len(chunks) == 0 {
		return 0
	}
	if err := s.chunkRepo.Index(record, chunks); err != nil {
		s.logger.Warn("Failed to index file text", zap.String("file_id", record.ID), zap.Error(err))
		return 0
	}
	return len(chunks)
}

// ListProjectFiles returns the files of a project owned by userID
func (s *FileService) ListProjectFiles(ctx context.Context, userID, projectID string) ([]*domain.ProjectFile, error) {
	project, err := s.projectRepo.Get(projectID, userID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	return s.fileRepo.ListByProject(projectID)
}

// ListUserFiles returns every file of a user
func (s *FileService) ListUserFiles(ctx context.Context, userID string) ([]*domain.ProjectFile, error) {
	return s.fileRepo.ListByUser(userID)
}

// DeleteFile removes a file record and its stored bytes
func (s *FileService) DeleteFile(ctx context.Context, userID, projectID, fileID string) error {
	file, err := s.fileRepo.Get(fileID, userID)
	if err != nil {
		return err
	}
	if file == nil || file.ProjectID != projectID {
		return fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
	}

	if err := s.fileRepo.Delete(file); err != nil {
		return err
	}
	if err := os.Remove(file.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove stored file", zap.String("path", file.FilePath), zap.Error(err))
	}
	return nil
}
