package documents

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
)

var allowedExtensions = map[models.FileCategory][]string{
	models.FileDocument: {".pdf", ".doc", ".docx", ".ppt", ".pptx", ".txt"},
	models.FileVideo:    {".mp4", ".avi", ".mov", ".wmv", ".flv"},
	models.FileImage:    {".jpg", ".jpeg", ".png", ".gif", ".bmp"},
}

// Upload describes one incoming file.
type Upload struct {
	Category    models.FileCategory
	ModuleID    *uint
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadResult struct {
	FileID   string              `json:"file_id"`
	FileName string              `json:"filename"`
	FilePath string              `json:"file_path"`
	FileSize int64               `json:"file_size"`
	FileType models.FileCategory `json:"file_type"`
	ModuleID *uint               `json:"module_id"`
}

type Service struct {
	db        *gorm.DB
	store     ObjectStore
	uploadDir string
	maxSize   int64
	audit     audit.Recorder
	log       *logger.Logger
}

func NewService(db *gorm.DB, store ObjectStore, uploadDir string, maxSize int64, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{
		db:        db,
		store:     store,
		uploadDir: uploadDir,
		maxSize:   maxSize,
		audit:     rec,
		log:       baseLog.With("service", "FileService"),
	}
}

// CheckFile validates the extension against the category allow-list and
// the size against the configured maximum. It returns the lowercased
// extension.
func (s *Service) CheckFile(category models.FileCategory, name string, size int64) (string, error) {
	allowed, ok := allowedExtensions[category]
	if !ok {
		return "", apierr.BadRequest(fmt.Sprintf("Unknown file type: %s", category))
	}
	ext := strings.ToLower(filepath.Ext(name))
	found := false
	for _, a := range allowed {
		if a == ext {
			found = true
			break
		}
	}
	if !found {
		return "", apierr.BadRequest(fmt.Sprintf("File type not allowed. Allowed types: %s", strings.Join(allowed, ", ")))
	}
	if size > s.maxSize {
		return "", apierr.BadRequest(fmt.Sprintf("File too large. Maximum size: %d bytes", s.maxSize))
	}
	return ext, nil
}

// Upload stores the body under <upload_dir>/<category>/<uuid><ext> and
// records its metadata. The object is removed again if the row cannot be
// written.
func (s *Service) Upload(ctx context.Context, user models.User, up Upload) (*UploadResult, error) {
	ext, err := s.CheckFile(up.Category, up.FileName, up.Size)
	if err != nil {
		return nil, err
	}
	if up.ModuleID != nil {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Module{}).Where("id = ?", *up.ModuleID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apierr.NotFound("Module not found")
		}
	}
	fileID := uuid.NewString()
	key := path.Join(s.uploadDir, string(up.Category), fileID+ext)
	if err := s.store.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, apierr.New(502, "Error uploading file", err)
	}
	doc := models.Document{
		FileID:      fileID,
		ModuleID:    up.ModuleID,
		UploadedBy:  user.ID,
		FileName:    up.FileName,
		Category:    up.Category,
		ObjectPath:  key,
		ContentType: up.ContentType,
		Size:        up.Size,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if rmErr := s.store.Remove(ctx, key); rmErr != nil {
			s.log.Warn("remove orphaned object", "key", key, "error", rmErr)
		}
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionCreate, EntityType: "Document", EntityID: &doc.ID,
		Details: map[string]interface{}{"file_id": fileID, "size": up.Size}})
	return &UploadResult{
		FileID:   fileID,
		FileName: up.FileName,
		FilePath: key,
		FileSize: up.Size,
		FileType: up.Category,
		ModuleID: up.ModuleID,
	}, nil
}

func (s *Service) find(ctx context.Context, fileID string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == 0 {
		return nil, apierr.NotFound("File not found")
	}
	return &doc, nil
}

// Open returns the metadata and body. The caller closes the body.
func (s *Service) Open(ctx context.Context, fileID string) (*models.Document, io.ReadCloser, error) {
	doc, err := s.find(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.store.Get(ctx, doc.ObjectPath)
	if err != nil {
		return nil, nil, apierr.New(502, "Error downloading file", err)
	}
	return doc, body, nil
}

func (s *Service) ListByModule(ctx context.Context, moduleID uint) ([]models.Document, error) {
	docs := []models.Document{}
	if err := s.db.WithContext(ctx).Where("module_id = ?", moduleID).Order("id").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete lets the uploader or an admin remove a file.
func (s *Service) Delete(ctx context.Context, user models.User, fileID string) error {
	doc, err := s.find(ctx, fileID)
	if err != nil {
		return err
	}
	if doc.UploadedBy != user.ID && user.Role != models.RoleAdmin {
		return apierr.Forbidden("Not enough permissions")
	}
	if err := s.db.WithContext(ctx).Delete(doc).Error; err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := s.store.Remove(ctx, doc.ObjectPath); err != nil {
		s.log.Warn("remove object", "key", doc.ObjectPath, "error", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionDelete, EntityType: "Document", EntityID: &doc.ID})
	return nil
}
