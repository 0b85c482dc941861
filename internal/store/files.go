package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudly/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRemoteWrite marks a failed write against the record store.
var ErrRemoteWrite = errors.New("record store write failed")

// ErrNotFound marks a lookup for a record that does not exist.
var ErrNotFound = errors.New("file record not found")

// FileStore is the gateway over file-record rows. All list operations are
// equality-filtered full reads; callers get store-native ordering and no
// pagination.
type FileStore struct {
	db *gorm.DB
}

func NewFileStore(db *gorm.DB) *FileStore {
	return &FileStore{db: db}
}

func (s *FileStore) Create(ctx context.Context, record *models.FileRecord) error {
	if record.BelongsTo == "" {
		record.BelongsTo = models.DefaultFolder
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id uuid.UUID) (*models.FileRecord, error) {
	var record models.FileRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListByOwner returns the owner's non-trash records, or only trash records
// when trashed is true. The two sets are mutually exclusive.
func (s *FileStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, trashed bool) ([]models.FileRecord, error) {
	var records []models.FileRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_trash = ?", ownerID, trashed).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileStore) ListByOwnerAndType(ctx context.Context, ownerID uuid.UUID, fileType models.FileType) ([]models.FileRecord, error) {
	var records []models.FileRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND file_type = ? AND is_trash = ?", ownerID, fileType, false).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileStore) ListByOwnerAndFolder(ctx context.Context, ownerID uuid.UUID, folderName string) ([]models.FileRecord, error) {
	var records []models.FileRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND belongs_to = ? AND is_trash = ?", ownerID, folderName, false).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListAllByOwner returns every record regardless of trash state; counters and
// folder derivation reason about both states from this one read.
func (s *FileStore) ListAllByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.FileRecord, error) {
	var records []models.FileRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileStore) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.FileRecord{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete permanently removes the metadata row only; the paired binary object
// is the caller's concern.
func (s *FileStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.FileRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
