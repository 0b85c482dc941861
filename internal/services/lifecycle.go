package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudly/backend/internal/events"
	"github.com/cloudly/backend/internal/metrics"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/google/uuid"
)

// ErrLifecycle wraps gateway failures surfaced by trash, restore, and
// permanent-delete operations.
var ErrLifecycle = errors.New("lifecycle operation failed")

// ObjectStore is the slice of the binary store lifecycle and upload need.
// *storage.MinIOClient satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, bucket, objectName string) error
}

type LifecycleService struct {
	records *store.FileStore
	objects ObjectStore
	bucket  string
	bus     *events.Bus
}

func NewLifecycleService(records *store.FileStore, objects ObjectStore, bucket string, bus *events.Bus) *LifecycleService {
	return &LifecycleService{records: records, objects: objects, bucket: bucket, bus: bus}
}

// MoveToTrash soft-deletes: the record drops out of every normal view but
// stays restorable.
func (s *LifecycleService) MoveToTrash(ctx context.Context, id uuid.UUID) error {
	if err := s.records.Update(ctx, id, map[string]interface{}{"is_trash": true}); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("trash", "error").Inc()
		return fmt.Errorf("%w: move to trash: %v", ErrLifecycle, err)
	}
	metrics.LifecycleOpsTotal.WithLabelValues("trash", "success").Inc()
	s.bus.Publish(events.TopicFilesChanged)
	return nil
}

func (s *LifecycleService) RestoreFromTrash(ctx context.Context, id uuid.UUID) error {
	if err := s.records.Update(ctx, id, map[string]interface{}{"is_trash": false}); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("restore", "error").Inc()
		return fmt.Errorf("%w: restore from trash: %v", ErrLifecycle, err)
	}
	metrics.LifecycleOpsTotal.WithLabelValues("restore", "success").Inc()
	s.bus.Publish(events.TopicFilesChanged)
	return nil
}

// PermanentlyDelete removes the binary object first, then the metadata
// record. An object-delete failure aborts with the record intact so the
// operation stays retryable; a record-delete failure after the object is
// gone leaves an orphaned record, which is logged for cleanup.
func (s *LifecycleService) PermanentlyDelete(ctx context.Context, id uuid.UUID) error {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("%w: permanent delete: %v", ErrLifecycle, err)
	}

	if err := s.objects.Delete(ctx, s.bucket, record.FileID); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("%w: deleting binary object: %v", ErrLifecycle, err)
	}

	if err := s.records.Delete(ctx, id); err != nil {
		logger.Error("orphaned_file_record", err, map[string]interface{}{
			"record_id": id.String(),
			"file_id":   record.FileID,
		})
		metrics.LifecycleOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("%w: deleting record: %v", ErrLifecycle, err)
	}

	metrics.LifecycleOpsTotal.WithLabelValues("delete", "success").Inc()
	s.bus.Publish(events.TopicFilesChanged)
	return nil
}
