package services

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cloudly/backend/internal/events"
	"github.com/cloudly/backend/internal/metrics"
	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type BatchState string

const (
	BatchIdle      BatchState = "idle"
	BatchPreparing BatchState = "preparing"
	BatchUploading BatchState = "uploading"
	BatchSaving    BatchState = "saving"
	BatchCompleted BatchState = "completed"
	BatchFailed    BatchState = "failed"
)

// UploadItem is one selected binary. Items are buffered before the batch
// starts so the batch can outlive the originating request.
type UploadItem struct {
	Name        string
	ContentType string
	Data        []byte
}

// BatchProgress is a poll snapshot of a running or finished batch. Percent
// is cosmetic and monotonic; it never reports completion before the real
// writes finish.
type BatchProgress struct {
	State        BatchState  `json:"state"`
	CurrentIndex int         `json:"currentIndex"`
	TotalItems   int         `json:"totalItems"`
	CurrentFile  string      `json:"currentFile"`
	Percent      float64     `json:"percent"`
	Error        string      `json:"error,omitempty"`
	CreatedIDs   []uuid.UUID `json:"createdIds"`
}

type uploadBatch struct {
	mu       sync.Mutex
	progress BatchProgress
	done     chan struct{}
}

// Uploader runs upload batches: strictly sequential across items, with the
// real transfer and a cosmetic progress estimator running concurrently per
// item. There is no cancellation; a batch always ends Completed or Failed.
type Uploader struct {
	records    *store.FileStore
	objects    ObjectStore
	bucket     string
	bus        *events.Bus
	notifier   *Notifier
	throughput int64
	tick       time.Duration

	mu      sync.Mutex
	batches map[uuid.UUID]*uploadBatch
}

func NewUploader(records *store.FileStore, objects ObjectStore, bucket string, bus *events.Bus, notifier *Notifier, throughput int64, tick time.Duration) *Uploader {
	if throughput <= 0 {
		throughput = 1024 * 1024
	}
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	return &Uploader{
		records:    records,
		objects:    objects,
		bucket:     bucket,
		bus:        bus,
		notifier:   notifier,
		throughput: throughput,
		tick:       tick,
		batches:    make(map[uuid.UUID]*uploadBatch),
	}
}

// DetectFileType buckets a binary by its declared media type: prefix match
// for image/video/audio, archive heuristic on type and extension for
// zip/rar/7z/tar/gz, docs otherwise.
func DetectFileType(contentType, fileName string) models.FileType {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return models.FileTypeImages
	case strings.HasPrefix(ct, "video/"):
		return models.FileTypeVideos
	case strings.HasPrefix(ct, "audio/"):
		return models.FileTypeAudio
	}

	for _, marker := range []string{"zip", "rar", "7z", "tar", "gzip"} {
		if strings.Contains(ct, marker) {
			return models.FileTypeArchives
		}
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".zip", ".rar", ".7z", ".tar", ".gz", ".tgz":
		return models.FileTypeArchives
	}

	return models.FileTypeDocs
}

// StartBatch registers a batch and runs it in the background. Callers poll
// Progress with the returned id.
func (u *Uploader) StartBatch(ownerID uuid.UUID, folder string, items []UploadItem) (uuid.UUID, error) {
	if len(items) == 0 {
		return uuid.Nil, fmt.Errorf("no files selected")
	}

	folder = strings.TrimSpace(folder)
	if folder == "" {
		folder = models.DefaultFolder
	}

	b := &uploadBatch{
		progress: BatchProgress{State: BatchIdle, TotalItems: len(items)},
		done:     make(chan struct{}),
	}
	id := uuid.New()

	u.mu.Lock()
	u.batches[id] = b
	u.mu.Unlock()

	go u.run(b, ownerID, folder, items)
	return id, nil
}

// Progress returns a snapshot of the batch, or false for an unknown id.
func (u *Uploader) Progress(id uuid.UUID) (BatchProgress, bool) {
	u.mu.Lock()
	b, ok := u.batches[id]
	u.mu.Unlock()
	if !ok {
		return BatchProgress{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := b.progress
	snapshot.CreatedIDs = append([]uuid.UUID(nil), b.progress.CreatedIDs...)
	return snapshot, true
}

// Wait blocks until the batch reaches a terminal state.
func (u *Uploader) Wait(id uuid.UUID) {
	u.mu.Lock()
	b, ok := u.batches[id]
	u.mu.Unlock()
	if ok {
		<-b.done
	}
}

func (b *uploadBatch) set(update func(p *BatchProgress)) {
	b.mu.Lock()
	update(&b.progress)
	b.mu.Unlock()
}

// setPercent only ever moves the bar forward.
func (b *uploadBatch) setPercent(value float64) {
	b.mu.Lock()
	if value > b.progress.Percent {
		b.progress.Percent = value
	}
	b.mu.Unlock()
}

func (u *Uploader) run(b *uploadBatch, ownerID uuid.UUID, folder string, items []UploadItem) {
	defer close(b.done)

	ctx := context.Background()
	b.set(func(p *BatchProgress) { p.State = BatchPreparing })

	total := len(items)
	for i, item := range items {
		rangeStart := float64(i) / float64(total) * 100
		rangeEnd := float64(i+1) / float64(total) * 100
		span := rangeEnd - rangeStart

		b.set(func(p *BatchProgress) {
			p.State = BatchUploading
			p.CurrentIndex = i + 1
			p.CurrentFile = item.Name
		})

		objectID := uuid.New().String()
		size := int64(len(item.Data))

		// The real upload and the cosmetic estimator suspend independently;
		// the record write waits on both.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return u.objects.Upload(ctx, u.bucket, objectID, bytes.NewReader(item.Data), size, item.ContentType)
		})
		g.Go(func() error {
			u.simulateProgress(gctx, b, rangeStart, span, size)
			return nil
		})

		if err := g.Wait(); err != nil {
			u.fail(b, ownerID, item.Name, err)
			return
		}

		b.setPercent(rangeStart + span*0.95)
		b.set(func(p *BatchProgress) { p.State = BatchSaving })

		record := models.FileRecord{
			FileID:     objectID,
			OwnerID:    ownerID,
			FileName:   item.Name,
			FileType:   DetectFileType(item.ContentType, item.Name),
			FileSize:   utils.FormatFileSize(size),
			UploadDate: utils.FormatUploadDate(time.Now()),
			BelongsTo:  folder,
			IsStarred:  false,
			IsTrash:    false,
		}
		if err := u.records.Create(ctx, &record); err != nil {
			u.fail(b, ownerID, item.Name, err)
			return
		}

		b.set(func(p *BatchProgress) { p.CreatedIDs = append(p.CreatedIDs, record.ID) })
		b.setPercent(rangeEnd)
	}

	b.set(func(p *BatchProgress) {
		p.State = BatchCompleted
		p.Percent = 100
		p.CurrentFile = ""
	})

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	logger.InfoWithUser(ownerID.String(), "upload_batch_completed", map[string]interface{}{
		"items":  total,
		"folder": folder,
	})
	if u.notifier != nil {
		u.notifier.Notify(ownerID, fmt.Sprintf("%d file(s) uploaded to %s", total, folder))
	}
	u.bus.Publish(events.TopicFilesChanged)
}

// fail halts the batch at the first failure. Records created for earlier
// items stay persisted; partial success is a terminal state.
func (u *Uploader) fail(b *uploadBatch, ownerID uuid.UUID, fileName string, err error) {
	b.set(func(p *BatchProgress) {
		p.State = BatchFailed
		p.Error = fmt.Sprintf("Upload failed for %s: %v", fileName, err)
	})
	metrics.UploadsTotal.WithLabelValues("error").Inc()
	logger.ErrorWithUser(ownerID.String(), "upload_batch_failed", err, map[string]interface{}{
		"file_name": fileName,
	})
	b.mu.Lock()
	partial := len(b.progress.CreatedIDs) > 0
	b.mu.Unlock()
	if partial {
		u.bus.Publish(events.TopicFilesChanged)
	}
}

// simulateProgress drives an eased, monotonic estimate seeded by object size
// at the nominal throughput. It caps at 95% of the item's span so completion
// is only ever reported by the real writes. Returns early if the upload
// errors out.
func (u *Uploader) simulateProgress(ctx context.Context, b *uploadBatch, rangeStart, span float64, size int64) {
	estimated := time.Duration(float64(size)/float64(u.throughput)*float64(time.Second)) + time.Millisecond
	if estimated < time.Second {
		estimated = time.Second
	}
	totalTicks := int(estimated / u.tick)
	if totalTicks < 1 {
		totalTicks = 1
	}

	ticker := time.NewTicker(u.tick)
	defer ticker.Stop()

	for tick := 1; tick <= totalTicks; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw := float64(tick) / float64(totalTicks) * 100
		eased := 100 - math.Pow(100-raw, 3)/10000
		if eased > 95 {
			eased = 95
		}
		b.setPercent(rangeStart + eased/100*span*0.9)
	}
}
