package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(&models.User{}, &models.UserMeta{}, &models.FileRecord{}, &models.AuthToken{})
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	return db
}

func seedOwner(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	user := models.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x", Name: "Owner", EmailVerified: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed creating owner: %v", err)
	}
	return user.ID
}

func seedFile(t *testing.T, db *gorm.DB, ownerID uuid.UUID, name string, fileType models.FileType, folder string, starred, trashed bool) *models.FileRecord {
	t.Helper()
	record := models.FileRecord{
		FileID:     uuid.NewString(),
		OwnerID:    ownerID,
		FileName:   name,
		FileType:   fileType,
		FileSize:   "1 KB",
		UploadDate: utils.FormatUploadDate(time.Now()),
		BelongsTo:  folder,
		IsStarred:  starred,
		IsTrash:    trashed,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed creating file record: %v", err)
	}
	return &record
}

var errObjectStoreDown = errors.New("object store unavailable")

// memObjectStore keeps payloads in memory and records the order of calls.
type memObjectStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	calls    []string
	puts     int
	failPut  bool
	failDrop bool
	// failAfter fails every put after the first N successful ones.
	failAfter int
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

func (m *memObjectStore) Upload(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "put "+objectName)
	if m.failPut {
		return errObjectStoreDown
	}
	if m.failAfter > 0 && m.puts >= m.failAfter {
		return errObjectStoreDown
	}
	m.puts++
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+objectName] = data
	return nil
}

func (m *memObjectStore) Delete(ctx context.Context, bucket, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete "+objectName)
	if m.failDrop {
		return errObjectStoreDown
	}
	delete(m.objects, bucket+"/"+objectName)
	return nil
}

func (m *memObjectStore) Has(bucket, objectName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[bucket+"/"+objectName]
	return ok
}

func newTestStore(t *testing.T) (*gorm.DB, *store.FileStore) {
	t.Helper()
	db := setupDB(t)
	return db, store.NewFileStore(db)
}
