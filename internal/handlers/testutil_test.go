package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudly/backend/internal/events"
	"github.com/cloudly/backend/internal/middleware"
	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/services"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	bus      *events.Bus
	objects  *fakeObjectStore
	uploader *services.Uploader
}

// fakeObjectStore keeps uploaded payloads in memory keyed by bucket/object.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) key(bucket, objectName string) string {
	return bucket + "/" + objectName
}

func (f *fakeObjectStore) Upload(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) error {
	if f.failPut {
		return errRemoteUnavailable
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.key(bucket, objectName)] = data
	return nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, bucket, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, f.key(bucket, objectName))
	return nil
}

func (f *fakeObjectStore) Put(bucket, objectName string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.key(bucket, objectName)] = data
}

func (f *fakeObjectStore) Has(bucket, objectName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[f.key(bucket, objectName)]
	return ok
}

var errRemoteUnavailable = errors.New("object store unavailable")

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
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

	err = db.AutoMigrate(
		&models.User{},
		&models.UserMeta{},
		&models.FileRecord{},
		&models.AuthToken{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	bus := events.NewBus()
	notifier := services.NewNotifier(db)
	objects := newFakeObjectStore()
	records := store.NewFileStore(db)

	listingService := services.NewListingService(records)
	countsService := services.NewCountsService(records)
	foldersService := services.NewFoldersService(records)
	lifecycleService := services.NewLifecycleService(records, objects, "files", bus)
	uploader := services.NewUploader(records, objects, "files", bus, notifier, 1024*1024, time.Millisecond)

	authHandler := NewAuthHandler(db)
	filesHandler := NewFilesHandler(records, listingService, countsService, foldersService,
		lifecycleService, nil, bus)
	uploadsHandler := NewUploadsHandler(uploader)
	profileHandler := NewProfileHandler(db, nil)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS("http://localhost:3001"))
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Post("/verify/send", authMiddleware.RequireAuth, authHandler.VerifySend)
	authRoutes.Post("/verify/confirm", authHandler.VerifyConfirm)
	authRoutes.Get("/verify/status", authMiddleware.RequireAuth, authHandler.VerifyStatus)
	authRoutes.Post("/password/forgot", authHandler.ForgotPassword)
	authRoutes.Post("/password/reset", authHandler.ResetPassword)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth, middleware.RequireVerified)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/counts", filesHandler.FileCounts)
	fileRoutes.Get("/version", filesHandler.Version)
	fileRoutes.Put("/:id/star", filesHandler.ToggleStar)
	fileRoutes.Put("/:id/rename", filesHandler.Rename)
	fileRoutes.Post("/:id/trash", filesHandler.MoveToTrash)
	fileRoutes.Post("/:id/restore", filesHandler.RestoreFromTrash)
	fileRoutes.Delete("/:id", filesHandler.PermanentlyDelete)

	api.Get("/folders", authMiddleware.RequireAuth, middleware.RequireVerified, filesHandler.ListFolders)

	uploadRoutes := api.Group("/uploads", authMiddleware.RequireAuth, middleware.RequireVerified)
	uploadRoutes.Post("/", uploadsHandler.StartBatch)
	uploadRoutes.Get("/:id", uploadsHandler.Progress)

	profileRoutes := api.Group("/profile", authMiddleware.RequireAuth)
	profileRoutes.Get("/meta", profileHandler.GetMeta)
	profileRoutes.Put("/onboarding", profileHandler.SetOnboarding)

	api.Get("/notifications", authMiddleware.RequireAuth, profileHandler.Notifications)
	api.Put("/notifications/clear", authMiddleware.RequireAuth, profileHandler.ClearNotifications)

	return &testEnv{app: app, db: db, bus: bus, objects: objects, uploader: uploader}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, verified bool) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:         email,
		PasswordHash:  hash,
		Name:          "Test User",
		EmailVerified: verified,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestFile(t *testing.T, db *gorm.DB, ownerID uuid.UUID, name string, fileType models.FileType, folder string) *models.FileRecord {
	t.Helper()

	record := &models.FileRecord{
		FileID:     uuid.New().String(),
		OwnerID:    ownerID,
		FileName:   name,
		FileType:   fileType,
		FileSize:   "1 KB",
		UploadDate: utils.FormatUploadDate(time.Now()),
		BelongsTo:  folder,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("failed creating test file record: %v", err)
	}
	return record
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func mustUUID(t *testing.T, value string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(value)
	if err != nil {
		t.Fatalf("expected a uuid, got %q: %v", value, err)
	}
	return id
}

func sleepBriefly() {
	time.Sleep(10 * time.Millisecond)
}

func dataMap(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object in payload, got %v", payload)
	}
	return data
}
