package services

import (
	"context"
	"testing"
	"time"

	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/navigation"
	"github.com/cloudly/backend/pkg/utils"
)

func TestResolveSections(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)
	ctx := context.Background()

	seedFile(t, db, owner, "a.png", models.FileTypeImages, models.DefaultFolder, false, false)
	seedFile(t, db, owner, "b.png", models.FileTypeImages, "Photos", true, false)
	seedFile(t, db, owner, "c.mp4", models.FileTypeVideos, models.DefaultFolder, false, false)
	seedFile(t, db, owner, "d.pdf", models.FileTypeDocs, "Photos", false, true)

	cases := []struct {
		name string
		sel  navigation.Selection
		want int
	}{
		{"default hides trash", navigation.Default(), 3},
		{"by type", navigation.FileTypeSelection(models.FileTypeImages), 2},
		{"by folder", navigation.FolderSelection("Photos"), 1},
		{"all files folder", navigation.FolderSelection(models.DefaultFolder), 3},
		{"starred", navigation.QuickAccessSelection(navigation.ViewStarred), 1},
		{"trash", navigation.QuickAccessSelection(navigation.ViewTrash), 1},
		{"recent", navigation.QuickAccessSelection(navigation.ViewRecent), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := svc.Resolve(ctx, owner, tc.sel)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if len(rows) != tc.want {
				t.Fatalf("expected %d rows, got %d", tc.want, len(rows))
			}
		})
	}
}

func TestResolveRowFlagsMatchSelection(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)
	ctx := context.Background()

	seedFile(t, db, owner, "a.png", models.FileTypeImages, models.DefaultFolder, false, false)
	seedFile(t, db, owner, "b.pdf", models.FileTypeDocs, models.DefaultFolder, true, false)
	seedFile(t, db, owner, "c.png", models.FileTypeImages, models.DefaultFolder, false, true)

	rows, err := svc.Resolve(ctx, owner, navigation.FileTypeSelection(models.FileTypeImages))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	for _, row := range rows {
		if row.FileType != models.FileTypeImages || row.IsTrash {
			t.Fatalf("type selection returned a non-matching row: %+v", row)
		}
	}

	rows, err = svc.Resolve(ctx, owner, navigation.QuickAccessSelection(navigation.ViewTrash))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected the trashed record in the trash view")
	}
	for _, row := range rows {
		if !row.IsTrash {
			t.Fatalf("trash view returned a live row: %+v", row)
		}
	}

	for _, sel := range []navigation.Selection{
		navigation.Default(),
		navigation.QuickAccessSelection(navigation.ViewStarred),
		navigation.QuickAccessSelection(navigation.ViewRecent),
	} {
		rows, err = svc.Resolve(ctx, owner, sel)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		for _, row := range rows {
			if row.IsTrash {
				t.Fatalf("non-trash selection %+v returned a trashed row", sel)
			}
		}
	}
}

func TestStarToggleMovesRecordInAndOutOfStarredView(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)
	ctx := context.Background()

	record := seedFile(t, db, owner, "a.png", models.FileTypeImages, models.DefaultFolder, false, false)
	starred := navigation.QuickAccessSelection(navigation.ViewStarred)

	if err := records.Update(ctx, record.ID, map[string]interface{}{"is_starred": true}); err != nil {
		t.Fatalf("star failed: %v", err)
	}
	rows, err := svc.Resolve(ctx, owner, starred)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != record.ID {
		t.Fatalf("expected the starred record visible, got %v", rows)
	}

	if err := records.Update(ctx, record.ID, map[string]interface{}{"is_starred": false}); err != nil {
		t.Fatalf("unstar failed: %v", err)
	}
	rows, err = svc.Resolve(ctx, owner, starred)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected the unstarred record gone, got %v", rows)
	}
}

func TestResolveRecentExcludesOldUploads(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)

	fresh := seedFile(t, db, owner, "fresh.png", models.FileTypeImages, models.DefaultFolder, false, false)
	stale := seedFile(t, db, owner, "stale.png", models.FileTypeImages, models.DefaultFolder, false, false)
	oldDate := utils.FormatUploadDate(time.Now().Add(-8 * 24 * time.Hour))
	if err := db.Model(stale).Update("upload_date", oldDate).Error; err != nil {
		t.Fatalf("failed backdating record: %v", err)
	}

	rows, err := svc.Resolve(context.Background(), owner, navigation.QuickAccessSelection(navigation.ViewRecent))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh upload, got %d rows", len(rows))
	}
}

func TestResolveScopesToOwner(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)
	other := seedOwner(t, db)

	seedFile(t, db, owner, "mine.png", models.FileTypeImages, models.DefaultFolder, false, false)
	seedFile(t, db, other, "theirs.png", models.FileTypeImages, models.DefaultFolder, false, false)

	rows, err := svc.Resolve(context.Background(), owner, navigation.Default())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(rows) != 1 || rows[0].FileName != "mine.png" {
		t.Fatalf("expected only own files, got %v", rows)
	}
}

func TestListingSessionRefetchFollowsSelection(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)
	ctx := context.Background()

	seedFile(t, db, owner, "a.png", models.FileTypeImages, models.DefaultFolder, false, false)
	seedFile(t, db, owner, "b.mp4", models.FileTypeVideos, models.DefaultFolder, false, false)

	session := NewListingSession(svc, owner)
	rows, err := session.Refetch(ctx)
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows under default selection, got %d", len(rows))
	}

	session.SetSelection(navigation.FileTypeSelection(models.FileTypeVideos))
	rows, err = session.Refetch(ctx)
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if len(rows) != 1 || rows[0].FileName != "b.mp4" {
		t.Fatalf("expected the video row, got %v", rows)
	}

	// Refetch without interleaved writes applies the same rows again.
	again, err := session.Refetch(ctx)
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if len(again) != 1 || again[0].ID != rows[0].ID {
		t.Fatalf("expected an idempotent refetch, got %v", again)
	}
}

func TestListingSessionDiscardsStaleGeneration(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)
	ctx := context.Background()

	seedFile(t, db, owner, "a.png", models.FileTypeImages, models.DefaultFolder, false, false)

	session := NewListingSession(svc, owner)

	// Simulate a slow response that was issued before a newer refetch
	// applied: the stale generation must not overwrite the fresh rows.
	session.mu.Lock()
	session.issued++
	staleGeneration := session.issued
	session.mu.Unlock()

	if _, err := session.Refetch(ctx); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	freshRows := session.Rows()

	staleRows := []Row{}
	session.mu.Lock()
	if staleGeneration > session.applied {
		session.applied = staleGeneration
		session.rows = staleRows
	}
	session.mu.Unlock()

	if got := session.Rows(); len(got) != len(freshRows) {
		t.Fatalf("stale generation overwrote fresh rows: %v", got)
	}
}

func TestSessionRowsReturnsCopy(t *testing.T) {
	db, records := newTestStore(t)
	svc := NewListingService(records)
	owner := seedOwner(t, db)

	seedFile(t, db, owner, "a.png", models.FileTypeImages, models.DefaultFolder, false, false)

	session := NewListingSession(svc, owner)
	if _, err := session.Refetch(context.Background()); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}

	rows := session.Rows()
	rows[0].FileName = "mutated.png"
	if session.Rows()[0].FileName == "mutated.png" {
		t.Fatal("Rows must return a copy")
	}
}
