package services

import (
	"context"
	"sync"
	"time"

	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/navigation"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/google/uuid"
)

// RecentWindow is the trailing window backing the "recent" quick-access view
// and counter.
const RecentWindow = 7 * 24 * time.Hour

// Row is the uniform shape every listing view is normalized to.
type Row struct {
	ID         uuid.UUID       `json:"id"`
	FileID     string          `json:"fileId"`
	FileName   string          `json:"fileName"`
	FileType   models.FileType `json:"fileType"`
	FileSize   string          `json:"fileSize"`
	UploadDate string          `json:"uploadDate"`
	BelongsTo  string          `json:"belongsTo"`
	IsStarred  bool            `json:"isStarred"`
	IsTrash    bool            `json:"isTrash"`
}

func rowFromRecord(r models.FileRecord) Row {
	return Row{
		ID:         r.ID,
		FileID:     r.FileID,
		FileName:   r.FileName,
		FileType:   r.FileType,
		FileSize:   r.FileSize,
		UploadDate: r.UploadDate,
		BelongsTo:  r.BelongsTo,
		IsStarred:  r.IsStarred,
		IsTrash:    r.IsTrash,
	}
}

type ListingService struct {
	records *store.FileStore
}

func NewListingService(records *store.FileStore) *ListingService {
	return &ListingService{records: records}
}

// Resolve maps a navigation selection to the matching rows. Starred and
// recent are full reads filtered locally; every other branch is a single
// equality-filtered store call.
func (s *ListingService) Resolve(ctx context.Context, ownerID uuid.UUID, sel navigation.Selection) ([]Row, error) {
	var (
		records []models.FileRecord
		err     error
	)

	switch sel.Section {
	case navigation.SectionFileTypes:
		if sel.FileType != "" {
			records, err = s.records.ListByOwnerAndType(ctx, ownerID, sel.FileType)
		} else {
			records, err = s.records.ListByOwner(ctx, ownerID, false)
		}

	case navigation.SectionFolders:
		if sel.Folder == models.DefaultFolder {
			records, err = s.records.ListByOwner(ctx, ownerID, false)
		} else {
			records, err = s.records.ListByOwnerAndFolder(ctx, ownerID, sel.Folder)
		}

	case navigation.SectionQuickAccess:
		if sel.View == navigation.ViewTrash {
			records, err = s.records.ListByOwner(ctx, ownerID, true)
			break
		}
		records, err = s.records.ListAllByOwner(ctx, ownerID)
		if err != nil {
			break
		}
		now := time.Now()
		filtered := records[:0]
		for _, r := range records {
			if r.IsTrash {
				continue
			}
			switch sel.View {
			case navigation.ViewStarred:
				if r.IsStarred {
					filtered = append(filtered, r)
				}
			case navigation.ViewRecent:
				if utils.UploadedWithin(r.UploadDate, RecentWindow, now) {
					filtered = append(filtered, r)
				}
			}
		}
		records = filtered

	default:
		records, err = s.records.ListByOwner(ctx, ownerID, false)
	}

	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, rowFromRecord(r))
	}
	return rows, nil
}

// ListingSession is the stateful view-model over Resolve: it holds the
// current selection and the last applied row set. Refetch always reads the
// selection at call time, and a slow response is discarded if a newer refetch
// applied first.
type ListingSession struct {
	svc     *ListingService
	ownerID uuid.UUID

	mu        sync.Mutex
	selection navigation.Selection
	rows      []Row
	issued    uint64
	applied   uint64
}

func NewListingSession(svc *ListingService, ownerID uuid.UUID) *ListingSession {
	return &ListingSession{
		svc:       svc,
		ownerID:   ownerID,
		selection: navigation.Default(),
	}
}

// SetSelection replaces the selection wholesale.
func (s *ListingSession) SetSelection(sel navigation.Selection) {
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
}

func (s *ListingSession) Selection() navigation.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Rows returns the last applied row set.
func (s *ListingSession) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// Refetch resolves against the current selection and replaces the row set
// atomically. Each refetch carries a generation number; a result is dropped
// when a later-issued refetch has already applied, so an out-of-order slow
// response can never overwrite a fresher one.
func (s *ListingSession) Refetch(ctx context.Context) ([]Row, error) {
	s.mu.Lock()
	s.issued++
	generation := s.issued
	sel := s.selection
	s.mu.Unlock()

	rows, err := s.svc.Resolve(ctx, s.ownerID, sel)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation > s.applied {
		s.applied = generation
		s.rows = rows
	}
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out, nil
}
