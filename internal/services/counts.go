package services

import (
	"context"
	"time"

	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/google/uuid"
)

// Counts is the full set of per-category counters shown in the sidebar.
// Trash counts only trashed records; every other counter excludes them.
type Counts struct {
	Images   int `json:"images"`
	Videos   int `json:"videos"`
	Docs     int `json:"docs"`
	Audio    int `json:"audio"`
	Archives int `json:"archives"`
	AllFiles int `json:"allFiles"`
	Starred  int `json:"starred"`
	Recent   int `json:"recent"`
	Trash    int `json:"trash"`
}

type CountsService struct {
	records *store.FileStore
}

func NewCountsService(records *store.FileStore) *CountsService {
	return &CountsService{records: records}
}

// Counts always fetches the complete record set and partitions locally,
// regardless of which counters changed.
func (s *CountsService) Counts(ctx context.Context, ownerID uuid.UUID) (Counts, error) {
	records, err := s.records.ListAllByOwner(ctx, ownerID)
	if err != nil {
		return Counts{}, err
	}

	var counts Counts
	now := time.Now()

	for _, r := range records {
		if r.IsTrash {
			counts.Trash++
			continue
		}

		counts.AllFiles++

		switch r.FileType {
		case models.FileTypeImages:
			counts.Images++
		case models.FileTypeVideos:
			counts.Videos++
		case models.FileTypeDocs:
			counts.Docs++
		case models.FileTypeAudio:
			counts.Audio++
		case models.FileTypeArchives:
			counts.Archives++
		}

		if r.IsStarred {
			counts.Starred++
		}
		if utils.UploadedWithin(r.UploadDate, RecentWindow, now) {
			counts.Recent++
		}
	}

	return counts, nil
}
