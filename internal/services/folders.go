package services

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/store"
	"github.com/google/uuid"
)

// Folder is a derived grouping, not a stored entity: a distinct belongs_to
// value among the owner's non-trash records and its record count.
type Folder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// AllFilesFolderID is the synthesized folder that is always present and
// always first.
const AllFilesFolderID = "all-files"

type FoldersService struct {
	records *store.FileStore
}

func NewFoldersService(records *store.FileStore) *FoldersService {
	return &FoldersService{records: records}
}

func folderID(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Folders derives the folder list from a full read. "All Files" is pinned
// first with count = total non-trash records; the rest sort by name.
func (s *FoldersService) Folders(ctx context.Context, ownerID uuid.UUID) ([]Folder, error) {
	records, err := s.records.ListAllByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]int)
	total := 0
	for _, r := range records {
		if r.IsTrash {
			continue
		}
		total++
		name := r.BelongsTo
		if name == "" {
			name = models.DefaultFolder
		}
		groups[name]++
	}

	others := make([]Folder, 0, len(groups))
	for name, count := range groups {
		id := folderID(name)
		if id == AllFilesFolderID {
			continue
		}
		others = append(others, Folder{ID: id, Name: name, Count: count})
	}
	sort.Slice(others, func(i, j int) bool { return others[i].Name < others[j].Name })

	folders := make([]Folder, 0, len(others)+1)
	folders = append(folders, Folder{ID: AllFilesFolderID, Name: models.DefaultFolder, Count: total})
	folders = append(folders, others...)
	return folders, nil
}
