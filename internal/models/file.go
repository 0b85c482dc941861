package models

import "github.com/google/uuid"

type FileType string

const (
	FileTypeImages   FileType = "images"
	FileTypeVideos   FileType = "videos"
	FileTypeDocs     FileType = "docs"
	FileTypeAudio    FileType = "audio"
	FileTypeArchives FileType = "archives"
)

// AllFileTypes is the closed set of type buckets a record can be filed under.
var AllFileTypes = []FileType{
	FileTypeImages,
	FileTypeVideos,
	FileTypeDocs,
	FileTypeAudio,
	FileTypeArchives,
}

func ValidFileType(value string) bool {
	for _, ft := range AllFileTypes {
		if string(ft) == value {
			return true
		}
	}
	return false
}

// DefaultFolder is the sentinel folder every record without an explicit
// folder belongs to. BelongsTo is never empty.
const DefaultFolder = "All Files"

// FileRecord is the metadata row paired 1:1 with a stored binary object.
// FileID is the object's storage key; FileSize and UploadDate are formatted
// display strings computed once at upload and never recomputed.
type FileRecord struct {
	BaseModel
	FileID     string    `json:"fileId" gorm:"type:varchar(255);not null;uniqueIndex"`
	OwnerID    uuid.UUID `json:"ownerId" gorm:"type:uuid;not null;index"`
	FileName   string    `json:"fileName" gorm:"type:varchar(255);not null"`
	FileType   FileType  `json:"fileType" gorm:"type:varchar(20);not null;index"`
	FileSize   string    `json:"fileSize" gorm:"type:varchar(50);not null"`
	UploadDate string    `json:"uploadDate" gorm:"type:varchar(50);not null"`
	BelongsTo  string    `json:"belongsTo" gorm:"type:varchar(255);not null;default:'All Files'"`
	IsStarred  bool      `json:"isStarred" gorm:"not null;default:false"`
	IsTrash    bool      `json:"isTrash" gorm:"not null;default:false;index"`

	Owner User `json:"-" gorm:"foreignKey:OwnerID;references:ID"`
}
