package navigation

import (
	"fmt"

	"github.com/cloudly/backend/internal/models"
)

type Section string

const (
	SectionFileTypes   Section = "fileTypes"
	SectionFolders     Section = "folders"
	SectionQuickAccess Section = "quickAccess"
)

type QuickAccessView string

const (
	ViewStarred QuickAccessView = "starred"
	ViewRecent  QuickAccessView = "recent"
	ViewTrash   QuickAccessView = "trash"
)

// Selection identifies one navigation entry: a file-type bucket (empty
// FileType means "all"), a folder by name, or a quick-access view. It is a
// pure value, replaced wholesale on every navigation change.
type Selection struct {
	Section  Section
	FileType models.FileType
	Folder   string
	View     QuickAccessView
}

// Default is the selection active at dashboard mount.
func Default() Selection {
	return Selection{Section: SectionFolders, Folder: models.DefaultFolder}
}

func FileTypeSelection(ft models.FileType) Selection {
	return Selection{Section: SectionFileTypes, FileType: ft}
}

func FolderSelection(name string) Selection {
	if name == "" {
		name = models.DefaultFolder
	}
	return Selection{Section: SectionFolders, Folder: name}
}

func QuickAccessSelection(view QuickAccessView) Selection {
	return Selection{Section: SectionQuickAccess, View: view}
}

// Parse builds a Selection from the raw query values of a listing request.
// Unknown sections, types, and views are rejected before any store call.
func Parse(section, fileType, folder, view string) (Selection, error) {
	switch Section(section) {
	case SectionFileTypes:
		if fileType == "" {
			return Selection{Section: SectionFileTypes}, nil
		}
		if !models.ValidFileType(fileType) {
			return Selection{}, fmt.Errorf("unknown file type %q", fileType)
		}
		return FileTypeSelection(models.FileType(fileType)), nil

	case SectionFolders, "":
		return FolderSelection(folder), nil

	case SectionQuickAccess:
		switch QuickAccessView(view) {
		case ViewStarred, ViewRecent, ViewTrash:
			return QuickAccessSelection(QuickAccessView(view)), nil
		default:
			return Selection{}, fmt.Errorf("unknown quick access view %q", view)
		}

	default:
		return Selection{}, fmt.Errorf("unknown navigation section %q", section)
	}
}
