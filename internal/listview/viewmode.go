package listview

import "context"

// ViewMode selects the presentation of a list page.
type ViewMode string

const (
	// ViewList renders a table.
	ViewList ViewMode = "list"
	// ViewThumbnails renders a card grid.
	ViewThumbnails ViewMode = "thumbnails"
)

// ParseViewMode maps stored or submitted text to a ViewMode, defaulting to list.
func ParseViewMode(raw string) (ViewMode, bool) {
	switch ViewMode(raw) {
	case ViewList:
		return ViewList, true
	case ViewThumbnails:
		return ViewThumbnails, true
	default:
		return ViewList, false
	}
}

// PreferenceStore persists the view mode per owner and entity.
type PreferenceStore interface {
	ViewMode(ctx context.Context, owner, entity string) (ViewMode, error)
	SetViewMode(ctx context.Context, owner, entity string, mode ViewMode) error
}
