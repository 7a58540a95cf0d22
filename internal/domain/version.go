package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VersionStatus represents the state of one generated variant
type VersionStatus string

// Possible version status values
const (
	VersionStatusGenerating VersionStatus = "generating"
	VersionStatusCompleted  VersionStatus = "completed"
	VersionStatusFailed     VersionStatus = "failed"
)

// ErrMsgVersionNotGenerated is recorded on placeholders the generator did
// not produce a section for.
const ErrMsgVersionNotGenerated = "version not generated"

// Version is one generated variant of an Item's rewritten content. Rows
// are created as placeholders together with their Item, so the number of
// Versions per Item never changes after submission.
type Version struct {
	ID           uuid.UUID     `json:"id"`
	ItemID       uuid.UUID     `json:"item_id"`
	Position     int           `json:"position"`
	Label        string        `json:"version_label"`
	Title        string        `json:"title"`
	Body         string        `json:"body"`
	Status       VersionStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// VersionLabel returns the label of the placeholder at the 0-based position.
func VersionLabel(position int) string {
	return fmt.Sprintf("v%d", position+1)
}

// NewPlaceholderVersions creates count empty Versions in the generating state.
func NewPlaceholderVersions(itemID uuid.UUID, count int) []*Version {
	now := time.Now().UTC()
	versions := make([]*Version, 0, count)
	for i := 0; i < count; i++ {
		versions = append(versions, &Version{
			ID:        uuid.New(),
			ItemID:    itemID,
			Position:  i,
			Label:     VersionLabel(i),
			Status:    VersionStatusGenerating,
			UpdatedAt: now,
		})
	}
	return versions
}

// VersionContent is the generated title and body written into a placeholder.
type VersionContent struct {
	Title string
	Body  string
}
