package domain

// Contributor represents a person who contributed to a book in any capacity.
type Contributor struct {
	Syncable
	Name      string   `json:"name"`
	SortName  string   `json:"sort_name,omitempty"` // "Sanderson, Brandon" for proper sorting
	Biography string   `json:"biography,omitempty"`
	Aliases   []string `json:"aliases,omitempty"` // Pen names absorbed by merges
	ASIN      string   `json:"asin,omitempty"`

	ImageURL      string `json:"image_url,omitempty"`
	ImageBlurHash string `json:"image_blur_hash,omitempty"`
	// ImagePath is the locally-managed path of the downloaded portrait.
	// The server cannot supply it, so pulls must carry it forward.
	ImagePath string `json:"image_path,omitempty"`
}

// SortKey returns the name to sort by: SortName when set, Name otherwise.
func (c *Contributor) SortKey() string {
	if c.SortName != "" {
		return c.SortName
	}
	return c.Name
}

// ContributorRole defines the type of contribution.
type ContributorRole string

const (
	RoleAuthor     ContributorRole = "author"
	RoleNarrator   ContributorRole = "narrator"
	RoleEditor     ContributorRole = "editor"
	RoleTranslator ContributorRole = "translator"
	// Room to grow: foreword, introduction, etc.
)

// String returns the string representation of the role.
func (r ContributorRole) String() string {
	return string(r)
}

// IsValid checks if the role is a recognized value.
func (r ContributorRole) IsValid() bool {
	switch r {
	case RoleAuthor, RoleNarrator, RoleEditor, RoleTranslator:
		return true
	default:
		return false
	}
}

// BookContributor links a book to a contributor with specific role(s).
// CreditedAs preserves the original attribution when a merge absorbed a
// pen name ("Richard Bachman" on a Stephen King book).
type BookContributor struct {
	ContributorID string            `json:"contributor_id"`
	Roles         []ContributorRole `json:"roles"`
	CreditedAs    string            `json:"credited_as,omitempty"`
}
