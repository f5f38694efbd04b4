package domain

// Book represents an audiobook in the local library mirror.
// Everything except CoverPath is server-authoritative; CoverPath points at
// a locally downloaded cover and must survive pulls (the server only knows
// the remote URL).
type Book struct {
	Syncable
	Title         string            `json:"title"`
	Subtitle      string            `json:"subtitle,omitempty"`
	Description   string            `json:"description,omitempty"`
	Publisher     string            `json:"publisher,omitempty"`
	PublishYear   string            `json:"publish_year,omitempty"`
	Language      string            `json:"language,omitempty"`
	ISBN          string            `json:"isbn,omitempty"`
	ASIN          string            `json:"asin,omitempty"`
	Contributors  []BookContributor `json:"contributors"`
	Series        []BookSeries      `json:"series,omitempty"`
	Genres        []string          `json:"genres,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	TotalDuration int64             `json:"total_duration"`
	Explicit      bool              `json:"explicit,omitempty"`
	Abridged      bool              `json:"abridged,omitempty"`

	CoverURL      string `json:"cover_url,omitempty"`
	CoverBlurHash string `json:"cover_blur_hash,omitempty"`
	// CoverPath is the locally-managed path of the downloaded cover.
	CoverPath string `json:"cover_path,omitempty"`
}

// BookSeries links a book to a series with its position.
type BookSeries struct {
	SeriesID string `json:"series_id"`
	Sequence string `json:"sequence,omitempty"` // "1", "1.5", "Book Zero" - flexible for edge cases
}

// AuthorIDs returns the contributor IDs credited as authors.
func (b *Book) AuthorIDs() []string {
	var ids []string
	for _, bc := range b.Contributors {
		for _, role := range bc.Roles {
			if role == RoleAuthor {
				ids = append(ids, bc.ContributorID)
				break
			}
		}
	}
	return ids
}

// HasContributor reports whether the given contributor is credited in any role.
func (b *Book) HasContributor(contributorID string) bool {
	for _, bc := range b.Contributors {
		if bc.ContributorID == contributorID {
			return true
		}
	}
	return false
}
