package domain

// Tag is user-applied supplementary metadata on books.
// Tags are non-critical during sync: a failed tag pull is logged and
// skipped rather than aborting the cycle.
type Tag struct {
	Syncable
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Genre is curated subject metadata, organized as a tree via ParentID.
type Genre struct {
	Syncable
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id,omitempty"`
}
