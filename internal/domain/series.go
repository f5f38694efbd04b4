package domain

// Series represents a book series.
type Series struct {
	Syncable
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ASIN        string `json:"asin,omitempty"`
}
