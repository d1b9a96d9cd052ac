package models

// LegalNewsItem is one entry of the dashboard's legal news feed.
type LegalNewsItem struct {
	Date    string `json:"date"`
	Title   string `json:"title"`
	Tag     string `json:"tag"`
	Summary string `json:"summary,omitempty"`
}
