package models

import "github.com/bauset/marcador/internal/jsonldb"

// TabData is the page information collected by the capture surface when the
// user saves the current tab.
type TabData struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	FavIconURL  string     `json:"favIconUrl,omitempty"`
	CategoryID  jsonldb.ID `json:"categoryId,omitzero"`
	Tags        []string   `json:"tags,omitempty"`
	OGTitle     string     `json:"ogTitle,omitempty"`
	OGImage     string     `json:"ogImage,omitempty"`
	Keywords    string     `json:"keywords,omitempty"`
}

// BookmarkFilters narrows getBookmarks results.
type BookmarkFilters struct {
	CategoryID jsonldb.ID
	Tags       []string
	Search     string
}

// BookmarkUpdate is a partial update; nil fields are left untouched.
type BookmarkUpdate struct {
	URL         *string     `json:"url,omitempty"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	FavIconURL  *string     `json:"favIconUrl,omitempty"`
	CategoryID  *jsonldb.ID `json:"categoryId,omitempty"`
	Tags        *[]string   `json:"tags,omitempty"`
}

// BulkResult is the per-id outcome of a bulk operation. Partial failure across
// a batch is expected and reported, never rolled back.
type BulkResult struct {
	ID      jsonldb.ID `json:"id"`
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
}

// DuplicateGroup is a set of bookmarks sharing a canonical URL.
type DuplicateGroup struct {
	Canonical string      `json:"canonical"`
	Bookmarks []*Bookmark `json:"bookmarks"`
}

// ExportSnapshot is the read-only data surface exposed to export generators.
// They must not touch the stores directly; this plus an asset-fetch function
// is all they get.
type ExportSnapshot struct {
	Bookmarks  []*Bookmark `json:"bookmarks"`
	Categories []*Category `json:"categories"`
	Tags       []*Tag      `json:"tags"`
	ExportedAt int64       `json:"exportedAt"`
	Version    string      `json:"version"`
}

// ImportError records one failed bookmark during import.
type ImportError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ImportResult summarizes an import run. Uniqueness violations count as
// skipped; other per-bookmark errors are collected, never aborting the run.
type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// StorageStats aggregates record counts and asset usage.
type StorageStats struct {
	Records struct {
		Bookmarks  int `json:"bookmarks"`
		Categories int `json:"categories"`
		Tags       int `json:"tags"`
		Settings   int `json:"settings"`
		Total      int `json:"total"`
	} `json:"records"`
	Images struct {
		Thumb int64 `json:"thumb"`
		Mid   int64 `json:"mid"`
		Total int64 `json:"total"`
		Count int   `json:"count"`
	} `json:"images"`
}
