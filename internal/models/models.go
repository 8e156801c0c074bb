// Package models defines the core data structures used throughout the application.
package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bauset/marcador/internal/jsonldb"
)

// UncategorizedID is the well-known ID of the default category. It always
// exists and cannot be deleted.
const UncategorizedID = jsonldb.ID(1)

// ImageStatus is the lifecycle stage of a bookmark's visual representation.
type ImageStatus string

const (
	// ImageReal means compression of an actual page screenshot succeeded.
	ImageReal ImageStatus = "real"
	// ImageProvisional means compression of a remote og:image succeeded.
	ImageProvisional ImageStatus = "provisional"
	// ImagePlaceholder is the initial state, set at bookmark creation.
	ImagePlaceholder ImageStatus = "placeholder"
	// ImageFailed means an image acquisition or compression step failed.
	ImageFailed ImageStatus = "failed"
)

// Valid returns true for a known image status.
func (s ImageStatus) Valid() bool {
	switch s {
	case ImageReal, ImageProvisional, ImagePlaceholder, ImageFailed:
		return true
	}
	return false
}

// Rank orders statuses by how "real" the image is, for duplicate merging.
func (s ImageStatus) Rank() int {
	switch s {
	case ImageReal:
		return 3
	case ImageProvisional:
		return 2
	case ImagePlaceholder:
		return 1
	default:
		return 0
	}
}

// ImageKeys references the bookmark's assets in the asset store, by file name
// within the bucket of the same name. Empty means no asset.
type ImageKeys struct {
	Thumb string `json:"thumb,omitempty"`
	Mid   string `json:"mid,omitempty"`
}

// PageMetadata carries metadata scraped from the bookmarked page.
type PageMetadata struct {
	OGTitle  string `json:"ogTitle,omitempty"`
	OGImage  string `json:"ogImage,omitempty"`
	Keywords string `json:"keywords,omitempty"`
}

// Bookmark is a saved page with its image state.
type Bookmark struct {
	ID           jsonldb.ID   `json:"id"`
	URL          string       `json:"url"`
	URLCanonical string       `json:"urlCanonical"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	FavIconURL   string       `json:"favIconUrl,omitempty"`
	CategoryID   jsonldb.ID   `json:"categoryId"`
	Tags         []string     `json:"tags"`
	ImageKeys    ImageKeys    `json:"imageKeys"`
	ImageStatus  ImageStatus  `json:"imageStatus"`
	Metadata     PageMetadata `json:"metadata,omitzero"`
	CreatedAt    int64        `json:"createdAt"`
	UpdatedAt    int64        `json:"updatedAt"`
}

// Clone implements jsonldb.Cloner.
func (b *Bookmark) Clone() *Bookmark {
	c := *b
	c.Tags = slices.Clone(b.Tags)
	return &c
}

// GetID implements jsonldb.Row.
func (b *Bookmark) GetID() jsonldb.ID {
	return b.ID
}

// Validate implements jsonldb.Row.
func (b *Bookmark) Validate() error {
	if b.ID.IsZero() {
		return fmt.Errorf("bookmark id is required")
	}
	if b.URL == "" {
		return fmt.Errorf("bookmark url is required")
	}
	if b.URLCanonical == "" {
		return fmt.Errorf("bookmark canonical url is required")
	}
	if b.CategoryID.IsZero() {
		return fmt.Errorf("bookmark category id is required")
	}
	if !b.ImageStatus.Valid() {
		return fmt.Errorf("invalid image status %q", b.ImageStatus)
	}
	return nil
}

// Category groups bookmarks. Name is unique case-insensitively.
type Category struct {
	ID        jsonldb.ID `json:"id"`
	Name      string     `json:"name"`
	Order     int        `json:"order"`
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

// Clone implements jsonldb.Cloner.
func (c *Category) Clone() *Category {
	clone := *c
	return &clone
}

// GetID implements jsonldb.Row.
func (c *Category) GetID() jsonldb.ID {
	return c.ID
}

// Validate implements jsonldb.Row.
func (c *Category) Validate() error {
	if c.ID.IsZero() {
		return fmt.Errorf("category id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category name is required")
	}
	return nil
}

// Tag is a materialized view of tag usage for browsing and autocomplete.
// Bookmark.Tags is authoritative; the tags table can be rebuilt from scratch
// at any time.
type Tag struct {
	ID         jsonldb.ID `json:"id"`
	Name       string     `json:"name"`
	UsageCount int        `json:"usageCount"`
	CreatedAt  int64      `json:"createdAt"`
	UpdatedAt  int64      `json:"updatedAt"`
}

// Clone implements jsonldb.Cloner.
func (t *Tag) Clone() *Tag {
	c := *t
	return &c
}

// GetID implements jsonldb.Row.
func (t *Tag) GetID() jsonldb.ID {
	return t.ID
}

// Validate implements jsonldb.Row.
func (t *Tag) Validate() error {
	if t.ID.IsZero() {
		return fmt.Errorf("tag id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("tag name is required")
	}
	return nil
}

// Setting is a free-form key/value row.
type Setting struct {
	ID        jsonldb.ID `json:"id"`
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	UpdatedAt int64      `json:"updatedAt"`
}

// Clone implements jsonldb.Cloner.
func (s *Setting) Clone() *Setting {
	c := *s
	return &c
}

// GetID implements jsonldb.Row.
func (s *Setting) GetID() jsonldb.ID {
	return s.ID
}

// Validate implements jsonldb.Row.
func (s *Setting) Validate() error {
	if s.ID.IsZero() {
		return fmt.Errorf("setting id is required")
	}
	if s.Key == "" {
		return fmt.Errorf("setting key is required")
	}
	return nil
}

// NowMs returns the current time in epoch milliseconds, the timestamp unit
// used across all records.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
