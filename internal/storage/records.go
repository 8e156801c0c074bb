// Package storage implements the structured record store and the bookmark
// service on top of it.
//
// Records are kept in one JSONL table per type with in-memory secondary
// indexes. The service layer owns all cross-table invariants: URL uniqueness,
// category re-homing, tag usage counts, and the bookmark image lifecycle.
package storage

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

// DefaultCategoryName is the name of the always-present fallback category.
const DefaultCategoryName = "uncategorized"

// Records bundles the four tables and their secondary indexes.
//
// Uniqueness constraints (canonical URL, case-insensitive category name, tag
// name, setting key) are enforced here, not by the tables: every
// check-then-append runs under mu so two concurrent writers cannot both pass
// the check.
type Records struct {
	Bookmarks  *jsonldb.Table[*models.Bookmark]
	Categories *jsonldb.Table[*models.Category]
	Tags       *jsonldb.Table[*models.Tag]
	Settings   *jsonldb.Table[*models.Setting]

	BookmarkByCanonical *jsonldb.UniqueIndex[string, *models.Bookmark]
	BookmarksByCategory *jsonldb.Index[jsonldb.ID, *models.Bookmark]
	BookmarksByTag      *jsonldb.Index[string, *models.Bookmark]
	CategoryByName      *jsonldb.UniqueIndex[string, *models.Category]
	TagByName           *jsonldb.UniqueIndex[string, *models.Tag]
	SettingByKey        *jsonldb.UniqueIndex[string, *models.Setting]

	mu sync.Mutex
}

// OpenRecords opens (creating if needed) the tables under dir and builds
// their indexes. The default category is seeded if missing; reopening an
// existing store is a no-op in that regard.
func OpenRecords(dir string) (*Records, error) {
	bookmarks, err := jsonldb.NewTable[*models.Bookmark](filepath.Join(dir, "bookmarks.jsonl"))
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "open bookmarks table", err)
	}
	categories, err := jsonldb.NewTable[*models.Category](filepath.Join(dir, "categories.jsonl"))
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "open categories table", err)
	}
	tags, err := jsonldb.NewTable[*models.Tag](filepath.Join(dir, "tags.jsonl"))
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "open tags table", err)
	}
	settings, err := jsonldb.NewTable[*models.Setting](filepath.Join(dir, "settings.jsonl"))
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "open settings table", err)
	}

	r := &Records{
		Bookmarks:  bookmarks,
		Categories: categories,
		Tags:       tags,
		Settings:   settings,
	}
	r.BookmarkByCanonical = jsonldb.NewUniqueIndex(bookmarks, func(b *models.Bookmark) string {
		return b.URLCanonical
	})
	r.BookmarksByCategory = jsonldb.NewIndex(bookmarks, func(b *models.Bookmark) []jsonldb.ID {
		return []jsonldb.ID{b.CategoryID}
	})
	r.BookmarksByTag = jsonldb.NewIndex(bookmarks, func(b *models.Bookmark) []string {
		return b.Tags
	})
	r.CategoryByName = jsonldb.NewUniqueIndex(categories, func(c *models.Category) string {
		return strings.ToLower(c.Name)
	})
	r.TagByName = jsonldb.NewUniqueIndex(tags, func(t *models.Tag) string {
		return t.Name
	})
	r.SettingByKey = jsonldb.NewUniqueIndex(settings, func(s *models.Setting) string {
		return s.Key
	})

	if err := r.seedDefaults(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Records) seedDefaults() error {
	if r.Categories.Get(models.UncategorizedID) != nil {
		return nil
	}
	now := models.NowMs()
	err := r.Categories.Append(&models.Category{
		ID:        models.UncategorizedID,
		Name:      DefaultCategoryName,
		Order:     0,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return models.WrapError(models.KindIOFailure, "seed default category", err)
	}
	return nil
}

// AddBookmark appends a bookmark, enforcing canonical URL uniqueness.
func (r *Records) AddBookmark(b *models.Bookmark) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.BookmarkByCanonical.Get(b.URLCanonical); existing != nil {
		return models.Errorf(models.KindConstraintViolation, "bookmark for %s already exists", b.URLCanonical)
	}
	if err := r.Bookmarks.Append(b); err != nil {
		return models.WrapError(models.KindIOFailure, "append bookmark", err)
	}
	return nil
}

// UpdateBookmark applies fn to the bookmark under the constraint lock,
// rejecting the update if it would move the canonical URL onto another row.
func (r *Records) UpdateBookmark(id jsonldb.ID, fn func(b *models.Bookmark) error) (*models.Bookmark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	curr, found, err := r.Bookmarks.Update(id, func(b *models.Bookmark) error {
		if err := fn(b); err != nil {
			return err
		}
		// GetID, not Get: the table's write lock is held here.
		if otherID, ok := r.BookmarkByCanonical.GetID(b.URLCanonical); ok && otherID != id {
			return models.Errorf(models.KindConstraintViolation, "bookmark for %s already exists", b.URLCanonical)
		}
		return nil
	})
	if err != nil {
		if models.KindOf(err) != models.KindInternal {
			return nil, err
		}
		return nil, models.WrapError(models.KindIOFailure, "update bookmark", err)
	}
	if !found {
		return nil, models.Errorf(models.KindNotFound, "bookmark %s not found", id)
	}
	return curr, nil
}

// AddCategory appends a category, enforcing case-insensitive name uniqueness.
func (r *Records) AddCategory(c *models.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.CategoryByName.Get(strings.ToLower(c.Name)); existing != nil {
		return models.Errorf(models.KindConstraintViolation, "category %q already exists", c.Name)
	}
	if err := r.Categories.Append(c); err != nil {
		return models.WrapError(models.KindIOFailure, "append category", err)
	}
	return nil
}

// RenameCategory updates a category name, enforcing uniqueness against other
// categories. A case-only rename of the same category is allowed.
func (r *Records) RenameCategory(id jsonldb.ID, name string, order *int) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if other := r.CategoryByName.Get(strings.ToLower(name)); other != nil && other.ID != id {
		return nil, models.Errorf(models.KindConstraintViolation, "category %q already exists", name)
	}
	curr, found, err := r.Categories.Update(id, func(c *models.Category) error {
		c.Name = name
		if order != nil {
			c.Order = *order
		}
		c.UpdatedAt = models.NowMs()
		return nil
	})
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "update category", err)
	}
	if !found {
		return nil, models.Errorf(models.KindNotFound, "category %s not found", id)
	}
	return curr, nil
}

// AddTag appends a tag, enforcing name uniqueness.
func (r *Records) AddTag(t *models.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.TagByName.Get(t.Name); existing != nil {
		return models.Errorf(models.KindConstraintViolation, "tag %q already exists", t.Name)
	}
	if err := r.Tags.Append(t); err != nil {
		return models.WrapError(models.KindIOFailure, "append tag", err)
	}
	return nil
}

// PutSetting upserts a setting by key.
func (r *Records) PutSetting(key, value string) (*models.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := models.NowMs()
	if existing := r.SettingByKey.Get(key); existing != nil {
		curr, _, err := r.Settings.Update(existing.ID, func(s *models.Setting) error {
			s.Value = value
			s.UpdatedAt = now
			return nil
		})
		if err != nil {
			return nil, models.WrapError(models.KindIOFailure, "update setting", err)
		}
		return curr, nil
	}
	s := &models.Setting{ID: jsonldb.NewID(), Key: key, Value: value, UpdatedAt: now}
	if err := r.Settings.Append(s); err != nil {
		return nil, models.WrapError(models.KindIOFailure, "append setting", err)
	}
	return s, nil
}
