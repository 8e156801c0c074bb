package storage

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

// GetBookmark returns the bookmark with the given ID.
func (s *Service) GetBookmark(id jsonldb.ID) (*models.Bookmark, error) {
	b := s.records.Bookmarks.Get(id)
	if b == nil {
		return nil, models.Errorf(models.KindNotFound, "bookmark %s not found", id)
	}
	return b, nil
}

// GetBookmarks returns bookmarks matching the filters, newest first. An empty
// filter returns everything.
func (s *Service) GetBookmarks(f models.BookmarkFilters) []*models.Bookmark {
	var out []*models.Bookmark
	if !f.CategoryID.IsZero() {
		for b := range s.records.BookmarksByCategory.Iter(f.CategoryID) {
			out = append(out, b)
		}
	} else {
		for b := range s.records.Bookmarks.All() {
			out = append(out, b)
		}
	}
	if len(f.Tags) > 0 {
		want := normalizeTags(f.Tags)
		out = slices.DeleteFunc(out, func(b *models.Bookmark) bool {
			for _, t := range want {
				if !slices.Contains(b.Tags, t) {
					return true
				}
			}
			return false
		})
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		out = slices.DeleteFunc(out, func(b *models.Bookmark) bool {
			return !strings.Contains(strings.ToLower(b.Title), needle) &&
				!strings.Contains(strings.ToLower(b.URL), needle) &&
				!strings.Contains(strings.ToLower(b.Description), needle)
		})
	}
	slices.SortFunc(out, func(a, b *models.Bookmark) int {
		if a.CreatedAt != b.CreatedAt {
			if a.CreatedAt > b.CreatedAt {
				return -1
			}
			return 1
		}
		return b.ID.Compare(a.ID)
	})
	return out
}

// UpdateBookmark applies a partial update. A URL change re-canonicalizes and
// is rejected if the new canonical URL belongs to another bookmark.
func (s *Service) UpdateBookmark(ctx context.Context, id jsonldb.ID, upd models.BookmarkUpdate) (*models.Bookmark, error) {
	var oldTags, newTags []string
	curr, err := s.records.UpdateBookmark(id, func(b *models.Bookmark) error {
		if upd.URL != nil {
			if *upd.URL == "" {
				return models.NewError(models.KindValidationFailure, "url cannot be empty")
			}
			b.URL = *upd.URL
			b.URLCanonical = NormalizeURL(*upd.URL)
		}
		if upd.Title != nil {
			b.Title = *upd.Title
		}
		if upd.Description != nil {
			b.Description = *upd.Description
		}
		if upd.FavIconURL != nil {
			b.FavIconURL = *upd.FavIconURL
		}
		if upd.CategoryID != nil {
			if s.records.Categories.Get(*upd.CategoryID) == nil {
				return models.Errorf(models.KindValidationFailure, "category %s not found", *upd.CategoryID)
			}
			b.CategoryID = *upd.CategoryID
		}
		if upd.Tags != nil {
			oldTags = slices.Clone(b.Tags)
			b.Tags = normalizeTags(*upd.Tags)
			newTags = b.Tags
		}
		b.UpdatedAt = models.NowMs()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if upd.Tags != nil {
		added, removed := tagDiff(oldTags, newTags)
		s.adjustTagUsage(added, removed)
	}
	s.commit(ctx, "update bookmark "+curr.URLCanonical)
	return curr, nil
}

// DeleteBookmark removes the record and its assets. Asset deletion failures
// are logged only; the record is gone either way.
func (s *Service) DeleteBookmark(ctx context.Context, id jsonldb.ID) error {
	b := s.records.Bookmarks.Get(id)
	if b == nil {
		return models.Errorf(models.KindNotFound, "bookmark %s not found", id)
	}
	found, err := s.records.Bookmarks.Delete(id)
	if err != nil {
		return models.WrapError(models.KindIOFailure, "delete bookmark", err)
	}
	if !found {
		return models.Errorf(models.KindNotFound, "bookmark %s not found", id)
	}
	s.deleteAssets(ctx, id, b.ImageKeys.Thumb, b.ImageKeys.Mid)
	s.adjustTagUsage(nil, b.Tags)
	s.commit(ctx, "delete bookmark "+b.URLCanonical)
	return nil
}

// BulkUpdateCategory moves each bookmark to the category, reporting per-id
// outcomes. A failure on one id does not stop the rest.
func (s *Service) BulkUpdateCategory(ctx context.Context, ids []jsonldb.ID, categoryID jsonldb.ID) []models.BulkResult {
	results := make([]models.BulkResult, 0, len(ids))
	for _, id := range ids {
		_, err := s.UpdateBookmark(ctx, id, models.BookmarkUpdate{CategoryID: &categoryID})
		results = append(results, bulkResult(id, err))
	}
	return results
}

// BulkDelete deletes each bookmark, reporting per-id outcomes.
func (s *Service) BulkDelete(ctx context.Context, ids []jsonldb.ID) []models.BulkResult {
	results := make([]models.BulkResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, bulkResult(id, s.DeleteBookmark(ctx, id)))
	}
	return results
}

func bulkResult(id jsonldb.ID, err error) models.BulkResult {
	r := models.BulkResult{ID: id, Success: err == nil}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// FindDuplicates groups bookmarks whose URLs normalize to the same canonical
// form. With the uniqueness constraint in place this only finds legacy rows
// saved before the constraint existed or rows edited by hand.
func (s *Service) FindDuplicates() []models.DuplicateGroup {
	byCanonical := map[string][]*models.Bookmark{}
	for b := range s.records.Bookmarks.All() {
		key := NormalizeURL(b.URL)
		byCanonical[key] = append(byCanonical[key], b)
	}
	var groups []models.DuplicateGroup
	for key, list := range byCanonical {
		if len(list) < 2 {
			continue
		}
		slices.SortFunc(list, func(a, b *models.Bookmark) int {
			return a.ID.Compare(b.ID)
		})
		groups = append(groups, models.DuplicateGroup{Canonical: key, Bookmarks: list})
	}
	slices.SortFunc(groups, func(a, b models.DuplicateGroup) int {
		return strings.Compare(a.Canonical, b.Canonical)
	})
	return groups
}

// MergeBookmarks folds duplicate into primary and deletes duplicate. Tags are
// unioned; the image with the more real status wins; empty primary fields are
// filled from the duplicate.
func (s *Service) MergeBookmarks(ctx context.Context, primaryID, duplicateID jsonldb.ID) (*models.Bookmark, error) {
	if primaryID == duplicateID {
		return nil, models.NewError(models.KindValidationFailure, "cannot merge a bookmark with itself")
	}
	dup := s.records.Bookmarks.Get(duplicateID)
	if dup == nil {
		return nil, models.Errorf(models.KindNotFound, "bookmark %s not found", duplicateID)
	}

	var oldTags, newTags []string
	var replaced []assetstore.Ref // primary assets displaced by the duplicate's image
	adoptImage := false
	curr, found, err := s.records.Bookmarks.Update(primaryID, func(b *models.Bookmark) error {
		oldTags = slices.Clone(b.Tags)
		merged := slices.Clone(b.Tags)
		for _, t := range dup.Tags {
			if !slices.Contains(merged, t) {
				merged = append(merged, t)
			}
		}
		b.Tags = merged
		newTags = merged

		if dup.ImageStatus.Rank() > b.ImageStatus.Rank() {
			adoptImage = true
			if b.ImageKeys.Thumb != "" {
				replaced = append(replaced, assetstore.Ref{Bucket: assetstore.BucketThumb, Name: b.ImageKeys.Thumb})
			}
			if b.ImageKeys.Mid != "" {
				replaced = append(replaced, assetstore.Ref{Bucket: assetstore.BucketMid, Name: b.ImageKeys.Mid})
			}
			b.ImageKeys = dup.ImageKeys
			b.ImageStatus = dup.ImageStatus
		}
		if b.Description == "" {
			b.Description = dup.Description
		}
		if b.FavIconURL == "" {
			b.FavIconURL = dup.FavIconURL
		}
		b.UpdatedAt = models.NowMs()
		return nil
	})
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "merge bookmarks", err)
	}
	if !found {
		return nil, models.Errorf(models.KindNotFound, "bookmark %s not found", primaryID)
	}

	if _, err := s.records.Bookmarks.Delete(duplicateID); err != nil {
		return nil, models.WrapError(models.KindIOFailure, "delete merged duplicate", err)
	}
	added, removed := tagDiff(oldTags, newTags)
	s.adjustTagUsage(added, removed)
	s.adjustTagUsage(nil, dup.Tags)

	// Displaced primary assets, or the duplicate's if its image lost.
	if adoptImage {
		for _, ref := range replaced {
			if _, err := s.assets.Delete(ref.Bucket, ref.Name); err != nil {
				slog.WarnContext(ctx, "storage: merge asset delete failed", "bucket", ref.Bucket, "name", ref.Name, "err", err)
			}
		}
	} else {
		s.deleteAssets(ctx, duplicateID, dup.ImageKeys.Thumb, dup.ImageKeys.Mid)
	}
	s.commit(ctx, "merge bookmark "+curr.URLCanonical)
	return curr, nil
}

// Recapture queues a fresh image acquisition for an existing bookmark. With a
// screenshot the result is a real image; without one the og:image and
// placeholder fallbacks apply as on first save.
func (s *Service) Recapture(ctx context.Context, id jsonldb.ID, screenshot []byte) error {
	b := s.records.Bookmarks.Get(id)
	if b == nil {
		return models.Errorf(models.KindNotFound, "bookmark %s not found", id)
	}
	s.enqueueImage(ctx, imageTask{
		bookmarkID: id,
		screenshot: screenshot,
		tab: models.TabData{
			URL:        b.URL,
			Title:      b.Title,
			FavIconURL: b.FavIconURL,
			OGImage:    b.Metadata.OGImage,
		},
	})
	return nil
}
