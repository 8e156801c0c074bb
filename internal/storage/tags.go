package storage

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

// normalizeTags lowercases, trims and deduplicates, dropping empties. Order
// of first appearance is preserved.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// tagDiff returns the tags present only in curr (added) and only in prev
// (removed). Both inputs must already be normalized.
func tagDiff(prev, curr []string) (added, removed []string) {
	for _, t := range curr {
		if !slices.Contains(prev, t) {
			added = append(added, t)
		}
	}
	for _, t := range prev {
		if !slices.Contains(curr, t) {
			removed = append(removed, t)
		}
	}
	return added, removed
}

// adjustTagUsage maintains the tags table as bookmarks gain and lose tags.
// New tags are created on first use; tags that drop to zero usage are removed.
// The table is a rebuildable view, so failures here are logged, not returned.
func (s *Service) adjustTagUsage(added, removed []string) {
	now := models.NowMs()
	for _, name := range added {
		existing := s.records.TagByName.Get(name)
		if existing == nil {
			err := s.records.AddTag(&models.Tag{
				ID:         jsonldb.NewID(),
				Name:       name,
				UsageCount: 1,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if err != nil && !models.IsKind(err, models.KindConstraintViolation) {
				slog.Warn("storage: tag create failed", "tag", name, "err", err)
			}
			continue
		}
		_, _, err := s.records.Tags.Update(existing.ID, func(t *models.Tag) error {
			t.UsageCount++
			t.UpdatedAt = now
			return nil
		})
		if err != nil {
			slog.Warn("storage: tag usage update failed", "tag", name, "err", err)
		}
	}
	for _, name := range removed {
		existing := s.records.TagByName.Get(name)
		if existing == nil {
			continue
		}
		if existing.UsageCount <= 1 {
			if _, err := s.records.Tags.Delete(existing.ID); err != nil {
				slog.Warn("storage: tag delete failed", "tag", name, "err", err)
			}
			continue
		}
		_, _, err := s.records.Tags.Update(existing.ID, func(t *models.Tag) error {
			t.UsageCount--
			t.UpdatedAt = now
			return nil
		})
		if err != nil {
			slog.Warn("storage: tag usage update failed", "tag", name, "err", err)
		}
	}
}

// GetTags returns all tags sorted by usage, most used first.
func (s *Service) GetTags() []*models.Tag {
	var out []*models.Tag
	for t := range s.records.Tags.All() {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *models.Tag) int {
		if a.UsageCount != b.UsageCount {
			return b.UsageCount - a.UsageCount
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// RescanTags rebuilds the tags table from the bookmarks. Bookmark.Tags is
// authoritative; this repairs drift from crashes or hand-edited files.
func (s *Service) RescanTags(ctx context.Context) ([]*models.Tag, error) {
	counts := map[string]int{}
	for b := range s.records.Bookmarks.All() {
		for _, t := range b.Tags {
			counts[t]++
		}
	}

	// Snapshot first; All holds the table lock while iterating and the loop
	// body mutates the table.
	var existing []*models.Tag
	for t := range s.records.Tags.All() {
		existing = append(existing, t)
	}

	now := models.NowMs()
	for _, t := range existing {
		count, used := counts[t.Name]
		if !used {
			if _, err := s.records.Tags.Delete(t.ID); err != nil {
				return nil, models.WrapError(models.KindIOFailure, "delete stale tag", err)
			}
			continue
		}
		if count != t.UsageCount {
			_, _, err := s.records.Tags.Update(t.ID, func(row *models.Tag) error {
				row.UsageCount = count
				row.UpdatedAt = now
				return nil
			})
			if err != nil {
				return nil, models.WrapError(models.KindIOFailure, "update tag usage", err)
			}
		}
		delete(counts, t.Name)
	}
	for name, count := range counts {
		err := s.records.AddTag(&models.Tag{
			ID:         jsonldb.NewID(),
			Name:       name,
			UsageCount: count,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return nil, err
		}
	}
	s.commit(ctx, "rescan tags")
	return s.GetTags(), nil
}
