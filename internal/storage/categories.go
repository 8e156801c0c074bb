package storage

import (
	"context"
	"slices"
	"strings"

	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

// GetCategories returns all categories sorted by order, then name.
func (s *Service) GetCategories() []*models.Category {
	var out []*models.Category
	for c := range s.records.Categories.All() {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *models.Category) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// AddCategory creates a category. Names are unique case-insensitively.
func (s *Service) AddCategory(ctx context.Context, name string, order int) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewError(models.KindValidationFailure, "category name is required")
	}
	now := models.NowMs()
	c := &models.Category{
		ID:        jsonldb.NewID(),
		Name:      name,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.records.AddCategory(c); err != nil {
		return nil, err
	}
	s.commit(ctx, "add category "+name)
	return c, nil
}

// UpdateCategory renames or reorders a category.
func (s *Service) UpdateCategory(ctx context.Context, id jsonldb.ID, name string, order *int) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewError(models.KindValidationFailure, "category name is required")
	}
	curr, err := s.records.RenameCategory(id, name, order)
	if err != nil {
		return nil, err
	}
	s.commit(ctx, "update category "+name)
	return curr, nil
}

// DeleteCategory removes a category after moving its bookmarks to the default
// category. The default category itself cannot be deleted. If any bookmark
// fails to move the category survives, so no bookmark is ever left pointing
// at a missing category.
func (s *Service) DeleteCategory(ctx context.Context, id jsonldb.ID) error {
	if id == models.UncategorizedID {
		return models.NewError(models.KindValidationFailure, "the default category cannot be deleted")
	}
	c := s.records.Categories.Get(id)
	if c == nil {
		return models.Errorf(models.KindNotFound, "category %s not found", id)
	}

	for b := range s.records.BookmarksByCategory.Iter(id) {
		_, _, err := s.records.Bookmarks.Update(b.ID, func(row *models.Bookmark) error {
			row.CategoryID = models.UncategorizedID
			row.UpdatedAt = models.NowMs()
			return nil
		})
		if err != nil {
			return models.WrapError(models.KindIOFailure, "move bookmark to default category", err)
		}
	}

	if _, err := s.records.Categories.Delete(id); err != nil {
		return models.WrapError(models.KindIOFailure, "delete category", err)
	}
	s.commit(ctx, "delete category "+c.Name)
	return nil
}
