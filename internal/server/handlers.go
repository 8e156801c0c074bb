package server

import (
	"context"
	"time"

	"github.com/bauset/marcador/internal/history"
	"github.com/bauset/marcador/internal/imaging"
	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

type emptyRequest struct{}

func (r *emptyRequest) Validate() error { return nil }

type saveBookmarkRequest struct {
	Tab        models.TabData `json:"tabData"`
	Screenshot string         `json:"screenshot,omitempty"` // data URL
}

func (r *saveBookmarkRequest) Validate() error {
	if r.Tab.URL == "" {
		return models.NewError(models.KindValidationFailure, "tabData.url is required")
	}
	return nil
}

func (s *Server) saveBookmark(ctx context.Context, req *saveBookmarkRequest) (*models.Bookmark, error) {
	var screenshot []byte
	if req.Screenshot != "" {
		raw, err := imaging.DecodeDataURL(req.Screenshot)
		if err != nil {
			return nil, err
		}
		screenshot = raw
	}
	return s.svc.SaveBookmark(ctx, req.Tab, screenshot)
}

type listBookmarksRequest struct {
	CategoryID jsonldb.ID `query:"category"`
	Tags       []string   `query:"tags"`
	Search     string     `query:"q"`
}

func (r *listBookmarksRequest) Validate() error { return nil }

func (s *Server) listBookmarks(_ context.Context, req *listBookmarksRequest) ([]*models.Bookmark, error) {
	return s.svc.GetBookmarks(models.BookmarkFilters{
		CategoryID: req.CategoryID,
		Tags:       req.Tags,
		Search:     req.Search,
	}), nil
}

type bookmarkIDRequest struct {
	ID jsonldb.ID `path:"id"`
}

func (r *bookmarkIDRequest) Validate() error {
	if r.ID.IsZero() {
		return models.NewError(models.KindValidationFailure, "id is required")
	}
	return nil
}

func (s *Server) getBookmark(_ context.Context, req *bookmarkIDRequest) (*models.Bookmark, error) {
	return s.svc.GetBookmark(req.ID)
}

func (s *Server) deleteBookmark(ctx context.Context, req *bookmarkIDRequest) (*models.Bookmark, error) {
	b, err := s.svc.GetBookmark(req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteBookmark(ctx, req.ID); err != nil {
		return nil, err
	}
	return b, nil
}

type updateBookmarkRequest struct {
	ID jsonldb.ID `path:"id"`
	models.BookmarkUpdate
}

func (r *updateBookmarkRequest) Validate() error {
	if r.ID.IsZero() {
		return models.NewError(models.KindValidationFailure, "id is required")
	}
	return nil
}

func (s *Server) updateBookmark(ctx context.Context, req *updateBookmarkRequest) (*models.Bookmark, error) {
	return s.svc.UpdateBookmark(ctx, req.ID, req.BookmarkUpdate)
}

type recaptureRequest struct {
	ID         jsonldb.ID `path:"id"`
	Screenshot string     `json:"screenshot,omitempty"` // data URL
}

func (r *recaptureRequest) Validate() error {
	if r.ID.IsZero() {
		return models.NewError(models.KindValidationFailure, "id is required")
	}
	return nil
}

func (s *Server) recaptureBookmark(ctx context.Context, req *recaptureRequest) (*models.Bookmark, error) {
	var screenshot []byte
	if req.Screenshot != "" {
		raw, err := imaging.DecodeDataURL(req.Screenshot)
		if err != nil {
			return nil, err
		}
		screenshot = raw
	}
	if err := s.svc.Recapture(ctx, req.ID, screenshot); err != nil {
		return nil, err
	}
	return s.svc.GetBookmark(req.ID)
}

type bulkDeleteRequest struct {
	IDs []jsonldb.ID `json:"ids"`
}

func (r *bulkDeleteRequest) Validate() error {
	if len(r.IDs) == 0 {
		return models.NewError(models.KindValidationFailure, "ids are required")
	}
	return nil
}

func (s *Server) bulkDelete(ctx context.Context, req *bulkDeleteRequest) ([]models.BulkResult, error) {
	return s.svc.BulkDelete(ctx, req.IDs), nil
}

type bulkCategoryRequest struct {
	IDs        []jsonldb.ID `json:"ids"`
	CategoryID jsonldb.ID   `json:"categoryId"`
}

func (r *bulkCategoryRequest) Validate() error {
	if len(r.IDs) == 0 {
		return models.NewError(models.KindValidationFailure, "ids are required")
	}
	if r.CategoryID.IsZero() {
		return models.NewError(models.KindValidationFailure, "categoryId is required")
	}
	return nil
}

func (s *Server) bulkCategory(ctx context.Context, req *bulkCategoryRequest) ([]models.BulkResult, error) {
	return s.svc.BulkUpdateCategory(ctx, req.IDs, req.CategoryID), nil
}

func (s *Server) listDuplicates(_ context.Context, _ *emptyRequest) ([]models.DuplicateGroup, error) {
	return s.svc.FindDuplicates(), nil
}

type mergeRequest struct {
	PrimaryID   jsonldb.ID `json:"primaryId"`
	DuplicateID jsonldb.ID `json:"duplicateId"`
}

func (r *mergeRequest) Validate() error {
	if r.PrimaryID.IsZero() || r.DuplicateID.IsZero() {
		return models.NewError(models.KindValidationFailure, "primaryId and duplicateId are required")
	}
	return nil
}

func (s *Server) mergeBookmarks(ctx context.Context, req *mergeRequest) (*models.Bookmark, error) {
	return s.svc.MergeBookmarks(ctx, req.PrimaryID, req.DuplicateID)
}

func (s *Server) listCategories(_ context.Context, _ *emptyRequest) ([]*models.Category, error) {
	return s.svc.GetCategories(), nil
}

type createCategoryRequest struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

func (r *createCategoryRequest) Validate() error {
	if r.Name == "" {
		return models.NewError(models.KindValidationFailure, "name is required")
	}
	return nil
}

func (s *Server) createCategory(ctx context.Context, req *createCategoryRequest) (*models.Category, error) {
	return s.svc.AddCategory(ctx, req.Name, req.Order)
}

type updateCategoryRequest struct {
	ID    jsonldb.ID `path:"id"`
	Name  string     `json:"name"`
	Order *int       `json:"order,omitempty"`
}

func (r *updateCategoryRequest) Validate() error {
	if r.ID.IsZero() {
		return models.NewError(models.KindValidationFailure, "id is required")
	}
	if r.Name == "" {
		return models.NewError(models.KindValidationFailure, "name is required")
	}
	return nil
}

func (s *Server) updateCategory(ctx context.Context, req *updateCategoryRequest) (*models.Category, error) {
	return s.svc.UpdateCategory(ctx, req.ID, req.Name, req.Order)
}

type categoryIDRequest struct {
	ID jsonldb.ID `path:"id"`
}

func (r *categoryIDRequest) Validate() error {
	if r.ID.IsZero() {
		return models.NewError(models.KindValidationFailure, "id is required")
	}
	return nil
}

func (s *Server) deleteCategory(ctx context.Context, req *categoryIDRequest) (struct{}, error) {
	return struct{}{}, s.svc.DeleteCategory(ctx, req.ID)
}

func (s *Server) listTags(_ context.Context, _ *emptyRequest) ([]*models.Tag, error) {
	return s.svc.GetTags(), nil
}

func (s *Server) rescanTags(ctx context.Context, _ *emptyRequest) ([]*models.Tag, error) {
	return s.svc.RescanTags(ctx)
}

func (s *Server) getSettings(_ context.Context, _ *emptyRequest) (map[string]string, error) {
	return s.svc.GetSettings(), nil
}

type setSettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r *setSettingRequest) Validate() error {
	if r.Key == "" {
		return models.NewError(models.KindValidationFailure, "key is required")
	}
	return nil
}

func (s *Server) setSetting(ctx context.Context, req *setSettingRequest) (*models.Setting, error) {
	return s.svc.SetSetting(ctx, req.Key, req.Value)
}

func (s *Server) getStats(_ context.Context, _ *emptyRequest) (models.StorageStats, error) {
	return s.svc.Stats()
}

type cleanupRequest struct {
	MaxAgeDays int `json:"maxAgeDays"`
}

func (r *cleanupRequest) Validate() error {
	if r.MaxAgeDays <= 0 {
		return models.NewError(models.KindValidationFailure, "maxAgeDays must be positive")
	}
	return nil
}

type cleanupResponse struct {
	Cleaned int  `json:"cleaned"`
	Success bool `json:"success"`
}

func (s *Server) cleanupAssets(ctx context.Context, req *cleanupRequest) (cleanupResponse, error) {
	res, err := s.svc.CleanupAssets(ctx, time.Duration(req.MaxAgeDays)*24*time.Hour)
	if err != nil {
		return cleanupResponse{}, err
	}
	return cleanupResponse{Cleaned: res.Cleaned, Success: res.Success}, nil
}

type recompressResponse struct {
	Recompressed int `json:"recompressed"`
}

func (s *Server) recompressAssets(ctx context.Context, _ *emptyRequest) (recompressResponse, error) {
	n, err := s.svc.RecompressLarge(ctx)
	if err != nil {
		return recompressResponse{}, err
	}
	return recompressResponse{Recompressed: n}, nil
}

type historyRequest struct {
	Limit int `query:"limit"`
}

func (r *historyRequest) Validate() error { return nil }

func (s *Server) listHistory(ctx context.Context, req *historyRequest) ([]history.Commit, error) {
	if s.history == nil {
		return nil, models.NewError(models.KindNotFound, "history is disabled")
	}
	commits, err := s.history.Log(ctx, req.Limit)
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "read history", err)
	}
	return commits, nil
}
