package storage

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/imaging"
	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

// SnapshotVersion identifies the export format.
const SnapshotVersion = "2.0"

// Stats aggregates record counts and asset store usage.
func (s *Service) Stats() (models.StorageStats, error) {
	var st models.StorageStats
	st.Records.Bookmarks = s.records.Bookmarks.Len()
	st.Records.Categories = s.records.Categories.Len()
	st.Records.Tags = s.records.Tags.Len()
	st.Records.Settings = s.records.Settings.Len()
	st.Records.Total = st.Records.Bookmarks + st.Records.Categories + st.Records.Tags + st.Records.Settings

	usage, err := s.assets.GetUsage()
	if err != nil {
		return st, models.WrapError(models.KindIOFailure, "asset usage", err)
	}
	st.Images.Thumb = usage.Thumb
	st.Images.Mid = usage.Mid
	st.Images.Total = usage.Total
	st.Images.Count = usage.Count
	return st, nil
}

// CleanupAssets deletes assets older than maxAge that no bookmark references.
// Referenced assets are kept regardless of age.
func (s *Service) CleanupAssets(ctx context.Context, maxAge time.Duration) (assetstore.CleanupResult, error) {
	referenced := map[assetstore.Ref]bool{}
	for b := range s.records.Bookmarks.All() {
		if b.ImageKeys.Thumb != "" {
			referenced[assetstore.Ref{Bucket: assetstore.BucketThumb, Name: b.ImageKeys.Thumb}] = true
		}
		if b.ImageKeys.Mid != "" {
			referenced[assetstore.Ref{Bucket: assetstore.BucketMid, Name: b.ImageKeys.Mid}] = true
		}
	}

	cutoff := models.NowMs() - maxAge.Milliseconds()
	res := assetstore.CleanupResult{Success: true}
	for _, bucket := range assetstore.Buckets() {
		files, err := s.assets.List(bucket)
		if err != nil {
			return res, models.WrapError(models.KindIOFailure, "list "+bucket, err)
		}
		for _, f := range files {
			if f.LastModified >= cutoff || referenced[assetstore.Ref{Bucket: bucket, Name: f.Name}] {
				continue
			}
			if _, err := s.assets.Delete(bucket, f.Name); err != nil {
				slog.WarnContext(ctx, "storage: cleanup delete failed", "bucket", bucket, "name", f.Name, "err", err)
				res.Success = false
				continue
			}
			res.Cleaned++
		}
	}
	return res, nil
}

// RecompressLarge re-encodes stored assets that exceed their bucket's size
// budget, overwriting them in place. Files whose encoding would have to
// change format are left alone; only same-format shrinks keep asset names
// stable.
func (s *Service) RecompressLarge(ctx context.Context) (int, error) {
	classes := map[string]imaging.SizeClass{
		assetstore.BucketThumb: imaging.Thumb,
		assetstore.BucketMid:   imaging.Mid,
	}
	recompressed := 0
	for bucket, class := range classes {
		files, err := s.assets.List(bucket)
		if err != nil {
			return recompressed, models.WrapError(models.KindIOFailure, "list "+bucket, err)
		}
		for _, f := range files {
			if f.Size <= int64(class.MaxBytes) {
				continue
			}
			data, err := s.assets.Get(bucket, f.Name)
			if err != nil || data == nil {
				continue
			}
			smaller, ext, err := imaging.Recompress(data, class)
			if err != nil {
				slog.WarnContext(ctx, "storage: recompress failed", "bucket", bucket, "name", f.Name, "err", err)
				continue
			}
			if "."+ext != path.Ext(f.Name) {
				slog.WarnContext(ctx, "storage: recompress would change format, skipping", "bucket", bucket, "name", f.Name)
				continue
			}
			if int64(len(smaller)) >= f.Size {
				continue
			}
			if err := s.assets.Overwrite(bucket, f.Name, smaller); err != nil {
				slog.WarnContext(ctx, "storage: recompress overwrite failed", "bucket", bucket, "name", f.Name, "err", err)
				continue
			}
			recompressed++
		}
	}
	return recompressed, nil
}

// Snapshot returns a consistent copy of all records for export.
func (s *Service) Snapshot() models.ExportSnapshot {
	snap := models.ExportSnapshot{
		Bookmarks:  s.GetBookmarks(models.BookmarkFilters{}),
		Categories: s.GetCategories(),
		Tags:       s.GetTags(),
		ExportedAt: models.NowMs(),
		Version:    SnapshotVersion,
	}
	return snap
}

// Import loads a snapshot into the store. Categories are matched by name and
// created when missing. Bookmarks whose canonical URL already exists are
// skipped; other per-bookmark failures are collected without aborting the
// run. Bookmarks arriving without their assets restart at placeholder and
// are queued for image regeneration.
func (s *Service) Import(ctx context.Context, snap models.ExportSnapshot) (models.ImportResult, error) {
	res := models.ImportResult{}

	categoryIDs := map[jsonldb.ID]jsonldb.ID{}
	for _, c := range snap.Categories {
		if existing := s.records.CategoryByName.Get(strings.ToLower(c.Name)); existing != nil {
			categoryIDs[c.ID] = existing.ID
			continue
		}
		created, err := s.AddCategory(ctx, c.Name, c.Order)
		if err != nil {
			return res, err
		}
		categoryIDs[c.ID] = created.ID
	}

	for _, b := range snap.Bookmarks {
		imported := b.Clone()
		imported.ID = jsonldb.NewID()
		imported.URLCanonical = NormalizeURL(imported.URL)
		imported.Tags = normalizeTags(imported.Tags)
		if mapped, ok := categoryIDs[b.CategoryID]; ok {
			imported.CategoryID = mapped
		} else if s.records.Categories.Get(imported.CategoryID) == nil {
			imported.CategoryID = models.UncategorizedID
		}
		if !s.hasAssets(imported) {
			imported.ImageKeys = models.ImageKeys{}
			imported.ImageStatus = models.ImagePlaceholder
		}
		if err := s.records.AddBookmark(imported); err != nil {
			if models.IsKind(err, models.KindConstraintViolation) {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, models.ImportError{URL: b.URL, Error: err.Error()})
			continue
		}
		s.adjustTagUsage(imported.Tags, nil)
		if imported.ImageStatus == models.ImagePlaceholder {
			s.enqueueImage(ctx, imageTask{
				bookmarkID: imported.ID,
				tab: models.TabData{
					URL:        imported.URL,
					Title:      imported.Title,
					FavIconURL: imported.FavIconURL,
					OGImage:    imported.Metadata.OGImage,
				},
			})
		}
		res.Imported++
	}
	s.commit(ctx, "import snapshot")
	return res, nil
}

// hasAssets reports whether every asset the bookmark references exists.
func (s *Service) hasAssets(b *models.Bookmark) bool {
	if b.ImageKeys.Thumb == "" && b.ImageKeys.Mid == "" {
		return false
	}
	if b.ImageKeys.Thumb != "" {
		if data, err := s.assets.Get(assetstore.BucketThumb, b.ImageKeys.Thumb); err != nil || data == nil {
			return false
		}
	}
	if b.ImageKeys.Mid != "" {
		if data, err := s.assets.Get(assetstore.BucketMid, b.ImageKeys.Mid); err != nil || data == nil {
			return false
		}
	}
	return true
}
