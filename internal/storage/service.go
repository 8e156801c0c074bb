package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/imaging"
	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

// taskTimeout bounds one background image job, including remote fetches.
const taskTimeout = 60 * time.Second

// MetadataFetcher retrieves page metadata for a URL. Used by the background
// worker when the capture surface supplied no og:image.
type MetadataFetcher interface {
	Fetch(ctx context.Context, pageURL string) (models.PageMetadata, error)
}

// Historian records a snapshot of the data directory after a mutation.
// Commit failures are logged, never surfaced to the caller.
type Historian interface {
	Commit(ctx context.Context, message string) error
}

type imageTask struct {
	bookmarkID jsonldb.ID
	screenshot []byte
	tab        models.TabData
}

// Service orchestrates bookmark operations across the record store, the
// asset store and the image pipeline.
//
// Mutating operations persist synchronously; image work runs on a single
// background worker so saves return immediately with a placeholder status.
type Service struct {
	records *Records
	assets  *assetstore.Store
	images  *imaging.Processor
	meta    MetadataFetcher
	history Historian

	tasks   chan imageTask
	queueMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// NewService starts the background image worker. meta and history may be nil.
// Call Close to drain the worker before process exit.
func NewService(records *Records, assets *assetstore.Store, images *imaging.Processor, meta MetadataFetcher, history Historian) *Service {
	s := &Service{
		records: records,
		assets:  assets,
		images:  images,
		meta:    meta,
		history: history,
		tasks:   make(chan imageTask, 64),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Close stops accepting image work and waits for queued jobs to finish.
// Safe to call more than once.
func (s *Service) Close() {
	s.queueMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.tasks)
	}
	s.queueMu.Unlock()
	s.wg.Wait()
}

// enqueueImage hands a job to the background worker. Jobs arriving after Close
// or while the queue is full are dropped with a log line; the bookmark keeps
// its placeholder status and can be retried through recapture.
func (s *Service) enqueueImage(ctx context.Context, task imageTask) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.closed {
		slog.WarnContext(ctx, "storage: image queue closed, dropping job", "bookmark", task.bookmarkID)
		return
	}
	select {
	case s.tasks <- task:
	default:
		slog.WarnContext(ctx, "storage: image queue full, dropping job", "bookmark", task.bookmarkID)
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for task := range s.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		s.processTask(ctx, task)
		cancel()
	}
}

// SaveBookmark persists the bookmark immediately with a placeholder image
// status and queues image acquisition in the background.
//
// If a bookmark with the same canonical URL already exists, that bookmark is
// returned and nothing new is created.
func (s *Service) SaveBookmark(ctx context.Context, tab models.TabData, screenshot []byte) (*models.Bookmark, error) {
	if tab.URL == "" {
		return nil, models.NewError(models.KindValidationFailure, "url is required")
	}
	canonical := NormalizeURL(tab.URL)
	if existing := s.records.BookmarkByCanonical.Get(canonical); existing != nil {
		return existing, nil
	}

	title := tab.Title
	if title == "" {
		title = tab.OGTitle
	}
	if title == "" {
		title = tab.URL
	}
	categoryID := tab.CategoryID
	if categoryID.IsZero() || s.records.Categories.Get(categoryID) == nil {
		categoryID = models.UncategorizedID
	}
	tags := normalizeTags(tab.Tags)

	now := models.NowMs()
	b := &models.Bookmark{
		ID:           jsonldb.NewID(),
		URL:          tab.URL,
		URLCanonical: canonical,
		Title:        title,
		Description:  tab.Description,
		FavIconURL:   tab.FavIconURL,
		CategoryID:   categoryID,
		Tags:         tags,
		ImageStatus:  models.ImagePlaceholder,
		Metadata: models.PageMetadata{
			OGTitle:  tab.OGTitle,
			OGImage:  tab.OGImage,
			Keywords: tab.Keywords,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.records.AddBookmark(b); err != nil {
		if models.IsKind(err, models.KindConstraintViolation) {
			// Lost the race to another writer. The winner's record is what
			// the caller wants.
			if existing := s.records.BookmarkByCanonical.Get(canonical); existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	s.adjustTagUsage(tags, nil)

	s.enqueueImage(ctx, imageTask{bookmarkID: b.ID, screenshot: screenshot, tab: tab})
	s.commit(ctx, "save bookmark "+canonical)
	return b, nil
}

// processTask acquires an image for the bookmark and merges the result back
// into the record. Source priority: screenshot, then og:image, then a
// synthesized placeholder card.
func (s *Service) processTask(ctx context.Context, task imageTask) {
	b := s.records.Bookmarks.Get(task.bookmarkID)
	if b == nil {
		// Deleted before the worker got to it.
		return
	}

	tab := task.tab
	var fetched *models.PageMetadata
	if len(task.screenshot) == 0 && tab.OGImage == "" && s.meta != nil {
		meta, err := s.meta.Fetch(ctx, b.URL)
		if err != nil {
			slog.WarnContext(ctx, "storage: page metadata fetch failed", "url", b.URL, "err", err)
		} else {
			fetched = &meta
			tab.OGImage = meta.OGImage
		}
	}

	var res imaging.Result
	switch {
	case len(task.screenshot) > 0:
		res = s.images.ProcessScreenshot(ctx, task.screenshot, b.ID.String())
	case tab.OGImage != "":
		// A dead og:image ends at failed with no keys. The placeholder card is
		// only for bookmarks that never named an image source.
		res = s.images.ProcessOGImage(ctx, tab.OGImage, b.ID.String())
	default:
		res = s.images.GeneratePlaceholder(ctx, b.Title, b.URL, b.FavIconURL, b.ID.String())
	}

	s.mergeImageResult(ctx, task.bookmarkID, res, fetched)
}

// mergeImageResult folds an image pipeline result into the bookmark as a
// field-level merge, so user edits made while the job ran are preserved.
// Assets the new result replaces are deleted afterwards.
func (s *Service) mergeImageResult(ctx context.Context, id jsonldb.ID, res imaging.Result, fetched *models.PageMetadata) {
	var replaced []assetstore.Ref
	curr, found, err := s.records.Bookmarks.Update(id, func(b *models.Bookmark) error {
		replaced = replaced[:0]
		if res.Thumb != "" && b.ImageKeys.Thumb != "" && b.ImageKeys.Thumb != res.Thumb {
			replaced = append(replaced, assetstore.Ref{Bucket: assetstore.BucketThumb, Name: b.ImageKeys.Thumb})
		}
		if res.Mid != "" && b.ImageKeys.Mid != "" && b.ImageKeys.Mid != res.Mid {
			replaced = append(replaced, assetstore.Ref{Bucket: assetstore.BucketMid, Name: b.ImageKeys.Mid})
		}
		if res.Thumb != "" {
			b.ImageKeys.Thumb = res.Thumb
		}
		if res.Mid != "" {
			b.ImageKeys.Mid = res.Mid
		}
		b.ImageStatus = res.Status
		if fetched != nil {
			if fetched.OGTitle != "" {
				b.Metadata.OGTitle = fetched.OGTitle
			}
			if fetched.OGImage != "" {
				b.Metadata.OGImage = fetched.OGImage
			}
			if fetched.Keywords != "" {
				b.Metadata.Keywords = fetched.Keywords
			}
		}
		b.UpdatedAt = models.NowMs()
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "storage: image result merge failed", "bookmark", id, "err", err)
		return
	}
	if !found {
		// Bookmark was deleted mid-flight. The freshly written assets are now
		// orphans; remove them.
		s.deleteAssets(ctx, id, res.Thumb, res.Mid)
		return
	}
	for _, ref := range replaced {
		if _, err := s.assets.Delete(ref.Bucket, ref.Name); err != nil {
			slog.WarnContext(ctx, "storage: replaced asset delete failed", "bucket", ref.Bucket, "name", ref.Name, "err", err)
		}
	}
	s.commit(ctx, "image update "+curr.URLCanonical)
}

// deleteAssets removes the thumb and mid files for a bookmark. Failures are
// logged only; record deletion must never be blocked by asset cleanup.
func (s *Service) deleteAssets(ctx context.Context, id jsonldb.ID, thumb, mid string) {
	if thumb != "" {
		if _, err := s.assets.Delete(assetstore.BucketThumb, thumb); err != nil {
			slog.WarnContext(ctx, "storage: asset delete failed", "bookmark", id, "name", thumb, "err", err)
		}
	}
	if mid != "" {
		if _, err := s.assets.Delete(assetstore.BucketMid, mid); err != nil {
			slog.WarnContext(ctx, "storage: asset delete failed", "bookmark", id, "name", mid, "err", err)
		}
	}
}

func (s *Service) commit(ctx context.Context, message string) {
	if s.history == nil {
		return
	}
	if err := s.history.Commit(ctx, message); err != nil {
		slog.WarnContext(ctx, "storage: history commit failed", "err", err)
	}
}
