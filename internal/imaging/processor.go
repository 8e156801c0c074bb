package imaging

import (
	"context"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/models"
)

// maxRemoteImageBytes bounds how much of a remote og:image or favicon body is
// read before decoding.
const maxRemoteImageBytes = 10 << 20

// Processor runs the per-bookmark image pipeline and persists variants to the
// asset store. It is safe for concurrent use.
type Processor struct {
	assets  *assetstore.Store
	client  *http.Client
	limiter *rate.Limiter
}

// NewProcessor creates a Processor writing to the given asset store.
//
// Remote fetches (og:image, favicon) are bounded by fetchTimeout and smoothed
// by a small rate limiter so a bulk import does not hammer remote hosts.
func NewProcessor(assets *assetstore.Store, fetchTimeout time.Duration) *Processor {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &Processor{
		assets:  assets,
		client:  &http.Client{Timeout: fetchTimeout},
		limiter: rate.NewLimiter(rate.Limit(4), 8),
	}
}

// ProcessScreenshot decodes a raw page screenshot, produces both size classes,
// persists them, and reports status "real". Any failure anywhere in the path
// yields status "failed" with no keys; errors never propagate.
func (p *Processor) ProcessScreenshot(ctx context.Context, raw []byte, bookmarkID string) Result {
	failed := Result{Status: models.ImageFailed}

	img, err := Decode(raw)
	if err != nil {
		slog.WarnContext(ctx, "Screenshot decode failed", "bookmark", bookmarkID, "err", err)
		return failed
	}

	thumbName, err := p.compressAndSave(img, Thumb, assetstore.BucketThumb, bookmarkID+"_thumb")
	if err != nil {
		slog.WarnContext(ctx, "Thumb compression failed", "bookmark", bookmarkID, "err", err)
		return failed
	}
	midName, err := p.compressAndSave(img, Mid, assetstore.BucketMid, bookmarkID+"_mid")
	if err != nil {
		slog.WarnContext(ctx, "Mid compression failed", "bookmark", bookmarkID, "err", err)
		return failed
	}
	return Result{Thumb: thumbName, Mid: midName, Status: models.ImageReal}
}

// ProcessOGImage fetches a remote og:image, compresses only the thumb class,
// and reports status "provisional". Network or decode failure yields "failed".
func (p *Processor) ProcessOGImage(ctx context.Context, url, bookmarkID string) Result {
	failed := Result{Status: models.ImageFailed}

	raw, err := p.fetch(ctx, url)
	if err != nil {
		slog.WarnContext(ctx, "og:image fetch failed", "bookmark", bookmarkID, "url", url, "err", err)
		return failed
	}
	img, err := Decode(raw)
	if err != nil {
		slog.WarnContext(ctx, "og:image decode failed", "bookmark", bookmarkID, "err", err)
		return failed
	}
	thumbName, err := p.compressAndSave(img, Thumb, assetstore.BucketThumb, bookmarkID+"_og_thumb")
	if err != nil {
		slog.WarnContext(ctx, "og:image compression failed", "bookmark", bookmarkID, "err", err)
		return failed
	}
	return Result{Thumb: thumbName, Status: models.ImageProvisional}
}

// GeneratePlaceholder synthesizes a thumb-class placeholder image from the
// bookmark's title and domain. The favicon overlay is best effort: a fetch or
// decode failure is logged and skipped. Status is "placeholder" by
// construction; this is the only path with no mandatory external I/O.
func (p *Processor) GeneratePlaceholder(ctx context.Context, title, pageURL, favIconURL, bookmarkID string) Result {
	result := Result{Status: models.ImagePlaceholder}

	var favicon []byte
	if favIconURL != "" {
		var err error
		if favicon, err = p.fetch(ctx, favIconURL); err != nil {
			slog.WarnContext(ctx, "Favicon fetch failed, skipping overlay", "url", favIconURL, "err", err)
			favicon = nil
		}
	}

	img := renderPlaceholder(title, pageURL, favicon, Thumb.Width, Thumb.Height)
	name, err := p.save(img, Thumb, assetstore.BucketThumb, bookmarkID+"_placeholder")
	if err != nil {
		slog.WarnContext(ctx, "Placeholder save failed", "bookmark", bookmarkID, "err", err)
		return result
	}
	result.Thumb = name
	return result
}

// compressAndSave runs the resize/compress algorithm for one class and
// persists the result, returning the generated asset name.
func (p *Processor) compressAndSave(img image.Image, class SizeClass, bucket, context string) (string, error) {
	data, ext, err := ResizeAndCompress(img, class)
	if err != nil {
		return "", err
	}
	info, err := p.assets.Save(bucket, context, ext, data)
	if err != nil {
		return "", models.WrapError(models.KindIOFailure, "failed to save asset", err)
	}
	return info.Name, nil
}

// save encodes an already-rendered canvas at the starting quality and persists
// it. Placeholders are synthetic and always fit the budget.
func (p *Processor) save(img image.Image, _ SizeClass, bucket, context string) (string, error) {
	data, err := encodeJPEG(img, startQuality)
	if err != nil {
		return "", err
	}
	info, err := p.assets.Save(bucket, context, primaryExt, data)
	if err != nil {
		return "", models.WrapError(models.KindIOFailure, "failed to save asset", err)
	}
	return info.Name, nil
}

// fetch downloads a remote image with the processor's timeout and rate limit.
// Non-2xx responses are errors; the body read is size-bounded.
func (p *Processor) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, models.WrapError(models.KindIOFailure, "fetch canceled", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, models.WrapError(models.KindValidationFailure, "invalid image url", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "failed to fetch image", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, models.Errorf(models.KindIOFailure, "failed to fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageBytes))
	if err != nil {
		return nil, models.WrapError(models.KindIOFailure, "failed to read image body", err)
	}
	return data, nil
}
