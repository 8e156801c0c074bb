// Package pagemeta scrapes Open Graph and meta tags from bookmarked pages.
//
// Used by the bookmark service when the capture surface supplied no page
// metadata, typically on import or when saving from a context without a
// content script.
package pagemeta

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/bauset/marcador/internal/models"
)

// maxBodyBytes caps how much HTML is read per page.
const maxBodyBytes = 2 << 20

// Fetcher retrieves page metadata over HTTP. Requests are rate limited so a
// bulk import does not hammer remote sites.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher creates a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(2, 4),
	}
}

// Fetch downloads the page and extracts og:title, og:image and keywords.
// A relative og:image URL is resolved against the page URL.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (models.PageMetadata, error) {
	var meta models.PageMetadata
	if err := f.limiter.Wait(ctx); err != nil {
		return meta, models.WrapError(models.KindIOFailure, "fetch canceled", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return meta, models.WrapError(models.KindValidationFailure, "invalid page url", err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := f.client.Do(req)
	if err != nil {
		return meta, models.WrapError(models.KindIOFailure, "failed to fetch page", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return meta, models.Errorf(models.KindIOFailure, "fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return meta, models.WrapError(models.KindDecodeFailure, "failed to parse page", err)
	}
	meta = Extract(doc, pageURL)
	return meta, nil
}

// Extract pulls metadata out of a parsed document. Split from Fetch so tests
// can feed documents directly.
func Extract(doc *goquery.Document, pageURL string) models.PageMetadata {
	var meta models.PageMetadata
	meta.OGTitle = metaContent(doc, `meta[property="og:title"]`)
	if meta.OGTitle == "" {
		meta.OGTitle = strings.TrimSpace(doc.Find("title").First().Text())
	}
	meta.OGImage = resolveURL(pageURL, metaContent(doc, `meta[property="og:image"]`))
	meta.Keywords = metaContent(doc, `meta[name="keywords"]`)
	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
