package pagemeta

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bauset/marcador/internal/models"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("NewDocumentFromReader() failed: %v", err)
	}
	return doc
}

func TestExtract(t *testing.T) {
	t.Parallel()

	t.Run("OpenGraph", func(t *testing.T) {
		t.Parallel()
		doc := parseDoc(t, `<html><head>
			<title>Fallback Title</title>
			<meta property="og:title" content=" OG Title ">
			<meta property="og:image" content="https://cdn.example.com/hero.png">
			<meta name="keywords" content="go,bookmarks">
		</head></html>`)
		meta := Extract(doc, "https://example.com/post")
		if meta.OGTitle != "OG Title" {
			t.Errorf("OGTitle = %q", meta.OGTitle)
		}
		if meta.OGImage != "https://cdn.example.com/hero.png" {
			t.Errorf("OGImage = %q", meta.OGImage)
		}
		if meta.Keywords != "go,bookmarks" {
			t.Errorf("Keywords = %q", meta.Keywords)
		}
	})

	t.Run("TitleFallback", func(t *testing.T) {
		t.Parallel()
		doc := parseDoc(t, `<html><head><title>Plain Page</title></head></html>`)
		meta := Extract(doc, "https://example.com/")
		if meta.OGTitle != "Plain Page" {
			t.Errorf("OGTitle = %q, want the <title> text", meta.OGTitle)
		}
		if meta.OGImage != "" {
			t.Errorf("OGImage = %q, want empty", meta.OGImage)
		}
	})

	t.Run("RelativeImageResolved", func(t *testing.T) {
		t.Parallel()
		doc := parseDoc(t, `<html><head>
			<meta property="og:image" content="/img/hero.jpg">
		</head></html>`)
		meta := Extract(doc, "https://example.com/blog/post")
		if meta.OGImage != "https://example.com/img/hero.jpg" {
			t.Errorf("OGImage = %q, want resolved against the page", meta.OGImage)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		doc := parseDoc(t, `<html><body>no head to speak of</body></html>`)
		meta := Extract(doc, "https://example.com/")
		if meta != (models.PageMetadata{}) {
			t.Errorf("meta = %+v, want zero", meta)
		}
	})
}

func TestFetch(t *testing.T) {
	t.Parallel()

	t.Run("OK", func(t *testing.T) {
		t.Parallel()
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head>
				<meta property="og:title" content="Served">
				<meta property="og:image" content="/hero.png">
			</head></html>`))
		}))
		defer ts.Close()

		f := NewFetcher(time.Second)
		meta, err := f.Fetch(t.Context(), ts.URL+"/page")
		if err != nil {
			t.Fatalf("Fetch() failed: %v", err)
		}
		if meta.OGTitle != "Served" {
			t.Errorf("OGTitle = %q", meta.OGTitle)
		}
		if meta.OGImage != ts.URL+"/hero.png" {
			t.Errorf("OGImage = %q", meta.OGImage)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		ts := httptest.NewServer(http.NotFoundHandler())
		defer ts.Close()

		f := NewFetcher(time.Second)
		_, err := f.Fetch(t.Context(), ts.URL)
		if !models.IsKind(err, models.KindIOFailure) {
			t.Errorf("err = %v, want IO failure", err)
		}
	})

	t.Run("BadURL", func(t *testing.T) {
		t.Parallel()
		f := NewFetcher(time.Second)
		_, err := f.Fetch(t.Context(), "http://bad url with spaces")
		if !models.IsKind(err, models.KindValidationFailure) {
			t.Errorf("err = %v, want validation failure", err)
		}
	})
}
