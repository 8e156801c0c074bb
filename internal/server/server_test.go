package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/exporter"
	"github.com/bauset/marcador/internal/imaging"
	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
	"github.com/bauset/marcador/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *assetstore.Store) {
	t.Helper()
	records, err := storage.OpenRecords(t.TempDir())
	if err != nil {
		t.Fatalf("OpenRecords() failed: %v", err)
	}
	assets, err := assetstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("assetstore.New() failed: %v", err)
	}
	svc := storage.NewService(records, assets, imaging.NewProcessor(assets, time.Second), nil, nil)
	t.Cleanup(svc.Close)
	ts := httptest.NewServer(New(svc, assets, nil).Router())
	t.Cleanup(ts.Close)
	return ts, assets
}

// call issues a request and decodes the response envelope.
func call(t *testing.T, ts *httptest.Server, method, path, body string) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s failed: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func errorCode(t *testing.T, env envelope) string {
	t.Helper()
	if env.Success || env.Error == nil {
		t.Fatalf("expected error envelope, got %+v", env)
	}
	return env.Error.Code
}

func dataMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
	m, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want object", env.Data)
	}
	return m
}

func TestBookmarkRoutes(t *testing.T) {
	t.Parallel()

	t.Run("SaveAndGet", func(t *testing.T) {
		t.Parallel()
		ts, _ := newTestServer(t)
		status, env := call(t, ts, http.MethodPost, "/api/bookmarks",
			`{"tabData":{"url":"http://www.example.com/post?utm_source=x","title":"Post","tags":["Go"]}}`)
		if status != http.StatusOK {
			t.Fatalf("save status = %d, env = %+v", status, env)
		}
		saved := dataMap(t, env)
		if saved["urlCanonical"] != "https://example.com/post" {
			t.Errorf("urlCanonical = %v", saved["urlCanonical"])
		}
		id, _ := saved["id"].(string)
		if id == "" {
			t.Fatal("save response missing id")
		}

		status, env = call(t, ts, http.MethodGet, "/api/bookmarks/"+id, "")
		if status != http.StatusOK {
			t.Fatalf("get status = %d", status)
		}
		if got := dataMap(t, env); got["title"] != "Post" {
			t.Errorf("title = %v", got["title"])
		}
	})

	t.Run("SaveWithoutURL", func(t *testing.T) {
		t.Parallel()
		ts, _ := newTestServer(t)
		status, env := call(t, ts, http.MethodPost, "/api/bookmarks", `{"tabData":{"title":"No URL"}}`)
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
		if code := errorCode(t, env); code != string(models.KindValidationFailure) {
			t.Errorf("code = %q", code)
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		t.Parallel()
		ts, _ := newTestServer(t)
		status, env := call(t, ts, http.MethodPost, "/api/bookmarks", `{"tabData":{"url":"https://example.com"},"bogus":1}`)
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
		if code := errorCode(t, env); code != string(models.KindDecodeFailure) {
			t.Errorf("code = %q", code)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		t.Parallel()
		ts, _ := newTestServer(t)
		status, env := call(t, ts, http.MethodGet, "/api/bookmarks/"+jsonldb.NewID().String(), "")
		if status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", status)
		}
		if code := errorCode(t, env); code != string(models.KindNotFound) {
			t.Errorf("code = %q", code)
		}
	})

	t.Run("ListWithQueryFilters", func(t *testing.T) {
		t.Parallel()
		ts, _ := newTestServer(t)
		for _, body := range []string{
			`{"tabData":{"url":"https://example.com/go","title":"Go Post","tags":["go"]}}`,
			`{"tabData":{"url":"https://example.com/web","title":"Web Post","tags":["web"]}}`,
		} {
			if status, env := call(t, ts, http.MethodPost, "/api/bookmarks", body); status != http.StatusOK {
				t.Fatalf("seed failed: %d %+v", status, env)
			}
		}
		status, env := call(t, ts, http.MethodGet, "/api/bookmarks?tags=go&q=post", "")
		if status != http.StatusOK {
			t.Fatalf("list status = %d", status)
		}
		list, ok := env.Data.([]any)
		if !ok || len(list) != 1 {
			t.Fatalf("data = %+v, want one match", env.Data)
		}
	})

	t.Run("DeleteReturnsRecord", func(t *testing.T) {
		t.Parallel()
		ts, _ := newTestServer(t)
		_, env := call(t, ts, http.MethodPost, "/api/bookmarks", `{"tabData":{"url":"https://example.com/del","title":"Del"}}`)
		id := dataMap(t, env)["id"].(string)

		status, env := call(t, ts, http.MethodDelete, "/api/bookmarks/"+id, "")
		if status != http.StatusOK {
			t.Fatalf("delete status = %d", status)
		}
		if got := dataMap(t, env); got["title"] != "Del" {
			t.Errorf("deleted record = %+v", got)
		}
		if status, _ := call(t, ts, http.MethodGet, "/api/bookmarks/"+id, ""); status != http.StatusNotFound {
			t.Errorf("get after delete = %d, want 404", status)
		}
	})
}

func TestCategoryRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	status, env := call(t, ts, http.MethodPost, "/api/categories", `{"name":"Work","order":1}`)
	if status != http.StatusOK {
		t.Fatalf("create status = %d, env = %+v", status, env)
	}
	id := dataMap(t, env)["id"].(string)

	status, env = call(t, ts, http.MethodPost, "/api/categories", `{"name":"work"}`)
	if status != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", status)
	}
	if code := errorCode(t, env); code != string(models.KindConstraintViolation) {
		t.Errorf("code = %q", code)
	}

	status, env = call(t, ts, http.MethodPatch, "/api/categories/"+id, `{"name":"Projects"}`)
	if status != http.StatusOK {
		t.Fatalf("rename status = %d, env = %+v", status, env)
	}
	if got := dataMap(t, env); got["name"] != "Projects" {
		t.Errorf("name = %v", got["name"])
	}

	status, _ = call(t, ts, http.MethodDelete, "/api/categories/"+id, "")
	if status != http.StatusOK {
		t.Errorf("delete status = %d", status)
	}
}

func TestSettingsRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	if status, env := call(t, ts, http.MethodPut, "/api/settings", `{"key":"theme","value":"dark"}`); status != http.StatusOK {
		t.Fatalf("put status = %d, env = %+v", status, env)
	}
	status, env := call(t, ts, http.MethodGet, "/api/settings", "")
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	if got := dataMap(t, env); got["theme"] != "dark" {
		t.Errorf("settings = %+v", got)
	}
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	status, env := call(t, ts, http.MethodGet, "/api/history", "")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if code := errorCode(t, env); code != string(models.KindNotFound) {
		t.Errorf("code = %q", code)
	}
}

func TestServeAsset(t *testing.T) {
	t.Parallel()

	ts, assets := newTestServer(t)
	if err := assets.Overwrite(assetstore.BucketThumb, "img_x_1.jpg", []byte("jpeg-ish")); err != nil {
		t.Fatalf("Overwrite() failed: %v", err)
	}

	resp, err := ts.Client().Get(ts.URL + "/assets/thumb/img_x_1.jpg")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "jpeg-ish" {
		t.Errorf("asset fetch = %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("Cache-Control = %q", cc)
	}

	if status, env := call(t, ts, http.MethodGet, "/assets/thumb/img_missing.jpg", ""); status != http.StatusNotFound {
		t.Errorf("missing asset = %d %+v", status, env)
	}
	if status, _ := call(t, ts, http.MethodGet, "/assets/secrets/passwd", ""); status != http.StatusNotFound {
		t.Errorf("unknown bucket = %d", status)
	}
}

func TestExportImport(t *testing.T) {
	t.Parallel()

	src, _ := newTestServer(t)
	if status, env := call(t, src, http.MethodPost, "/api/bookmarks", `{"tabData":{"url":"https://example.com/exp","title":"Exported"}}`); status != http.StatusOK {
		t.Fatalf("seed failed: %d %+v", status, env)
	}

	resp, err := src.Client().Get(src.URL + "/api/export")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "marcador-export-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	snap, err := exporter.ReadJSON(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("export payload unreadable: %v", err)
	}
	if len(snap.Bookmarks) != 1 {
		t.Fatalf("exported %d bookmarks, want 1", len(snap.Bookmarks))
	}

	dst, _ := newTestServer(t)
	status, env := call(t, dst, http.MethodPost, "/api/import", string(raw))
	if status != http.StatusOK {
		t.Fatalf("import status = %d, env = %+v", status, env)
	}
	res := dataMap(t, env)
	if res["imported"] != float64(1) {
		t.Errorf("import result = %+v", res)
	}
}
