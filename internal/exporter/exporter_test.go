package exporter

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/jsonldb"
	"github.com/bauset/marcador/internal/models"
)

func testSnapshot(thumb, mid string) models.ExportSnapshot {
	now := models.NowMs()
	return models.ExportSnapshot{
		Bookmarks: []*models.Bookmark{
			{
				ID: jsonldb.NewID(), URL: "https://example.com/a", URLCanonical: "https://example.com/a",
				Title: "A", CategoryID: models.UncategorizedID,
				ImageKeys:   models.ImageKeys{Thumb: thumb, Mid: mid},
				ImageStatus: models.ImageReal,
				CreatedAt:   now, UpdatedAt: now,
			},
		},
		Categories: []*models.Category{
			{ID: models.UncategorizedID, Name: "uncategorized", CreatedAt: now, UpdatedAt: now},
		},
		Tags:       []*models.Tag{},
		ExportedAt: now,
		Version:    "2.0",
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	snap := testSnapshot("img_a_1.jpg", "img_a_2.jpg")

	var buf bytes.Buffer
	if err := WriteJSON(&buf, snap); err != nil {
		t.Fatalf("WriteJSON() failed: %v", err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}
	if len(got.Bookmarks) != 1 || got.Bookmarks[0].ID != snap.Bookmarks[0].ID {
		t.Errorf("bookmarks = %+v", got.Bookmarks)
	}
	if got.Version != snap.Version || got.ExportedAt != snap.ExportedAt {
		t.Errorf("header = %q %d", got.Version, got.ExportedAt)
	}
}

func TestReadJSONGarbage(t *testing.T) {
	t.Parallel()
	_, err := ReadJSON(strings.NewReader("{not json"))
	if !models.IsKind(err, models.KindDecodeFailure) {
		t.Errorf("err = %v, want decode failure", err)
	}
}

func TestZipRoundTrip(t *testing.T) {
	t.Parallel()
	src, err := assetstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("assetstore.New() failed: %v", err)
	}
	if err := src.Overwrite(assetstore.BucketThumb, "img_a_1.jpg", []byte("thumb-bytes")); err != nil {
		t.Fatalf("Overwrite() failed: %v", err)
	}
	if err := src.Overwrite(assetstore.BucketMid, "img_a_2.jpg", []byte("mid-bytes")); err != nil {
		t.Fatalf("Overwrite() failed: %v", err)
	}
	snap := testSnapshot("img_a_1.jpg", "img_a_2.jpg")

	var buf bytes.Buffer
	if err := WriteZip(&buf, snap, src); err != nil {
		t.Fatalf("WriteZip() failed: %v", err)
	}

	dst, err := assetstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("assetstore.New() failed: %v", err)
	}
	got, err := ReadZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dst)
	if err != nil {
		t.Fatalf("ReadZip() failed: %v", err)
	}
	if len(got.Bookmarks) != 1 || got.Bookmarks[0].URLCanonical != "https://example.com/a" {
		t.Errorf("bookmarks = %+v", got.Bookmarks)
	}
	data, err := dst.Get(assetstore.BucketThumb, "img_a_1.jpg")
	if err != nil || string(data) != "thumb-bytes" {
		t.Errorf("restored thumb = %q, %v", data, err)
	}
	data, err = dst.Get(assetstore.BucketMid, "img_a_2.jpg")
	if err != nil || string(data) != "mid-bytes" {
		t.Errorf("restored mid = %q, %v", data, err)
	}
}

func TestWriteZipSkipsMissingAsset(t *testing.T) {
	t.Parallel()
	src, err := assetstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("assetstore.New() failed: %v", err)
	}
	snap := testSnapshot("img_gone.jpg", "")

	var buf bytes.Buffer
	if err := WriteZip(&buf, snap, src); err != nil {
		t.Fatalf("WriteZip() failed: %v", err)
	}
	dst, err := assetstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("assetstore.New() failed: %v", err)
	}
	if _, err := ReadZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dst); err != nil {
		t.Fatalf("ReadZip() failed: %v", err)
	}
	if data, _ := dst.Get(assetstore.BucketThumb, "img_gone.jpg"); data != nil {
		t.Error("phantom asset appeared in archive")
	}
}

func TestReadZipNoSnapshot(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("thumb/img_stray.jpg")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := f.Write([]byte("stray")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	dst, err := assetstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("assetstore.New() failed: %v", err)
	}
	_, err = ReadZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dst)
	if !models.IsKind(err, models.KindValidationFailure) {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestReadZipNotAnArchive(t *testing.T) {
	t.Parallel()
	data := []byte("definitely not a zip")
	_, err := ReadZip(bytes.NewReader(data), int64(len(data)), nil)
	if !models.IsKind(err, models.KindDecodeFailure) {
		t.Errorf("err = %v, want decode failure", err)
	}
}
