// Package exporter serializes snapshots for backup and restore. The JSON
// form carries records only; the zip form bundles the image assets next to
// the records so a restore does not have to regenerate them.
package exporter

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/models"
)

// snapshotEntry is the zip member holding the records.
const snapshotEntry = "bookmarks.json"

// AssetReader is the view of the asset store an export needs.
type AssetReader interface {
	Get(bucket, name string) ([]byte, error)
}

// AssetWriter is the view of the asset store a restore needs.
type AssetWriter interface {
	Overwrite(bucket, name string, data []byte) error
}

// WriteJSON writes the snapshot as indented JSON.
func WriteJSON(w io.Writer, snap models.ExportSnapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// ReadJSON parses a snapshot produced by WriteJSON.
func ReadJSON(r io.Reader) (models.ExportSnapshot, error) {
	var snap models.ExportSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return snap, models.WrapError(models.KindDecodeFailure, "failed to decode snapshot", err)
	}
	return snap, nil
}

// WriteZip writes the snapshot plus every referenced asset. Assets are laid
// out under their bucket names, so the archive mirrors the on-disk store.
// A missing asset is logged and skipped; the restore side regenerates images
// for bookmarks whose files did not make it.
func WriteZip(w io.Writer, snap models.ExportSnapshot, assets AssetReader) error {
	zw := zip.NewWriter(w)

	f, err := zw.Create(snapshotEntry)
	if err != nil {
		return fmt.Errorf("failed to create snapshot entry: %w", err)
	}
	if err := WriteJSON(f, snap); err != nil {
		return err
	}

	written := map[string]bool{}
	for _, b := range snap.Bookmarks {
		refs := []assetstore.Ref{
			{Bucket: assetstore.BucketThumb, Name: b.ImageKeys.Thumb},
			{Bucket: assetstore.BucketMid, Name: b.ImageKeys.Mid},
		}
		for _, ref := range refs {
			if ref.Name == "" {
				continue
			}
			entry := path.Join(ref.Bucket, ref.Name)
			if written[entry] {
				continue
			}
			data, err := assets.Get(ref.Bucket, ref.Name)
			if err != nil {
				return fmt.Errorf("failed to read asset %s: %w", entry, err)
			}
			if data == nil {
				slog.Warn("exporter: referenced asset missing, skipping", "entry", entry)
				continue
			}
			f, err := zw.Create(entry)
			if err != nil {
				return fmt.Errorf("failed to create asset entry: %w", err)
			}
			if _, err := f.Write(data); err != nil {
				return fmt.Errorf("failed to write asset entry: %w", err)
			}
			written[entry] = true
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// ReadZip parses an archive produced by WriteZip, restoring its assets into
// the store and returning the snapshot for record import. Entries outside the
// known buckets are ignored.
func ReadZip(r io.ReaderAt, size int64, assets AssetWriter) (models.ExportSnapshot, error) {
	var snap models.ExportSnapshot
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return snap, models.WrapError(models.KindDecodeFailure, "failed to open archive", err)
	}

	found := false
	for _, f := range zr.File {
		switch {
		case f.Name == snapshotEntry:
			rc, err := f.Open()
			if err != nil {
				return snap, models.WrapError(models.KindDecodeFailure, "failed to open snapshot entry", err)
			}
			snap, err = ReadJSON(rc)
			_ = rc.Close()
			if err != nil {
				return snap, err
			}
			found = true
		case isAssetEntry(f.Name):
			bucket, name := path.Split(f.Name)
			rc, err := f.Open()
			if err != nil {
				return snap, models.WrapError(models.KindDecodeFailure, "failed to open asset entry", err)
			}
			data, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return snap, models.WrapError(models.KindDecodeFailure, "failed to read asset entry", err)
			}
			if err := assets.Overwrite(path.Clean(bucket), name, data); err != nil {
				return snap, models.WrapError(models.KindIOFailure, "failed to restore asset", err)
			}
		}
	}
	if !found {
		return snap, models.NewError(models.KindValidationFailure, "archive has no "+snapshotEntry)
	}
	return snap, nil
}

func isAssetEntry(name string) bool {
	dir, file := path.Split(name)
	if file == "" {
		return false
	}
	dir = path.Clean(dir)
	for _, bucket := range assetstore.Buckets() {
		if dir == bucket {
			return true
		}
	}
	return false
}
