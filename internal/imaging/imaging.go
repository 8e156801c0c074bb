// Package imaging implements the image ingestion pipeline: decode, letterboxed
// resize, quality-ladder compression under per-bucket byte budgets, remote
// og:image acquisition, and placeholder synthesis.
//
// The pipeline never lets a decode or encode error escape to the orchestrator;
// every processing entry point returns a Result whose Status reflects what
// happened.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	xdraw "golang.org/x/image/draw"

	// Screenshot and og:image payloads arrive as PNG, JPEG, GIF or WebP.
	_ "image/gif"

	_ "golang.org/x/image/webp"

	"github.com/bauset/marcador/internal/models"
)

// SizeClass is a target geometry plus byte budget for one asset bucket.
type SizeClass struct {
	Width    int
	Height   int
	MaxBytes int
}

// The two size classes produced by the pipeline. Thumb has a tight budget,
// mid a looser one.
var (
	Thumb = SizeClass{Width: 320, Height: 180, MaxBytes: 60 * 1024}
	Mid   = SizeClass{Width: 720, Height: 405, MaxBytes: 150 * 1024}
)

const (
	startQuality    = 80
	qualityFloor    = 30
	qualityStep     = 10
	maxAttempts     = 5
	fallbackExt     = "png"
	primaryExt      = "jpg"
	titleCharBudget = 30
)

// letterboxFill is the neutral background behind fitted images.
var letterboxFill = color.RGBA{R: 0xF5, G: 0xF5, B: 0xF5, A: 0xFF}

// Result reports one pipeline run for a bookmark: the asset file names that
// were written (empty when absent) and the resulting image status.
type Result struct {
	Thumb  string
	Mid    string
	Status models.ImageStatus
}

// Decode parses image bytes in any supported format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, models.WrapError(models.KindDecodeFailure, "failed to decode image", err)
	}
	return img, nil
}

// DecodeDataURL strips an optional "data:image/...;base64," prefix and decodes
// the base64 payload. Raw base64 without the prefix is accepted too.
func DecodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		_, after, ok := strings.Cut(s, ",")
		if !ok {
			return nil, models.NewError(models.KindDecodeFailure, "malformed data URL")
		}
		s = after
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, models.WrapError(models.KindDecodeFailure, "failed to decode base64 image", err)
	}
	return data, nil
}

// ResizeAndCompress fits src onto a class.Width x class.Height canvas
// (letterboxed, aspect preserved) and encodes it under the class byte budget.
//
// Encoding starts as JPEG at quality 80 and steps the quality down to a floor
// of 30 over at most 5 retries. If the result is still over budget the image
// falls back to PNG, accepting that the budget becomes a target rather than a
// hard bound at that point. The returned extension identifies the encoding.
func ResizeAndCompress(src image.Image, class SizeClass) (data []byte, ext string, err error) {
	canvas := renderFitted(src, class.Width, class.Height)

	quality := startQuality
	data, err = encodeJPEG(canvas, quality)
	if err != nil {
		return nil, "", err
	}
	for attempts := 0; len(data) > class.MaxBytes && quality > qualityFloor && attempts < maxAttempts; attempts++ {
		quality -= qualityStep
		data, err = encodeJPEG(canvas, quality)
		if err != nil {
			return nil, "", err
		}
	}
	if len(data) > class.MaxBytes {
		data, err = encodePNG(canvas)
		if err != nil {
			return nil, "", err
		}
		return data, fallbackExt, nil
	}
	return data, primaryExt, nil
}

// renderFitted scales src to fit (w, h) preserving aspect ratio and centers it
// on a letterbox canvas.
func renderFitted(src image.Image, w, h int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(letterboxFill), image.Point{}, draw.Src)

	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return canvas
	}
	scale := min(float64(w)/float64(sb.Dx()), float64(h)/float64(sb.Dy()))
	sw := int(float64(sb.Dx()) * scale)
	sh := int(float64(sb.Dy()) * scale)
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	offX := (w - sw) / 2
	offY := (h - sh) / 2
	target := image.Rect(offX, offY, offX+sw, offY+sh)
	xdraw.CatmullRom.Scale(canvas, target, src, sb, xdraw.Over, nil)
	return canvas
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Recompress re-decodes stored asset bytes and re-runs the quality ladder for
// the class. Used by the maintenance sweep; the caller only rewrites the asset
// when the new encoding is strictly smaller.
func Recompress(stored []byte, class SizeClass) ([]byte, string, error) {
	img, err := Decode(stored)
	if err != nil {
		return nil, "", err
	}
	return ResizeAndCompress(img, class)
}
