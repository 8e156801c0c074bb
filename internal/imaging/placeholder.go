package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"net/url"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placeholder palette, matching the gradient and text colors of the rendered
// fallback card.
var (
	gradientFrom = color.RGBA{R: 0x66, G: 0x7E, B: 0xEA, A: 0xFF}
	gradientTo   = color.RGBA{R: 0x76, G: 0x4B, B: 0xA2, A: 0xFF}
	// 70% black band behind the text.
	bandFill        = color.RGBA{A: 179}
	domainTextColor = color.RGBA{R: 0xCC, G: 0xCC, B: 0xCC, A: 0xFF}
)

// renderPlaceholder draws the deterministic fallback card: a diagonal
// two-color gradient, an optional favicon overlay, and the truncated title
// plus domain over a dark band.
func renderPlaceholder(title, pageURL string, favicon []byte, w, h int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))

	// Diagonal gradient from top-left to bottom-right.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := (float64(x)/float64(w) + float64(y)/float64(h)) / 2
			canvas.SetRGBA(x, y, lerpRGBA(gradientFrom, gradientTo, t))
		}
	}

	if len(favicon) > 0 {
		if icon, err := Decode(favicon); err == nil {
			size := w / 5
			if size > 64 {
				size = 64
			}
			offX := (w - size) / 2
			offY := int(float64(h) * 0.3)
			target := image.Rect(offX, offY, offX+size, offY+size)
			xdraw.ApproxBiLinear.Scale(canvas, target, icon, icon.Bounds(), xdraw.Over, nil)
		}
	}

	// Dark band over the bottom 40% carries the text.
	bandTop := int(float64(h) * 0.6)
	draw.Draw(canvas, image.Rect(0, bandTop, w, h), image.NewUniform(bandFill), image.Point{}, draw.Over)

	drawCenteredText(canvas, truncateTitle(title), color.White, int(float64(h)*0.75))
	drawCenteredText(canvas, domainOf(pageURL), domainTextColor, int(float64(h)*0.85))
	return canvas
}

// truncateTitle enforces the fixed character budget with an ellipsis.
func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleCharBudget {
		return title
	}
	return string(runes[:titleCharBudget]) + "..."
}

// domainOf extracts the host for display, without a leading www.
func domainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func drawCenteredText(dst *image.RGBA, s string, c color.Color, baselineY int) {
	if s == "" {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(s).Ceil()
	x := (dst.Bounds().Dx() - width) / 2
	if x < 0 {
		x = 0
	}
	d.Dot = fixed.P(x, baselineY)
	d.DrawString(s)
}

func lerpRGBA(a, b color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(a.R) + (float64(b.R)-float64(a.R))*t),
		G: uint8(float64(a.G) + (float64(b.G)-float64(a.G))*t),
		B: uint8(float64(a.B) + (float64(b.B)-float64(a.B))*t),
		A: 0xFF,
	}
}
