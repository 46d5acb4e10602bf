package cardrender

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
)

//go:embed assets/background.svg
var backgroundSVG []byte

var labelFace font.Face = inconsolata.Bold8x16

var (
	bgOnce sync.Once
	bgImg  *image.RGBA
	bgErr  error
)

func background() (image.Image, error) {
	bgOnce.Do(func() {
		bgImg, bgErr = rasterizeSVG(backgroundSVG, cardWidth, cardHeight)
	})
	return bgImg, bgErr
}

func rasterizeSVG(data []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

// sanitizeSVG removes the spaces after "fill:" style declarations that oksvg
// fails to parse.
func sanitizeSVG(svg []byte) []byte {
	out := bytes.ReplaceAll(svg, []byte("fill: #"), []byte("fill:#"))
	out = bytes.ReplaceAll(out, []byte("stroke: #"), []byte("stroke:#"))
	return bytes.ReplaceAll(out, []byte("stop-color: #"), []byte("stop-color:#"))
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	radius = min(max(radius, 0), rect.Dx()/2, rect.Dy()/2)

	mask := image.NewAlpha(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if insideRounded(x, y, rect, radius) {
				mask.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	imagedraw.DrawMask(img, rect, image.NewUniform(clr), image.Point{}, mask, rect.Min, imagedraw.Over)
}

func insideRounded(x, y int, r image.Rectangle, radius int) bool {
	cx := min(max(x, r.Min.X+radius), r.Max.X-1-radius)
	cy := min(max(y, r.Min.Y+radius), r.Max.Y-1-radius)
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= radius*radius
}

// drawLabel centers text in rect, scaling the bitmap face up by at most scale
// and shrinking or truncating it until it fits.
func drawLabel(dst *image.RGBA, rect image.Rectangle, text string, scale int, clr color.Color) {
	text = strings.TrimSpace(text)
	if dst == nil || text == "" || rect.Empty() {
		return
	}
	scale = max(scale, 1)
	for scale > 1 && measure(labelFace, text)*scale > rect.Dx() {
		scale--
	}
	text = truncateWithEllipsis(labelFace, text, rect.Dx()/scale)

	m := labelFace.Metrics()
	w, h := measure(labelFace, text), (m.Ascent + m.Descent).Ceil()
	if w <= 0 || h <= 0 {
		return
	}
	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{Dst: glyphs, Src: image.NewUniform(clr), Face: labelFace, Dot: fixed.P(0, m.Ascent.Ceil())}
	d.DrawString(text)

	sw, sh := w*scale, h*scale
	x := rect.Min.X + (rect.Dx()-sw)/2
	y := rect.Min.Y + (rect.Dy()-sh)/2
	xdraw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+sw, y+sh), glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

func measure(face font.Face, text string) int {
	return font.MeasureString(face, text).Round()
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}
	if measure(face, trimmed) <= maxWidth {
		return trimmed
	}
	const ellipsis = "..."
	if measure(face, ellipsis) > maxWidth {
		return ""
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if candidate := string(runes) + ellipsis; measure(face, candidate) <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}
