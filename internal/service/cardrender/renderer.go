package cardrender

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"
)

// Card is what one pair image shows. When Champion is set the two choices are
// replaced by a single winner panel.
type Card struct {
	Title    string
	Left     string
	Right    string
	Champion string
	Footer   string
}

type Renderer interface {
	RenderPNG(ctx context.Context, card Card) ([]byte, error)
}

type pngRenderer struct{}

func NewRenderer() Renderer { return &pngRenderer{} }

const (
	cardWidth   = 720
	cardHeight  = 400
	panelRadius = 14
)

var (
	titleRect    = image.Rect(40, 22, 680, 70)
	leftRect     = image.Rect(40, 110, 316, 330)
	rightRect    = image.Rect(404, 110, 680, 330)
	championRect = image.Rect(120, 110, 600, 330)
	vsRect       = image.Rect(320, 200, 400, 240)
	footerRect   = image.Rect(40, 346, 680, 386)
)

var (
	panelColor       = color.NRGBA{R: 40, G: 44, B: 66, A: 250}
	panelShadowColor = color.NRGBA{0, 0, 0, 60}
	championColor    = color.NRGBA{R: 62, G: 52, B: 24, A: 250}
	badgeColor       = color.NRGBA{R: 242, G: 193, B: 78, A: 255}
	textPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	textSecondary    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	textOnBadge      = color.NRGBA{R: 28, G: 31, B: 46, A: 255}
)

func (r *pngRenderer) RenderPNG(ctx context.Context, card Card) ([]byte, error) {
	if card.Champion == "" && (strings.TrimSpace(card.Left) == "" || strings.TrimSpace(card.Right) == "") {
		return nil, fmt.Errorf("card needs two labels or a champion")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bg, err := background()
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	imagedraw.Draw(img, img.Bounds(), bg, image.Point{}, imagedraw.Src)

	title := strings.TrimSpace(card.Title)
	if title == "" {
		title = "Keep 1, Leave 1"
	}
	drawRoundedPanel(img, titleRect, panelRadius, panelColor)
	drawLabel(img, titleRect.Inset(12), title, 2, textPrimary)

	if card.Champion != "" {
		drawPanelWithShadow(img, championRect, championColor)
		inner := championRect.Inset(20)
		drawLabel(img, image.Rect(inner.Min.X, inner.Min.Y, inner.Max.X, inner.Min.Y+40), "CHAMPION", 2, badgeColor)
		drawLabel(img, image.Rect(inner.Min.X, inner.Min.Y+40, inner.Max.X, inner.Max.Y), card.Champion, 4, textPrimary)
	} else {
		drawChoice(img, leftRect, "1", card.Left)
		drawChoice(img, rightRect, "2", card.Right)
		drawRoundedPanel(img, vsRect, 12, badgeColor)
		drawLabel(img, vsRect, "VS", 2, textOnBadge)
	}

	if footer := strings.TrimSpace(card.Footer); footer != "" {
		drawLabel(img, footerRect, footer, 2, textSecondary)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderBase64 is RenderPNG encoded for the bridge's image replies.
func RenderBase64(ctx context.Context, r Renderer, card Card) (string, error) {
	b, err := r.RenderPNG(ctx, card)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func drawChoice(img *image.RGBA, rect image.Rectangle, badge, label string) {
	drawPanelWithShadow(img, rect, panelColor)
	badgeRect := image.Rect(rect.Min.X+14, rect.Min.Y+14, rect.Min.X+54, rect.Min.Y+54)
	drawRoundedPanel(img, badgeRect, 10, badgeColor)
	drawLabel(img, badgeRect, badge, 2, textOnBadge)

	body := image.Rect(rect.Min.X+16, rect.Min.Y+60, rect.Max.X-16, rect.Max.Y-30)
	drawLabel(img, body, label, 3, textPrimary)
}

func drawPanelWithShadow(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	drawRoundedPanel(img, rect.Add(image.Pt(0, 6)), panelRadius, panelShadowColor)
	drawRoundedPanel(img, rect, panelRadius, clr)
}
