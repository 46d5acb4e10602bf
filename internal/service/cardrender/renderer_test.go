package cardrender

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	return img
}

func TestRenderPNG_Pair(t *testing.T) {
	r := NewRenderer()
	b, err := r.RenderPNG(context.Background(), Card{Left: "Family", Right: "Money", Footer: "Words eliminated: 2"})
	require.NoError(t, err)

	img := decode(t, b)
	require.Equal(t, image.Rect(0, 0, cardWidth, cardHeight), img.Bounds())

	// The two choice panels are painted over the background.
	bg, err := background()
	require.NoError(t, err)
	p := image.Pt(leftRect.Min.X+20, leftRect.Max.Y-10)
	require.NotEqual(t, bg.At(p.X, p.Y), img.At(p.X, p.Y))
}

func TestRenderPNG_Champion(t *testing.T) {
	r := NewRenderer()
	s, err := RenderBase64(context.Background(), r, Card{Champion: "Health"})
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	decode(t, raw)
}

func TestRenderPNG_Errors(t *testing.T) {
	r := NewRenderer()
	_, err := r.RenderPNG(context.Background(), Card{Left: "only one"})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.RenderPNG(ctx, Card{Left: "a", Right: "b"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestTruncateWithEllipsis(t *testing.T) {
	// The bitmap face is 8px per glyph.
	require.Equal(t, "Family", truncateWithEllipsis(labelFace, " Family ", 80))
	require.Equal(t, "Fam...", truncateWithEllipsis(labelFace, "Family values", 48))
	require.Equal(t, "", truncateWithEllipsis(labelFace, "Family", 16))
}

func TestSanitizeSVG(t *testing.T) {
	out := sanitizeSVG([]byte(`<circle style="fill: #e0a82e; stroke: #000"/>`))
	require.Equal(t, `<circle style="fill:#e0a82e; stroke:#000"/>`, string(out))
}

func TestInsideRounded(t *testing.T) {
	r := image.Rect(0, 0, 40, 20)
	require.True(t, insideRounded(20, 10, r, 8))
	require.False(t, insideRounded(0, 0, r, 8))
	require.True(t, insideRounded(0, 10, r, 8))
}
