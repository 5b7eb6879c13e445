// Package chart renders click counts as a PNG bar chart.
package chart

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	Width  = 1200
	Height = 630

	// templateVersion is part of every cache key. Bump it whenever Render's
	// visual output changes.
	templateVersion = "chart-v1:"

	defaultAccentColor = "#f59e0b" // amber-500

	marginX     = 78
	plotTop     = 190
	plotBottom  = Height - 80
	maxXLabels  = 12
	valueLabels = 31
)

// Bar is one column of the chart.
type Bar struct {
	Label string
	Value int
}

// Chart holds the title, subtitle and bars to render. AccentColor is an
// optional CSS hex color (#rgb or #rrggbb) for the bars and the side stripe.
type Chart struct {
	Title       string
	Subtitle    string
	Bars        []Bar
	AccentColor string
}

var (
	fontLoadOnce sync.Once
	fontLoadErr  error

	boldFont    *opentype.Font
	regularFont *opentype.Font
)

var (
	background = color.RGBA{R: 15, G: 23, B: 42, A: 255}    // slate-950
	axisColor  = color.RGBA{R: 51, G: 65, B: 85, A: 255}    // slate-700
	titleColor = color.RGBA{R: 241, G: 245, B: 249, A: 255} // slate-100
	mutedColor = color.RGBA{R: 148, G: 163, B: 184, A: 255} // slate-400
)

func Render(c Chart) ([]byte, error) {
	if err := ensureFontsLoaded(); err != nil {
		return nil, err
	}
	c = normalizeChart(c)

	accent, ok := parseHexColor(c.AccentColor)
	if !ok {
		accent, _ = parseHexColor(defaultAccentColor)
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	fillRect(img, img.Bounds(), background)
	fillRect(img, image.Rect(0, 0, 24, Height), accent)

	titleFace, err := newFace(boldFont, 52)
	if err != nil {
		return nil, fmt.Errorf("create title font face: %w", err)
	}
	defer closeFace(titleFace)
	subtitleFace, err := newFace(regularFont, 28)
	if err != nil {
		return nil, fmt.Errorf("create subtitle font face: %w", err)
	}
	defer closeFace(subtitleFace)
	labelFace, err := newFace(regularFont, 20)
	if err != nil {
		return nil, fmt.Errorf("create label font face: %w", err)
	}
	defer closeFace(labelFace)

	drawText(img, titleFace, fitWithEllipsis(titleFace, c.Title, Width-2*marginX), marginX, 96, titleColor)
	drawText(img, subtitleFace, fitWithEllipsis(subtitleFace, c.Subtitle, Width-2*marginX), marginX, 144, mutedColor)

	fillRect(img, image.Rect(marginX, plotBottom, Width-marginX, plotBottom+2), axisColor)
	drawBars(img, labelFace, c.Bars, accent)

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

func drawBars(img draw.Image, face font.Face, bars []Bar, accent color.RGBA) {
	if len(bars) == 0 {
		return
	}
	peak := 0
	for _, b := range bars {
		if b.Value > peak {
			peak = b.Value
		}
	}

	plotWidth := Width - 2*marginX
	plotHeight := plotBottom - plotTop - 28
	slot := plotWidth / len(bars)
	if slot < 1 {
		slot = 1
	}
	barWidth := slot * 7 / 10
	if barWidth < 1 {
		barWidth = 1
	}
	labelEvery := (len(bars) + maxXLabels - 1) / maxXLabels

	for i, b := range bars {
		x0 := marginX + i*slot + (slot-barWidth)/2
		h := 0
		if peak > 0 && b.Value > 0 {
			h = b.Value * plotHeight / peak
			if h < 2 {
				h = 2
			}
		}
		if h > 0 {
			fillRect(img, image.Rect(x0, plotBottom-h, x0+barWidth, plotBottom), accent)
		}
		center := x0 + barWidth/2
		if b.Value > 0 && len(bars) <= valueLabels {
			value := strconv.Itoa(b.Value)
			drawText(img, face, value, center-textWidth(face, value)/2, plotBottom-h-8, titleColor)
		}
		if i%labelEvery == 0 || i == len(bars)-1 {
			label := fitWithEllipsis(face, b.Label, slot*labelEvery)
			drawText(img, face, label, center-textWidth(face, label)/2, plotBottom+30, mutedColor)
		}
	}
}

// CacheKey identifies the rendered bytes of c, suitable for an ETag.
func CacheKey(c Chart) [32]byte {
	c = normalizeChart(c)
	var b strings.Builder
	b.WriteString(templateVersion)
	b.WriteString(c.Title + "\x00" + c.Subtitle + "\x00" + c.AccentColor)
	for _, bar := range c.Bars {
		b.WriteString("\x00" + bar.Label + "=" + strconv.Itoa(bar.Value))
	}
	return sha256.Sum256([]byte(b.String()))
}

func ensureFontsLoaded() error {
	fontLoadOnce.Do(func() {
		boldFont, fontLoadErr = opentype.Parse(gobold.TTF)
		if fontLoadErr != nil {
			fontLoadErr = fmt.Errorf("parse Go Bold font: %w", fontLoadErr)
			return
		}
		regularFont, fontLoadErr = opentype.Parse(goregular.TTF)
		if fontLoadErr != nil {
			fontLoadErr = fmt.Errorf("parse Go Regular font: %w", fontLoadErr)
		}
	})
	return fontLoadErr
}

func newFace(parsed *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func closeFace(face font.Face) {
	if closer, ok := face.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func normalizeChart(c Chart) Chart {
	out := Chart{
		Title:       normalizeWhitespace(c.Title),
		Subtitle:    normalizeWhitespace(c.Subtitle),
		AccentColor: strings.ToLower(strings.TrimSpace(c.AccentColor)),
		Bars:        make([]Bar, 0, len(c.Bars)),
	}
	for _, b := range c.Bars {
		if b.Value < 0 {
			b.Value = 0
		}
		out.Bars = append(out.Bars, Bar{Label: normalizeWhitespace(b.Label), Value: b.Value})
	}
	return out
}

func normalizeWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func fillRect(img draw.Image, rect image.Rectangle, c color.Color) {
	draw.Draw(img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func drawText(img draw.Image, face font.Face, text string, x, y int, c color.Color) {
	if text == "" {
		return
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}

func fitWithEllipsis(face font.Face, text string, maxWidth int) string {
	const ellipsis = "..."
	if textWidth(face, text) <= maxWidth {
		return text
	}
	if textWidth(face, ellipsis) > maxWidth {
		return ""
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimRight(string(runes), " ") + ellipsis
		if textWidth(face, candidate) <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func textWidth(face font.Face, text string) int {
	return font.MeasureString(face, text).Ceil()
}

// parseHexColor parses #rgb or #rrggbb, with or without the '#'.
func parseHexColor(s string) (color.RGBA, bool) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

// ValidAccent reports whether s is usable as AccentColor.
func ValidAccent(s string) bool {
	_, ok := parseHexColor(s)
	return ok
}
