// Package render draws the card and social images attached to a post.
package render

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strconv"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	Width  = 1200
	Height = 630

	padX = 72
	padY = 60
	dots = 120

	smallSize    = 26
	titleMaxSize = 64
	titleMinSize = 44
	titleStep    = 6
)

// Palette is a vertical gradient.
type Palette struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

var defaultPalette = Palette{From: "#111827", To: "#374151"}

// DefaultPalettes are the per-category gradients.
func DefaultPalettes() map[string]Palette {
	return map[string]Palette{
		"viralt-trend":  {From: "#ff7a00", To: "#d60b52"},
		"underhallning": {From: "#7a5cff", To: "#2bb0ff"},
		"sport":         {From: "#00b140", To: "#006837"},
		"prylradar":     {From: "#ff4d4f", To: "#ff7a45"},
		"teknik-prylar": {From: "#2b3a67", To: "#0ea5e9"},
		"ekonomi-bors":  {From: "#1f2937", To: "#10b981"},
		"nyheter":       {From: "#111827", To: "#374151"},
		"gaming-esport": {From: "#7c3aed", To: "#22d3ee"},
	}
}

// Card describes one post image.
type Card struct {
	Title        string
	CategorySlug string
	CategoryName string
	Date         time.Time
}

// Renderer draws cards.
type Renderer struct {
	palettes map[string]Palette
	brand    string
	font     *opentype.Font
	faces    map[float64]font.Face
}

// New creates a renderer. A nil palettes map uses DefaultPalettes.
func New(palettes map[string]Palette, brand string) (*Renderer, error) {
	if palettes == nil {
		palettes = DefaultPalettes()
	}
	if brand == "" {
		brand = "Trendkoll"
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Renderer{palettes: palettes, brand: brand, font: f, faces: map[float64]font.Face{}}, nil
}

// face returns the face for size in pixels, creating it on first use.
func (r *Renderer) face(size float64) font.Face {
	if f, ok := r.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		panic(fmt.Sprintf("render: new face %v: %v", size, err))
	}
	r.faces[size] = f
	return f
}

// Render draws the card. withText adds the category chip, date, title and
// brand; without it the image is background only. The background pattern
// is derived from the title, so the same card always renders the same.
func (r *Renderer) Render(c Card, withText bool) (*image.RGBA, error) {
	p, ok := r.palettes[c.CategorySlug]
	if !ok {
		p = defaultPalette
	}
	from, err := parseHex(p.From)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", c.CategorySlug, err)
	}
	to, err := parseHex(p.To)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", c.CategorySlug, err)
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	gradient(img, from, to)
	pattern(img, seed(c.Title))

	if withText {
		r.text(img, c)
	}
	return img, nil
}

// PNG renders the card and encodes it.
func (r *Renderer) PNG(c Card, withText bool) ([]byte, error) {
	img, err := r.Render(c, withText)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) text(img *image.RGBA, c Card) {
	small := r.face(smallSize)

	// Chip.
	chipW, chipH := measure(small, c.CategoryName)+36, lineHeight(small)+20
	chip := image.Rect(padX, padY, padX+chipW, padY+chipH)
	xdraw.Draw(img, chip, image.NewUniform(color.NRGBA{255, 255, 255, 38}), image.Point{}, xdraw.Over)
	drawString(img, small, c.CategoryName, padX+18, padY+10, color.NRGBA{255, 255, 255, 230})

	// Date, right aligned.
	date := c.Date.UTC().Format("2006-01-02")
	drawString(img, small, date, Width-padX-measure(small, date), padY+10, color.NRGBA{236, 242, 255, 220})

	// Title, largest size that fits on three lines.
	maxWidth := Width - 2*padX
	var title font.Face
	var lines []string
	for size := titleMaxSize; size >= titleMinSize; size -= titleStep {
		title = r.face(float64(size))
		lines = wrap(title, c.Title, maxWidth)
		if len(lines) <= 3 {
			break
		}
	}
	if len(lines) > 3 {
		lines = lines[:3]
	}
	y := padY + chipH + 36
	for _, line := range lines {
		drawString(img, title, line, padX, y, color.NRGBA{255, 255, 255, 245})
		y += lineHeight(title) + 6
	}

	drawString(img, small, r.brand, padX, Height-padY-lineHeight(small), color.NRGBA{255, 255, 255, 200})
}

// wrap splits title into lines no wider than width pixels.
func wrap(face font.Face, title string, width int) []string {
	var lines []string
	var cur string
	for _, w := range strings.Fields(title) {
		next := strings.TrimSpace(cur + " " + w)
		if measure(face, next) <= width || cur == "" {
			cur = next
			continue
		}
		lines = append(lines, cur)
		cur = w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func lineHeight(face font.Face) int {
	return face.Metrics().Height.Ceil()
}

// drawString draws s with its top-left corner at (x, y).
func drawString(dst *image.RGBA, face font.Face, s string, x, y int, col color.Color) {
	if s == "" {
		return
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func gradient(img *image.RGBA, from, to color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		t := float64(y) / float64(b.Dy()-1)
		row := color.RGBA{
			R: lerp(from.R, to.R, t),
			G: lerp(from.G, to.G, t),
			B: lerp(from.B, to.B, t),
			A: 255,
		}
		xdraw.Draw(img, image.Rect(b.Min.X, y, b.Max.X, y+1), image.NewUniform(row), image.Point{}, xdraw.Src)
	}
}

func pattern(img *image.RGBA, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < dots; i++ {
		x := rng.Intn(Width + 1)
		y := rng.Intn(Height + 1)
		radius := 2 + rng.Intn(4)
		alpha := uint8(18 + rng.Intn(15))
		c := circle{center: image.Pt(x+radius, y+radius), r: radius}
		xdraw.DrawMask(img, c.Bounds(), image.NewUniform(color.NRGBA{255, 255, 255, alpha}), image.Point{}, c, c.Bounds().Min, xdraw.Over)
	}
}

// seed is the first 32 bits of the title's SHA-1.
func seed(title string) int64 {
	sum := sha1.Sum([]byte(title))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func parseHex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("bad colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// circle is an alpha mask for a filled disc.
type circle struct {
	center image.Point
	r      int
}

func (c circle) ColorModel() color.Model { return color.AlphaModel }

func (c circle) Bounds() image.Rectangle {
	return image.Rect(c.center.X-c.r, c.center.Y-c.r, c.center.X+c.r, c.center.Y+c.r)
}

func (c circle) At(x, y int) color.Color {
	dx, dy := float64(x-c.center.X)+0.5, float64(y-c.center.Y)+0.5
	if dx*dx+dy*dy < float64(c.r*c.r) {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}
