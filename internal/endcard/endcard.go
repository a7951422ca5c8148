// Package endcard draws the optional outro card shown after the last scene:
// track title plus a QR code pointing at the share link.
package endcard

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

type Card struct {
	Title  string
	TailMs int64

	qr *image.RGBA // nil when no share URL was given
}

// New builds a card. shareURL may be empty; the QR layer is then omitted.
func New(title, shareURL string, tailMs int64) (*Card, error) {
	c := &Card{Title: title, TailMs: tailMs}
	if tailMs <= 0 {
		c.TailMs = 4000
	}

	if shareURL != "" {
		q, err := qrcode.New(shareURL, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("endcard: не удалось построить QR-код: %w", err)
		}
		q.DisableBorder = true
		src := q.Image(qrSize)
		rgba := image.NewRGBA(src.Bounds())
		draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)
		c.qr = rgba
	}
	return c, nil
}

const qrSize = 192

// Draw renders the card at fade-in progress p (0..1). The whole card fades
// over a dark background so the cut from the last scene is soft.
func (c *Card) Draw(dst *image.RGBA, face font.Face, p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	alpha := uint8(p * 255)

	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{12, 12, 16, 255}), image.Point{}, draw.Src)

	w := dst.Bounds().Dx()
	h := dst.Bounds().Dy()
	mask := image.NewUniform(color.Alpha{alpha})

	// Title, centered; QR below it when present.
	titleW := font.MeasureString(face, c.Title).Ceil()
	lineH := face.Metrics().Height.Ceil()
	titleY := h/2 - lineH
	if c.qr != nil {
		titleY = h/2 - qrSize/2 - lineH
	}

	// color.RGBA is alpha-premultiplied: faded white is {a, a, a, a}.
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{alpha, alpha, alpha, alpha}),
		Face: face,
		Dot:  fixed.P((w-titleW)/2, titleY),
	}
	d.DrawString(c.Title)

	if c.qr != nil {
		qx := (w - qrSize) / 2
		qy := titleY + lineH
		r := image.Rect(qx, qy, qx+qrSize, qy+qrSize)
		draw.DrawMask(dst, r, c.qr, image.Point{}, mask, image.Point{}, draw.Over)
	}
}
