package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Draw paints anns onto dst.
func Draw(dst draw.Image, anns []Annotation) {
	for _, a := range anns {
		r := a.Region.Canon()
		for w := 0; w < Thickness; w++ {
			hLine(dst, r.Min.X, r.Max.X, r.Min.Y+w, a.Color)
			hLine(dst, r.Min.X, r.Max.X, r.Max.Y-w, a.Color)
			vLine(dst, r.Min.Y, r.Max.Y, r.Min.X+w, a.Color)
			vLine(dst, r.Min.Y, r.Max.Y, r.Max.X-w, a.Color)
		}
		if a.Label == "" {
			continue
		}

		strip := image.Rect(r.Min.X, r.Max.Y-LabelHeight, r.Max.X, r.Max.Y).Intersect(dst.Bounds())
		draw.Draw(dst, strip, image.NewUniform(a.Color), image.Point{}, draw.Src)

		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(White),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(r.Min.X+LabelInsetX, r.Max.Y-LabelInsetY),
		}
		d.DrawString(a.Label)
	}
}

func hLine(dst draw.Image, x1, x2, y int, c color.RGBA) {
	b := dst.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := max(x1, b.Min.X); x <= x2 && x < b.Max.X; x++ {
		dst.Set(x, y, c)
	}
}

func vLine(dst draw.Image, y1, y2, x int, c color.RGBA) {
	b := dst.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := max(y1, b.Min.Y); y <= y2 && y < b.Max.Y; y++ {
		dst.Set(x, y, c)
	}
}

// DrawJPEG decodes a JPEG frame, draws anns on it and re-encodes it.
func DrawJPEG(data []byte, anns []Annotation) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	Draw(dst, anns)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
