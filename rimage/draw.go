package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawPolygon strokes the closed polygon through the given vertices.
func DrawPolygon(dc *gg.Context, vertices []r2.Point, c color.Color, width float64) {
	if len(vertices) == 0 {
		return
	}
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.MoveTo(vertices[0].X, vertices[0].Y)
	for _, v := range vertices[1:] {
		dc.LineTo(v.X, v.Y)
	}
	dc.ClosePath()
	dc.Stroke()
}

// DrawSegment strokes a single line segment.
func DrawSegment(dc *gg.Context, from, to r2.Point, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawLine(from.X, from.Y, to.X, to.Y)
	dc.Stroke()
}

// DrawPoint fills a small disc centered on p.
func DrawPoint(dc *gg.Context, p r2.Point, c color.Color, radius float64) {
	dc.SetColor(c)
	dc.DrawCircle(p.X, p.Y, radius)
	dc.Fill()
}
