package marker

import (
	"image"
	"image/color"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage"
	"go.viam.com/fiducial/rimage/transform"
)

// DrawMarker renders marker id of dict as a sidePixels square image with borderBits black cells around the
// codeword. sidePixels must be at least the number of cells.
func DrawMarker(dict *Dictionary, id, sidePixels, borderBits int) (*image.Gray, error) {
	if borderBits < 1 {
		return nil, errors.Errorf("border bits must be at least 1, got %d", borderBits)
	}
	bits, err := dict.Bits(id)
	if err != nil {
		return nil, err
	}
	cells := dict.MarkerSize + 2*borderBits
	if sidePixels < cells {
		return nil, errors.Errorf("marker needs at least %d pixels per side, got %d", cells, sidePixels)
	}
	img := image.NewGray(image.Rect(0, 0, sidePixels, sidePixels))
	for y := 0; y < sidePixels; y++ {
		cy := y*cells/sidePixels - borderBits
		for x := 0; x < sidePixels; x++ {
			cx := x*cells/sidePixels - borderBits
			if cy < 0 || cx < 0 || cy >= dict.MarkerSize || cx >= dict.MarkerSize {
				continue
			}
			if bits[cy][cx] == 1 {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img, nil
}

// DrawDetectedMarkers outlines each marker and marks its first corner, the way OpenCV's drawDetectedMarkers does.
func DrawDetectedMarkers(dc *gg.Context, markers []Marker, c color.Color) {
	for _, m := range markers {
		rimage.DrawPolygon(dc, m.CornerSlice(), c, 2)
		rimage.DrawPoint(dc, m.Corners[0], color.RGBA{R: 255, A: 255}, 3)
	}
}

// DrawCandidates outlines rejected quads.
func DrawCandidates(dc *gg.Context, cands []Candidate, c color.Color) {
	for _, cand := range cands {
		rimage.DrawPolygon(dc, cand.CornerSlice(), c, 1)
	}
}

// markerCenter is the mean of the corners.
func markerCenter(corners [4]r2.Point) r2.Point {
	return corners[0].Add(corners[1]).Add(corners[2]).Add(corners[3]).Mul(0.25)
}

// DrawMarkerIDs writes each marker's id next to its center.
func DrawMarkerIDs(dc *gg.Context, markers []Marker, c color.Color, size float64) {
	for _, m := range markers {
		center := markerCenter(m.Corners)
		rimage.DrawString(dc, "id="+strconv.Itoa(m.ID), image.Pt(int(center.X), int(center.Y)), c, size)
	}
}

// DrawAxes draws the x (red), y (green) and z (blue) axes of pose, each length long, projected through camera.
func DrawAxes(dc *gg.Context, camera transform.Projector, pose Pose, length float64) {
	pts := AxisPoints(pose, length, camera)
	axisColors := []color.Color{
		color.RGBA{R: 255, A: 255},
		color.RGBA{G: 255, A: 255},
		color.RGBA{B: 255, A: 255},
	}
	for i, c := range axisColors {
		rimage.DrawSegment(dc, pts[0], pts[i+1], c, 2)
	}
}
