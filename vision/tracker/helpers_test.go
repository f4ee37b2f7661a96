package tracker

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/vision/marker"
)

const test4YAML = `%YAML:1.0
---
nmarkers: 3
markersize: 4
maxCorrectionBits: 3
marker_0: "1010010111001101"
marker_1: "1011100001110010"
marker_2: "1100011000111001"
`

var (
	arucoCorner = r2.Point{X: 40, Y: 90}
	test4Corner = r2.Point{X: 300, Y: 100}
)

func writeTest4Dictionary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test4.yml")
	test.That(t, os.WriteFile(path, []byte(test4YAML), 0o600), test.ShouldBeNil)
	return path
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dictionaries = []DictionaryConfig{
		{Name: "test4", File: writeTest4Dictionary(t)},
		{Name: marker.ArucoOriginal},
	}
	return cfg
}

func testCamera() *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  480,
			Height: 320,
			Fx:     500,
			Fy:     500,
			Ppx:    240,
			Ppy:    160,
		},
	}
}

func blankFrame() *image.Gray {
	frame := image.NewGray(image.Rect(0, 0, 480, 320))
	for i := range frame.Pix {
		frame.Pix[i] = 235
	}
	return frame
}

func paste(t *testing.T, frame *image.Gray, dict *marker.Dictionary, id, side int, at r2.Point) {
	t.Helper()
	m, err := marker.DrawMarker(dict, id, side, 1)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			frame.Pix[(y+int(at.Y))*frame.Stride+x+int(at.X)] = m.Pix[y*m.Stride+x]
		}
	}
}

// markerFrame holds ARUCO_ORIGINAL id 7 on the left and test4 id 1 on the right.
func markerFrame(t *testing.T) *image.Gray {
	t.Helper()
	test4, err := marker.ParseDictionary([]byte(test4YAML), "test4")
	test.That(t, err, test.ShouldBeNil)
	frame := blankFrame()
	paste(t, frame, marker.NewArucoOriginalDictionary(), 7, 140, arucoCorner)
	paste(t, frame, test4, 1, 120, test4Corner)
	return frame
}

type recordingSink struct {
	results  []*FrameResult
	onWrite  func()
	writeErr error
	closed   bool
	closeErr error
}

func (s *recordingSink) Write(ctx context.Context, frame image.Image, result *FrameResult) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.results = append(s.results, result)
	if s.onWrite != nil {
		s.onWrite()
	}
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func near(a, b r2.Point) bool {
	return a.Sub(b).Norm() < 2
}
