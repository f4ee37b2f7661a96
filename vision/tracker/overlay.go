package tracker

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage"
	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/vision/marker"
)

const (
	captionSize = 24
	idsCaptionY = 64
	rejectedY   = 128
	noIDsY      = 256
)

var captionColor = color.RGBA{G: 255, A: 255}

// OverlaySink draws every frame's detections onto a copy of the frame and saves it as a PNG named after the
// frame's sequence number.
type OverlaySink struct {
	dir        string
	camera     transform.Projector
	axisLength float64
}

// NewOverlaySink writes overlays into dir, creating it if needed. Axes are drawn twice as long as markerLength.
func NewOverlaySink(dir string, camera transform.Projector, markerLength float64) (*OverlaySink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "cannot create overlay directory")
	}
	return &OverlaySink{dir: dir, camera: camera, axisLength: 2 * markerLength}, nil
}

// Path is where the overlay of the frame with the given sequence number is written.
func (s *OverlaySink) Path(sequence uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("frame_%06d.png", sequence))
}

// Write draws and saves the overlay.
func (s *OverlaySink) Write(ctx context.Context, frame image.Image, result *FrameResult) error {
	return rimage.WriteImageToFile(s.Path(result.Sequence), s.Draw(frame, result))
}

// Draw renders the overlay of result on frame. Each dictionary gets its own outline color. Accepted markers get
// their axes and an id caption; captions of successive dictionaries stack downward.
func (s *OverlaySink) Draw(frame image.Image, result *FrameResult) image.Image {
	dc := gg.NewContextForImage(frame)
	captions := 0
	for i, dr := range result.Dictionaries {
		outline := dictionaryColor(i, len(result.Dictionaries))
		if len(dr.Markers) > 0 {
			markers := make([]marker.Marker, 0, len(dr.Markers))
			for _, m := range dr.Markers {
				if m.Pose != nil && s.camera != nil {
					marker.DrawAxes(dc, s.camera, *m.Pose, s.axisLength)
				}
				markers = append(markers, marker.Marker{ID: m.ID, Corners: m.Corners, Distance: m.Distance})
			}
			marker.DrawDetectedMarkers(dc, markers, outline)
			y := idsCaptionY + captions*captionSize*5/4
			rimage.DrawString(dc, idsCaption(&dr), image.Pt(0, y), captionColor, captionSize)
			captions++
		} else {
			rimage.DrawString(dc, "No Ids", image.Pt(0, noIDsY), captionColor, captionSize)
		}

		if len(dr.Rejected) == 0 {
			continue
		}
		rimage.DrawString(dc, "Rejected", image.Pt(0, rejectedY), captionColor, captionSize)
		cands := make([]marker.Candidate, 0, len(dr.Rejected))
		for _, r := range dr.Rejected {
			if r.Pose != nil && s.camera != nil {
				marker.DrawAxes(dc, s.camera, *r.Pose, s.axisLength)
			}
			cands = append(cands, marker.Candidate{Corners: r.Corners})
		}
		marker.DrawCandidates(dc, cands, outline)
	}
	return dc.Image()
}

// Close does nothing; every overlay is written as soon as it is drawn.
func (s *OverlaySink) Close() error {
	return nil
}

// idsCaption lists the ids as "<dictionary>: Id: 3, 17, ".
func idsCaption(dr *DictionaryResult) string {
	var sb strings.Builder
	sb.WriteString(dr.Dictionary)
	sb.WriteString(": Id: ")
	for _, id := range dr.IDs() {
		sb.WriteString(strconv.Itoa(id))
		sb.WriteString(", ")
	}
	return sb.String()
}

func dictionaryColor(i, n int) color.Color {
	return colorful.Hsv(360*float64(i)/float64(max(n, 1)), 0.85, 0.95).Clamped()
}
