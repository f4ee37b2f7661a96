package tracker

import (
	"image"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"go.viam.com/fiducial/vision/marker"
)

// DetectedMarker is a marker accepted by one dictionary. Pose is nil when it could not be estimated.
type DetectedMarker struct {
	ID       int          `json:"id"`
	Corners  [4]r2.Point  `json:"corners"`
	Distance int          `json:"distance"`
	Pose     *marker.Pose `json:"pose,omitempty"`
}

// RejectedCandidate is a marker shaped quad a dictionary did not accept.
type RejectedCandidate struct {
	Corners [4]r2.Point  `json:"corners"`
	Pose    *marker.Pose `json:"pose,omitempty"`
}

// DictionaryResult is what one dictionary found in a frame.
type DictionaryResult struct {
	Dictionary string              `json:"dictionary"`
	Markers    []DetectedMarker    `json:"markers"`
	Rejected   []RejectedCandidate `json:"rejected"`
}

// IDs lists the accepted marker ids in detection order.
func (dr *DictionaryResult) IDs() []int {
	return lo.Map(dr.Markers, func(m DetectedMarker, _ int) int { return m.ID })
}

// FrameResult is the outcome of one frame, with one entry per configured dictionary in configured order.
type FrameResult struct {
	Session   uuid.UUID     `json:"session"`
	Sequence  uint64        `json:"sequence"`
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency_ns"`
	Size      image.Point   `json:"size"`

	Dictionaries []DictionaryResult `json:"dictionaries"`
}

// MarkerCount is the number of markers accepted by any dictionary.
func (fr *FrameResult) MarkerCount() int {
	n := 0
	for _, dr := range fr.Dictionaries {
		n += len(dr.Markers)
	}
	return n
}
