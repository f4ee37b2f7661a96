package tracker

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/rimage"
	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/vision/marker"
)

// Tracker detects the markers of every configured dictionary in each frame and estimates their poses. A Tracker
// processes one frame at a time; only Stats may be called concurrently.
type Tracker struct {
	cfg    Config
	names  []string
	dicts  []*marker.Dictionary
	camera transform.Projector
	logger logging.Logger
	clock  clock.Clock

	session  uuid.UUID
	sequence atomic.Uint64

	frames       atomic.Int64
	markers      atomic.Int64
	rejected     atomic.Int64
	poseFailures atomic.Int64
	latency      atomic.Duration
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock sets the clock frames are timed with.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// NewTracker validates cfg, loads its dictionaries and returns a tracker estimating poses with camera.
func NewTracker(cfg Config, camera transform.Projector, logger logging.Logger, opts ...Option) (*Tracker, error) {
	if camera == nil {
		return nil, transform.NewNoIntrinsicsError("tracking needs a calibrated camera")
	}
	if logger == nil {
		logger = logging.NewBlankLogger("tracker")
	}
	cfg.Dictionaries = append([]DictionaryConfig(nil), cfg.Dictionaries...)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tracker config")
	}
	dicts, err := cfg.loadDictionaries()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dicts))
	for i, dc := range cfg.Dictionaries {
		names[i] = dc.label()
	}
	t := &Tracker{
		cfg:     cfg,
		names:   names,
		dicts:   dicts,
		camera:  camera,
		logger:  logger,
		clock:   clock.New(),
		session: uuid.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	logger.Debugw("tracker ready", "session", t.session, "dictionaries", names, "marker_length", cfg.MarkerLength)
	return t, nil
}

// Session identifies the results of this tracker.
func (t *Tracker) Session() uuid.UUID {
	return t.session
}

// ProcessFrame finds quads in frame once and identifies them against each dictionary in configured order. A
// marker whose pose cannot be estimated is still reported, with a nil pose.
func (t *Tracker) ProcessFrame(ctx context.Context, frame image.Image) (*FrameResult, error) {
	ctx, span := trace.StartSpan(ctx, "tracker::ProcessFrame")
	defer span.End()

	if frame == nil {
		return nil, errors.New("no frame to process")
	}
	start := t.clock.Now()
	gray := rimage.MakeGray(frame)
	candidates, err := marker.DetectCandidates(gray, &t.cfg.Detector)
	if err != nil {
		return nil, errors.Wrap(err, "cannot find marker candidates")
	}

	result := &FrameResult{
		Session:      t.session,
		Sequence:     t.sequence.Inc(),
		Timestamp:    start,
		Size:         gray.Bounds().Size(),
		Dictionaries: make([]DictionaryResult, 0, len(t.dicts)),
	}
	for i, dict := range t.dicts {
		dr, err := t.processDictionary(ctx, gray, candidates, t.names[i], dict)
		if err != nil {
			return nil, err
		}
		t.markers.Add(int64(len(dr.Markers)))
		t.rejected.Add(int64(len(dr.Rejected)))
		result.Dictionaries = append(result.Dictionaries, dr)
	}
	result.Latency = t.clock.Since(start)
	t.frames.Inc()
	t.latency.Add(result.Latency)
	return result, nil
}

func (t *Tracker) processDictionary(
	ctx context.Context,
	gray *image.Gray,
	candidates []marker.Candidate,
	name string,
	dict *marker.Dictionary,
) (DictionaryResult, error) {
	_, span := trace.StartSpan(ctx, "tracker::processDictionary")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("dictionary", name))

	markers, rejected, err := marker.IdentifyCandidates(gray, candidates, dict, &t.cfg.Detector)
	if err != nil {
		return DictionaryResult{}, errors.Wrapf(err, "cannot identify markers of %s", name)
	}
	dr := DictionaryResult{
		Dictionary: name,
		Markers:    make([]DetectedMarker, 0, len(markers)),
		Rejected:   make([]RejectedCandidate, 0, len(rejected)),
	}
	for _, m := range markers {
		dr.Markers = append(dr.Markers, DetectedMarker{
			ID:       m.ID,
			Corners:  m.Corners,
			Distance: m.Distance,
			Pose:     t.estimate(m.Corners, name, m.ID),
		})
	}
	for _, c := range rejected {
		rc := RejectedCandidate{Corners: c.Corners}
		if t.cfg.EstimateRejectedPoses {
			rc.Pose = t.estimate(c.Corners, name, -1)
		}
		dr.Rejected = append(dr.Rejected, rc)
	}
	return dr, nil
}

// estimate returns nil when the corners admit no pose. id is -1 for rejected candidates.
func (t *Tracker) estimate(corners [4]r2.Point, dictionary string, id int) *marker.Pose {
	pose, err := marker.EstimatePose(corners[:], t.cfg.MarkerLength, t.camera)
	if err != nil {
		t.poseFailures.Inc()
		t.logger.Debugw("no pose for quad", "dictionary", dictionary, "id", id, "error", err)
		return nil
	}
	return &pose
}

// Run processes frames from source until it returns io.EOF, passing every result to sink. The context is checked
// between frames. The sink is not closed.
func (t *Tracker) Run(ctx context.Context, source FrameSource, sink ResultSink) error {
	defer t.logSummary()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := source.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "cannot read frame")
		}
		result, err := t.ProcessFrame(ctx, frame)
		if err != nil {
			return err
		}
		if err := sink.Write(ctx, frame, result); err != nil {
			return errors.Wrapf(err, "cannot write result of frame %d", result.Sequence)
		}
	}
}

func (t *Tracker) logSummary() {
	s := t.Stats()
	t.logger.Infow("tracking finished",
		"session", t.session,
		"frames", s.Frames,
		"markers", s.Markers,
		"rejected", s.Rejected,
		"pose_failures", s.PoseFailures,
		"mean_latency", s.MeanLatency(),
	)
}

// Stats are running totals over every processed frame.
type Stats struct {
	Frames       int64
	Markers      int64
	Rejected     int64
	PoseFailures int64
	TotalLatency time.Duration
}

// MeanLatency is the average time spent per frame.
func (s Stats) MeanLatency() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Frames)
}

// Stats returns the totals so far.
func (t *Tracker) Stats() Stats {
	return Stats{
		Frames:       t.frames.Load(),
		Markers:      t.markers.Load(),
		Rejected:     t.rejected.Load(),
		PoseFailures: t.poseFailures.Load(),
		TotalLatency: t.latency.Load(),
	}
}
