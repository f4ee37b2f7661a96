package tracker

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// A ResultSink consumes the result of every frame together with the frame itself.
type ResultSink interface {
	Write(ctx context.Context, frame image.Image, result *FrameResult) error
	Close() error
}

// JSONLinesSink writes one JSON object per frame.
type JSONLinesSink struct {
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLinesSink writes to w. Close does not close w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// NewJSONLinesFileSink creates or truncates the file at path.
func NewJSONLinesFileSink(path string) (*JSONLinesSink, error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create results file")
	}
	return &JSONLinesSink{enc: json.NewEncoder(f), closer: f}, nil
}

// Write encodes result; the frame is ignored.
func (s *JSONLinesSink) Write(ctx context.Context, frame image.Image, result *FrameResult) error {
	return s.enc.Encode(result)
}

// Close closes the file the sink was created with, if any.
func (s *JSONLinesSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// MultiSink passes every result to each of its sinks in order.
type MultiSink []ResultSink

// Write stops at the first failing sink.
func (ms MultiSink) Write(ctx context.Context, frame image.Image, result *FrameResult) error {
	for _, s := range ms {
		if err := s.Write(ctx, frame, result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and combines their errors.
func (ms MultiSink) Close() error {
	var err error
	for _, s := range ms {
		err = multierr.Combine(err, s.Close())
	}
	return err
}
