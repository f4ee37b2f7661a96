package calib

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/rimage"
	"go.viam.com/fiducial/rimage/detection/chessboard"
)

// ImageSource yields calibration images one at a time. Next returns io.EOF once it is exhausted.
type ImageSource interface {
	Next(ctx context.Context) (image.Image, string, error)
}

// FileImageSource reads a fixed list of image files in order.
type FileImageSource struct {
	paths []string
	next  int
}

// NewFileImageSource reads the given files in the given order.
func NewFileImageSource(paths []string) *FileImageSource {
	return &FileImageSource{paths: paths}
}

// NewGlobImageSource reads every image file matching pattern, sorted by name. A directory is treated as
// every file inside it.
func NewGlobImageSource(pattern string) (*FileImageSource, error) {
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		pattern = filepath.Join(pattern, "*")
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "bad image pattern %q", pattern)
	}
	paths := lo.Filter(matches, func(p string, _ int) bool { return rimage.IsImageFile(p) })
	sort.Strings(paths)
	return NewFileImageSource(paths), nil
}

// Next decodes the next file.
func (fs *FileImageSource) Next(ctx context.Context) (image.Image, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if fs.next >= len(fs.paths) {
		return nil, "", io.EOF
	}
	path := fs.paths[fs.next]
	fs.next++
	img, err := rimage.ReadImageFromFile(path)
	if err != nil {
		return nil, path, err
	}
	return img, path, nil
}

// Len is the number of files the source was built with.
func (fs *FileImageSource) Len() int {
	return len(fs.paths)
}

// SliceImageSource serves in-memory images.
type SliceImageSource struct {
	Images []image.Image
	next   int
}

// Next returns the next image, named by its index.
func (ss *SliceImageSource) Next(ctx context.Context) (image.Image, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if ss.next >= len(ss.Images) {
		return nil, "", io.EOF
	}
	ss.next++
	return ss.Images[ss.next-1], fmt.Sprintf("image_%03d", ss.next-1), nil
}

// Config describes a calibration run over a set of chessboard images.
type Config struct {
	Pattern      chessboard.PatternSize `json:"pattern"`
	SquareSize   float64                `json:"square_size"`
	SubPixWindow int                    `json:"subpix_window"`
	Criteria     rimage.TermCriteria    `json:"criteria"`
	Options      Options                `json:"options"`
	// DebugDir, when set, receives an image per input with the saddle candidates and detected corners drawn.
	DebugDir string `json:"debug_dir,omitempty"`
}

// DefaultConfig is the 7x6 unit-square board refined in an 11x11 window.
func DefaultConfig() Config {
	return Config{
		Pattern:      chessboard.DefaultPatternSize,
		SquareSize:   1,
		SubPixWindow: rimage.DefaultSubPixHalfWindow,
		Criteria:     rimage.DefaultSubPixCriteria,
	}
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if err := cfg.Pattern.CheckValid(); err != nil {
		return err
	}
	if cfg.SquareSize <= 0 {
		return errors.Errorf("square size must be positive, got %v", cfg.SquareSize)
	}
	if cfg.SubPixWindow < 1 {
		return errors.Errorf("sub-pixel window must be at least 1, got %d", cfg.SubPixWindow)
	}
	if cfg.Criteria.MaxIter < 0 || cfg.Criteria.Epsilon < 0 {
		return errors.New("termination criteria must not be negative")
	}
	return nil
}

// CalibrateFromImages finds the chessboard in every image of src and calibrates from the ones where it was
// found. Images without a complete board are skipped.
func CalibrateFromImages(ctx context.Context, src ImageSource, cfg Config, logger logging.Logger) (*Calibration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("calib")
	}
	detection := chessboard.DefaultDetectionConf()
	detection.SubPixHalfWindow = cfg.SubPixWindow
	detection.Criteria = cfg.Criteria
	objectPoints := chessboard.ObjectPoints(cfg.Pattern, cfg.SquareSize)

	var (
		views     []View
		imageSize image.Point
		seen      int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, name, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			logger.Warnw("cannot read calibration image", "image", name, "error", err)
			continue
		}
		seen++
		size := img.Bounds().Size()
		if imageSize == (image.Point{}) {
			imageSize = size
		} else if size != imageSize {
			logger.Warnw("skipping image with a different size", "image", name, "size", size, "expected", imageSize)
			continue
		}

		gray := rimage.MakeGray(img)
		corners, found := chessboard.FindChessboardCorners(gray, cfg.Pattern, &detection)
		if cfg.DebugDir != "" {
			writeDebugImage(gray, name, corners, &detection, cfg.DebugDir, logger)
		}
		if !found {
			logger.Debugw("chessboard not found", "image", name)
			continue
		}
		logger.Debugw("chessboard found", "image", name)
		views = append(views, View{Name: name, ImagePoints: corners, ObjectPoints: objectPoints})
	}
	if len(views) == 0 {
		return nil, errors.Wrapf(ErrNoCalibrationViews, "chessboard not found in any of %d images", seen)
	}
	logger.Infow("calibrating", "views", len(views), "images", seen)
	return CalibrateCamera(views, imageSize, &cfg.Options, logger)
}

func writeDebugImage(
	gray *image.Gray,
	name string,
	corners []r2.Point,
	detection *chessboard.DetectionConfiguration,
	dir string,
	logger logging.Logger,
) {
	candidates, err := chessboard.FindSaddleCandidates(gray, &detection.Saddle)
	if err != nil {
		logger.Debugw("no saddle candidates for debug image", "image", name, "error", err)
	}
	out := filepath.Join(dir, filepath.Base(name)+".saddles.png")
	if err := chessboard.PlotSaddleMap(gray, candidates, corners, out); err != nil {
		logger.Warnw("cannot write debug image", "file", out, "error", err)
	}
}
