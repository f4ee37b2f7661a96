package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/fiducial/rimage"
	"go.viam.com/fiducial/rimage/calib"
	"go.viam.com/fiducial/rimage/detection/chessboard"
	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/vision/marker"
	"go.viam.com/fiducial/vision/tracker"
)

// CalibrateAction calibrates from chessboard images and writes the camera model.
func CalibrateAction(c *cli.Context) error {
	logger := newLogger(c)
	defer utils.UncheckedErrorFunc(logger.Sync)

	cfg := calib.DefaultConfig()
	cfg.Pattern = chessboard.PatternSize{Cols: c.Int(flagCols), Rows: c.Int(flagRows)}
	cfg.SquareSize = c.Float64(flagSquare)
	cfg.DebugDir = c.String(flagDebugDir)
	cfg.Options = calib.Options{
		FixPrincipalPoint: c.Bool(flagFixPrincipalPoint),
		ZeroTangentDist:   c.Bool(flagZeroTangentDist),
		FixK3:             c.Bool(flagFixK3),
	}

	src, err := calib.NewGlobImageSource(c.String(flagImages))
	if err != nil {
		return err
	}
	if src.Len() == 0 {
		return errors.Wrapf(calib.ErrNoCalibrationViews, "no images match %q", c.String(flagImages))
	}
	cal, err := calib.CalibrateFromImages(c.Context, src, cfg, logger)
	if err != nil {
		return err
	}
	if err := cal.Camera.WriteJSONFile(c.String(flagOutput)); err != nil {
		return err
	}
	if path := c.String(flagPlot); path != "" {
		if err := calib.PlotViewErrors(cal, path); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "calibrated from %d of %d images, rms %.4f px, camera model written to %s\n",
		len(cal.PerViewRMS), src.Len(), cal.RMS, c.String(flagOutput))
	return nil
}

// TrackAction runs the tracker over a directory of frames.
func TrackAction(c *cli.Context) error {
	logger := newLogger(c)
	defer utils.UncheckedErrorFunc(logger.Sync)

	cfg := tracker.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = tracker.LoadConfig(path); err != nil {
			return err
		}
	}
	if c.Bool(flagAllDictionaries) {
		cfg.Dictionaries = tracker.AllDictionariesConfig().Dictionaries
	}
	if names := c.StringSlice(flagDictionary); len(names) > 0 {
		cfg.Dictionaries = lo.Map(names, func(name string, _ int) tracker.DictionaryConfig {
			return tracker.DictionaryConfig{Name: name}
		})
	}
	if c.IsSet(flagMarkerLength) {
		cfg.MarkerLength = c.Float64(flagMarkerLength)
	}
	if path := c.String(flagCamera); path != "" {
		cfg.CameraFile = path
	}
	if cfg.CameraFile == "" {
		return transform.NewNoIntrinsicsError("pass --camera or set camera_file in the tracker config")
	}
	camera, err := transform.NewPinholeCameraModelFromJSONFile(cfg.CameraFile)
	if err != nil {
		return err
	}

	tr, err := tracker.NewTracker(cfg, camera, logger)
	if err != nil {
		return err
	}
	source, err := tracker.NewDirectorySource(c.String(flagFrames))
	if err != nil {
		return err
	}

	var results tracker.ResultSink
	if path := c.String(flagResults); path != "" {
		if results, err = tracker.NewJSONLinesFileSink(path); err != nil {
			return err
		}
	} else {
		results = tracker.NewJSONLinesSink(c.App.Writer)
	}
	sink := tracker.MultiSink{results}
	if dir := c.String(flagOverlayDir); dir != "" {
		overlay, err := tracker.NewOverlaySink(dir, camera, cfg.MarkerLength)
		if err != nil {
			return errors.Wrap(multierr.Combine(err, results.Close()), "cannot set up overlays")
		}
		sink = append(sink, overlay)
	}

	runErr := tr.Run(c.Context, source, sink)
	if errors.Is(runErr, context.Canceled) {
		logger.Info("interrupted")
		runErr = nil
	}
	return multierr.Combine(runErr, sink.Close())
}

// DrawMarkerAction writes the image of one marker.
func DrawMarkerAction(c *cli.Context) error {
	var dict *marker.Dictionary
	var err error
	if path := c.String(flagDictionaryFile); path != "" {
		dict, err = marker.LoadDictionaryFile(path, "")
	} else {
		dict, err = marker.PredefinedDictionary(c.String(flagDictionary))
	}
	if err != nil {
		return err
	}
	img, err := marker.DrawMarker(dict, c.Int(flagID), c.Int(flagSize), c.Int(flagBorder))
	if err != nil {
		return err
	}
	return rimage.WriteImageToFile(c.String(flagOutput), img)
}
