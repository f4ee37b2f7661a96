// Package main is the fiducial command: camera calibration from chessboard images and marker pose tracking.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"go.viam.com/fiducial/logging"
)

const (
	flagDebug = "debug"

	flagImages            = "images"
	flagCols              = "cols"
	flagRows              = "rows"
	flagSquare            = "square"
	flagOutput            = "output"
	flagPlot              = "plot"
	flagDebugDir          = "debug-dir"
	flagFixPrincipalPoint = "fix-principal-point"
	flagZeroTangentDist   = "zero-tangent-dist"
	flagFixK3             = "fix-k3"

	flagConfig          = "config"
	flagCamera          = "camera"
	flagFrames          = "frames"
	flagResults         = "results"
	flagOverlayDir      = "overlay-dir"
	flagDictionary      = "dictionary"
	flagAllDictionaries = "all-dictionaries"
	flagMarkerLength    = "marker-length"

	flagDictionaryFile = "dictionary-file"
	flagID             = "id"
	flagSize           = "size"
	flagBorder         = "border"
)

func newApp() *cli.App {
	return &cli.App{
		Name:            "fiducial",
		Usage:           "calibrate cameras and track square fiducial markers",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "calibrate",
				Usage:     "estimate camera intrinsics and distortion from chessboard images",
				UsageText: "fiducial calibrate --images <glob-or-dir> --output <camera.json> [other options]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagImages,
						Usage:    "glob or directory of chessboard images",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagOutput,
						Aliases:  []string{"o"},
						Usage:    "write the camera model JSON to `FILE`",
						Required: true,
					},
					&cli.IntFlag{
						Name:  flagCols,
						Usage: "inner corners per chessboard row",
						Value: 7,
					},
					&cli.IntFlag{
						Name:  flagRows,
						Usage: "inner corners per chessboard column",
						Value: 6,
					},
					&cli.Float64Flag{
						Name:  flagSquare,
						Usage: "chessboard square side length",
						Value: 1,
					},
					&cli.StringFlag{
						Name:  flagPlot,
						Usage: "save a chart of the per image reprojection error to `FILE`",
					},
					&cli.StringFlag{
						Name:  flagDebugDir,
						Usage: "save the detected corners of every image into `DIR`",
					},
					&cli.BoolFlag{
						Name:  flagFixPrincipalPoint,
						Usage: "keep the principal point at the image center",
					},
					&cli.BoolFlag{
						Name:  flagZeroTangentDist,
						Usage: "assume no tangential distortion",
					},
					&cli.BoolFlag{
						Name:  flagFixK3,
						Usage: "assume no sixth order radial distortion",
					},
				},
				Action: CalibrateAction,
			},
			{
				Name:      "track",
				Usage:     "detect markers and estimate their poses in a directory of frames",
				UsageText: "fiducial track --frames <dir> --camera <camera.json> [other options]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagFrames,
						Usage:    "directory of frames, read in name order",
						Required: true,
					},
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load tracker configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:  flagCamera,
						Usage: "camera model JSON written by calibrate; overrides the config's camera_file",
					},
					&cli.StringSliceFlag{
						Name:  flagDictionary,
						Usage: "dictionary to search for, in order; overrides the config's dictionaries",
					},
					&cli.BoolFlag{
						Name:  flagAllDictionaries,
						Usage: "search for every OpenCV dictionary family in turn",
					},
					&cli.Float64Flag{
						Name:  flagMarkerLength,
						Usage: "printed marker side length; overrides the config",
					},
					&cli.StringFlag{
						Name:  flagResults,
						Usage: "write one JSON result per frame to `FILE` instead of stdout",
					},
					&cli.StringFlag{
						Name:  flagOverlayDir,
						Usage: "save every frame with its detections drawn into `DIR`",
					},
				},
				Action: TrackAction,
			},
			{
				Name:      "draw-marker",
				Usage:     "render a marker image to print",
				UsageText: "fiducial draw-marker --id <id> --output <marker.png> [other options]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     flagID,
						Usage:    "marker id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagOutput,
						Aliases:  []string{"o"},
						Usage:    "write the marker image to `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagDictionary,
						Usage: "built in dictionary name",
						Value: "ARUCO_ORIGINAL",
					},
					&cli.StringFlag{
						Name:  flagDictionaryFile,
						Usage: "load the dictionary from `FILE` instead",
					},
					&cli.IntFlag{
						Name:  flagSize,
						Usage: "side length in pixels",
						Value: 200,
					},
					&cli.IntFlag{
						Name:  flagBorder,
						Usage: "border width in cells",
						Value: 1,
					},
				},
				Action: DrawMarkerAction,
			},
		},
	}
}

// newLogger logs to the app's error writer so results can go to stdout.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewWriterLogger("fiducial", c.App.ErrWriter)
	if !c.Bool(flagDebug) {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		//nolint:gocritic
		log.Fatal(err)
	}
}
