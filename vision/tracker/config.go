// Package tracker runs marker detection and pose estimation over a stream of frames, trying every configured
// dictionary in order on each frame.
package tracker

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/fiducial/vision/marker"
)

// DefaultMarkerLength is the printed marker side length used when none is configured.
const DefaultMarkerLength = 0.05

// DictionaryConfig names one dictionary to search for. Without a file the name must be a built in dictionary.
type DictionaryConfig struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
}

// label is the name results are reported under.
func (dc DictionaryConfig) label() string {
	if dc.Name != "" {
		return dc.Name
	}
	return strings.TrimSuffix(filepath.Base(dc.File), filepath.Ext(dc.File))
}

// Config describes a tracking run. It is not modified once a Tracker is built from it.
type Config struct {
	Dictionaries []DictionaryConfig        `json:"dictionaries"`
	MarkerLength float64                   `json:"marker_length"`
	Detector     marker.DetectorParameters `json:"detector"`
	// EstimateRejectedPoses also estimates poses for quads no dictionary accepted. The result is only useful
	// for debugging thresholds.
	EstimateRejectedPoses bool   `json:"estimate_rejected_poses"`
	CameraFile            string `json:"camera_file,omitempty"`
}

// DefaultDetectorParameters are the marker defaults with the higher threshold constant used for tracking.
func DefaultDetectorParameters() marker.DetectorParameters {
	params := marker.DefaultDetectorParameters()
	params.AdaptiveThreshConstant = 10
	return params
}

// DefaultConfig searches for ARUCO_ORIGINAL markers of DefaultMarkerLength.
func DefaultConfig() Config {
	return Config{
		Dictionaries:          []DictionaryConfig{{Name: marker.ArucoOriginal}},
		MarkerLength:          DefaultMarkerLength,
		Detector:              DefaultDetectorParameters(),
		EstimateRejectedPoses: true,
	}
}

// AllDictionaryNames is every OpenCV dictionary family in the order the multi-dictionary tracker scans them. The
// AprilTag families appear under both spellings, so each is reported twice.
var AllDictionaryNames = []string{
	"DICT_4X4_100", "DICT_4X4_1000", "DICT_4X4_250", "DICT_4X4_50",
	"DICT_5X5_100", "DICT_5X5_1000", "DICT_5X5_250", "DICT_5X5_50",
	"DICT_6X6_100", "DICT_6X6_1000", "DICT_6X6_250", "DICT_6X6_50",
	"DICT_7X7_100", "DICT_7X7_1000", "DICT_7X7_250", "DICT_7X7_50",
	"DICT_APRILTAG_16H5", "DICT_APRILTAG_16h5",
	"DICT_APRILTAG_25H9", "DICT_APRILTAG_25h9",
	"DICT_APRILTAG_36H10", "DICT_APRILTAG_36H11",
	"DICT_APRILTAG_36h10", "DICT_APRILTAG_36h11",
	"DICT_ARUCO_ORIGINAL",
}

// AllDictionariesConfig is DefaultConfig scanning AllDictionaryNames.
func AllDictionariesConfig() Config {
	cfg := DefaultConfig()
	cfg.Dictionaries = make([]DictionaryConfig, len(AllDictionaryNames))
	for i, name := range AllDictionaryNames {
		cfg.Dictionaries[i] = DictionaryConfig{Name: name}
	}
	return cfg
}

// LoadConfig reads a JSON config. Keys missing from the file keep their DefaultConfig values and relative
// dictionary and camera paths are resolved against the file's directory.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "cannot read tracker config")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "cannot parse tracker config %q", path)
	}
	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range cfg.Dictionaries {
		cfg.Dictionaries[i].File = resolve(cfg.Dictionaries[i].File)
	}
	cfg.CameraFile = resolve(cfg.CameraFile)
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid tracker config %q", path)
	}
	return cfg, nil
}

// Validate fills unset values with defaults and reports every invalid one.
func (cfg *Config) Validate() error {
	if len(cfg.Dictionaries) == 0 {
		cfg.Dictionaries = []DictionaryConfig{{Name: marker.ArucoOriginal}}
	}
	if cfg.MarkerLength == 0 {
		cfg.MarkerLength = DefaultMarkerLength
	}
	if cfg.Detector == (marker.DetectorParameters{}) {
		cfg.Detector = DefaultDetectorParameters()
	}

	var err error
	if cfg.MarkerLength < 0 || math.IsNaN(cfg.MarkerLength) || math.IsInf(cfg.MarkerLength, 0) {
		err = multierr.Append(err, errors.Errorf("marker length must be positive, got %v", cfg.MarkerLength))
	}
	seen := map[string]bool{}
	for i, d := range cfg.Dictionaries {
		if d.Name == "" && d.File == "" {
			err = multierr.Append(err, errors.Errorf("dictionary %d needs a name or a file", i))
			continue
		}
		if seen[d.label()] {
			err = multierr.Append(err, errors.Errorf("dictionary %q is listed twice", d.label()))
		}
		seen[d.label()] = true
	}
	if detErr := cfg.Detector.Validate(); detErr != nil {
		err = multierr.Append(err, errors.Wrap(detErr, "detector"))
	}
	return err
}

func (cfg *Config) loadDictionaries() ([]*marker.Dictionary, error) {
	dicts := make([]*marker.Dictionary, 0, len(cfg.Dictionaries))
	for _, dc := range cfg.Dictionaries {
		var d *marker.Dictionary
		var err error
		if dc.File != "" {
			d, err = marker.LoadDictionaryFile(dc.File, dc.Name)
		} else {
			d, err = marker.PredefinedDictionary(dc.Name)
		}
		if err != nil {
			return nil, err
		}
		dicts = append(dicts, d)
	}
	return dicts, nil
}
