package marker

import (
	"embed"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// The tables are OpenCV's predefined dictionaries in the writeDictionary layout. Smaller dictionaries of a
// family are the leading ids of its largest table.
//
//go:embed dictionaries/*.yml
var predefinedFiles embed.FS

type predefinedTable struct {
	file              string
	size              int
	maxCorrectionBits int
}

var predefinedTables = map[string]predefinedTable{
	"4X4_50":          {"4x4_1000", 50, 1},
	"4X4_100":         {"4x4_1000", 100, 1},
	"4X4_250":         {"4x4_1000", 250, 1},
	"4X4_1000":        {"4x4_1000", 1000, 0},
	"5X5_50":          {"5x5_1000", 50, 3},
	"5X5_100":         {"5x5_1000", 100, 3},
	"5X5_250":         {"5x5_1000", 250, 2},
	"5X5_1000":        {"5x5_1000", 1000, 2},
	"6X6_50":          {"6x6_1000", 50, 6},
	"6X6_100":         {"6x6_1000", 100, 5},
	"6X6_250":         {"6x6_1000", 250, 5},
	"6X6_1000":        {"6x6_1000", 1000, 4},
	"7X7_50":          {"7x7_1000", 50, 9},
	"7X7_100":         {"7x7_1000", 100, 8},
	"7X7_250":         {"7x7_1000", 250, 8},
	"7X7_1000":        {"7x7_1000", 1000, 6},
	ArucoOriginal:     {"aruco_original", 1024, 1},
	"APRILTAG_16H5":   {"apriltag_16h5", 30, 2},
	"APRILTAG_25H9":   {"apriltag_25h9", 35, 4},
	"APRILTAG_36H10":  {"apriltag_36h10", 2320, 4},
	"APRILTAG_36H11":  {"apriltag_36h11", 587, 5},
	"ARUCO_MIP_36H12": {"aruco_mip_36h12", 250, 5},
}

// canonicalName folds the spellings OpenCV accepts for one dictionary: an optional DICT_ prefix and either case,
// so DICT_APRILTAG_36h11 and APRILTAG_36H11 name the same table.
func canonicalName(name string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "DICT_")
}

// PredefinedDictionaryNames lists every built in dictionary without the DICT_ prefix.
func PredefinedDictionaryNames() []string {
	names := make([]string, 0, len(predefinedTables))
	for name := range predefinedTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PredefinedDictionary returns one of OpenCV's predefined dictionaries, for example DICT_4X4_50,
// DICT_APRILTAG_36h11 or ARUCO_ORIGINAL. The DICT_ prefix is optional and case is ignored.
func PredefinedDictionary(name string) (*Dictionary, error) {
	canonical := canonicalName(name)
	table, ok := predefinedTables[canonical]
	if !ok {
		return nil, errors.Errorf("dictionary %q is not built in, load it from a dictionary file", name)
	}
	data, err := predefinedFiles.ReadFile("dictionaries/" + table.file + ".yml")
	if err != nil {
		return nil, errors.Wrapf(err, "missing table for dictionary %q", canonical)
	}
	full, err := ParseDictionary(data, canonical)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt table for dictionary %q", canonical)
	}
	if full.Len() < table.size {
		return nil, errors.Errorf("table %q has %d markers, dictionary %q needs %d",
			table.file, full.Len(), canonical, table.size)
	}
	codewords := make([]uint64, table.size)
	for id := range codewords {
		codewords[id] = full.codes[id][0]
	}
	return NewDictionary(canonical, full.MarkerSize, table.maxCorrectionBits, codewords)
}
