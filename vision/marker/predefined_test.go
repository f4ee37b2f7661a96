package marker

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"
)

func TestPredefinedDictionarySizes(t *testing.T) {
	for _, tc := range []struct {
		name       string
		markers    int
		markerSize int
		correction int
	}{
		{"DICT_4X4_50", 50, 4, 1},
		{"DICT_4X4_100", 100, 4, 1},
		{"DICT_4X4_250", 250, 4, 1},
		{"DICT_4X4_1000", 1000, 4, 0},
		{"DICT_5X5_50", 50, 5, 3},
		{"DICT_5X5_250", 250, 5, 2},
		{"DICT_6X6_100", 100, 6, 5},
		{"DICT_6X6_1000", 1000, 6, 4},
		{"DICT_7X7_50", 50, 7, 9},
		{"DICT_7X7_1000", 1000, 7, 6},
		{"DICT_APRILTAG_16h5", 30, 4, 2},
		{"DICT_APRILTAG_25h9", 35, 5, 4},
		{"DICT_APRILTAG_36h10", 2320, 6, 4},
		{"DICT_APRILTAG_36h11", 587, 6, 5},
		{"DICT_ARUCO_MIP_36h12", 250, 6, 5},
		{"DICT_ARUCO_ORIGINAL", 1024, 5, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := PredefinedDictionary(tc.name)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, d.Len(), test.ShouldEqual, tc.markers)
			test.That(t, d.MarkerSize, test.ShouldEqual, tc.markerSize)
			test.That(t, d.MaxCorrectionBits, test.ShouldEqual, tc.correction)
			test.That(t, d.Name, test.ShouldEqual, canonicalName(tc.name))
		})
	}
}

func TestPredefinedDictionaryNames(t *testing.T) {
	names := PredefinedDictionaryNames()
	test.That(t, len(names), test.ShouldEqual, 22)
	test.That(t, names, test.ShouldContain, "4X4_50")
	test.That(t, names, test.ShouldContain, ArucoOriginal)
	for _, name := range names {
		_, err := PredefinedDictionary(name)
		test.That(t, err, test.ShouldBeNil)
	}

	_, err := PredefinedDictionary("DICT_4X4_64")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not built in")
}

func TestPredefinedDictionaryAliases(t *testing.T) {
	want, err := PredefinedDictionary("DICT_APRILTAG_36h11")
	test.That(t, err, test.ShouldBeNil)
	for _, alias := range []string{"DICT_APRILTAG_36H11", "APRILTAG_36H11", "apriltag_36h11", " dict_apriltag_36h11 "} {
		got, err := PredefinedDictionary(alias)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got.Name, test.ShouldEqual, "APRILTAG_36H11")
		if diff := cmp.Diff(want.codes, got.codes); diff != "" {
			t.Errorf("%s differs from DICT_APRILTAG_36h11 (-want +got):\n%s", alias, diff)
		}
	}

	// OpenCV stores id 0 of DICT_APRILTAG_36h11 as 001000011010000101000110101110101011
	code, err := want.Codeword(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, CodeToBits(code, 6)[0], test.ShouldResemble, []uint8{0, 0, 1, 0, 0, 0})
	test.That(t, CodeToBits(code, 6)[5], test.ShouldResemble, []uint8{1, 0, 1, 0, 1, 1})
}

func TestPredefinedDictionaryPrefixes(t *testing.T) {
	for _, family := range []string{"4X4", "5X5", "6X6", "7X7"} {
		full, err := PredefinedDictionary(family + "_1000")
		test.That(t, err, test.ShouldBeNil)
		for _, size := range []string{"_50", "_100", "_250"} {
			small, err := PredefinedDictionary(family + size)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, small.MarkerSize, test.ShouldEqual, full.MarkerSize)
			if diff := cmp.Diff(full.codes[:small.Len()], small.codes); diff != "" {
				t.Errorf("%s%s is not a prefix of %s_1000 (-want +got):\n%s", family, size, family, diff)
			}
		}
	}

	// id 0 of DICT_4X4_50 is the bytes {181, 50}
	d, err := PredefinedDictionary("DICT_4X4_50")
	test.That(t, err, test.ShouldBeNil)
	code, err := d.Codeword(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, code, test.ShouldEqual, uint64(0x4cad))
}

func TestPredefinedArucoOriginalMatchesGenerator(t *testing.T) {
	embedded, err := PredefinedDictionary(ArucoOriginal)
	test.That(t, err, test.ShouldBeNil)
	generated := NewArucoOriginalDictionary()
	test.That(t, embedded.MaxCorrectionBits, test.ShouldEqual, generated.MaxCorrectionBits)
	if diff := cmp.Diff(generated.codes, embedded.codes); diff != "" {
		t.Errorf("generated ARUCO_ORIGINAL differs from the embedded table (-want +got):\n%s", diff)
	}
}

func TestDetectPredefinedMarkers(t *testing.T) {
	for _, tc := range []struct {
		name string
		id   int
		side int
	}{
		{"DICT_4X4_50", 7, 120},
		{"DICT_6X6_250", 201, 160},
		{"DICT_APRILTAG_36h11", 3, 160},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dict, err := PredefinedDictionary(tc.name)
			test.That(t, err, test.ShouldBeNil)
			canvas := canvasWithMarker(t, dict, tc.id, tc.side, 320, 300, image.Pt(80, 70))
			markers, _, err := DetectMarkers(canvas, dict, nil)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(markers), test.ShouldEqual, 1)
			test.That(t, markers[0].ID, test.ShouldEqual, tc.id)
			test.That(t, markers[0].Distance, test.ShouldEqual, 0)
		})
	}
}
