package marker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"
)

// codewords with pairwise distance at least 4 over all rotations
var testCodewords = []uint64{0xb3a5, 0x4e1d, 0x9c63}

const testDictionaryYAML = `%YAML:1.0
---
nmarkers: 3
markersize: 4
maxCorrectionBits: 3
marker_0: 1010010111001101
marker_1: "1011100001110010"
marker_2: "1100011000111001"
`

func TestArucoOriginalDictionary(t *testing.T) {
	d := NewArucoOriginalDictionary()
	test.That(t, d.Name, test.ShouldEqual, ArucoOriginal)
	test.That(t, d.Len(), test.ShouldEqual, 1024)
	test.That(t, d.MarkerSize, test.ShouldEqual, 5)
	test.That(t, d.MaxCorrectionBits, test.ShouldEqual, 1)

	first, err := d.Bits(0)
	test.That(t, err, test.ShouldBeNil)
	for _, row := range first {
		test.That(t, row, test.ShouldResemble, []uint8{1, 0, 0, 0, 0})
	}
	last, err := d.Bits(1023)
	test.That(t, err, test.ShouldBeNil)
	for _, row := range last {
		test.That(t, row, test.ShouldResemble, []uint8{0, 1, 1, 1, 0})
	}
	// id 6 = 00 00 00 01 10: rows 0x10, 0x10, 0x10, 0x17, 0x09
	six, err := d.Bits(6)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, six[3], test.ShouldResemble, []uint8{1, 0, 1, 1, 1})
	test.That(t, six[4], test.ShouldResemble, []uint8{0, 1, 0, 0, 1})

	_, err = d.Bits(1024)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIdentifyAllRotations(t *testing.T) {
	d := NewArucoOriginalDictionary()
	for _, id := range []int{0, 1, 7, 213, 777, 1000} {
		code, err := d.Codeword(id)
		test.That(t, err, test.ShouldBeNil)
		for r := 0; r < 4; r++ {
			gotID, gotRotation, dist := d.Identify(code)
			test.That(t, gotID, test.ShouldEqual, id)
			test.That(t, gotRotation, test.ShouldEqual, r)
			test.That(t, dist, test.ShouldEqual, 0)
			code = rotateCW(code, d.MarkerSize)
		}
	}

	// inner cells all black are 5 bits from the closest codeword
	id, _, dist := d.Identify(0)
	test.That(t, id, test.ShouldBeGreaterThanOrEqualTo, 0)
	test.That(t, dist, test.ShouldEqual, 5)
}

func TestIdentifyTies(t *testing.T) {
	d, err := NewDictionary("dup", 3, 1, []uint64{0x1a5, 0x1a5, 0x0f0})
	test.That(t, err, test.ShouldBeNil)
	id, rotation, dist := d.Identify(0x1a5)
	test.That(t, id, test.ShouldEqual, 0)
	test.That(t, rotation, test.ShouldEqual, 0)
	test.That(t, dist, test.ShouldEqual, 0)
}

func TestRotateCW(t *testing.T) {
	grid := [][]uint8{
		{1, 1, 0},
		{0, 0, 0},
		{0, 0, 1},
	}
	rotated := CodeToBits(rotateCW(BitsToCode(grid), 3), 3)
	test.That(t, rotated, test.ShouldResemble, [][]uint8{
		{0, 0, 1},
		{0, 0, 1},
		{1, 0, 0},
	})
	code := BitsToCode(grid)
	full := code
	for i := 0; i < 4; i++ {
		full = rotateCW(full, 3)
	}
	test.That(t, full, test.ShouldEqual, code)
}

func TestNewDictionaryErrors(t *testing.T) {
	_, err := NewDictionary("small", 1, 0, []uint64{1})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDictionary("big", 9, 0, []uint64{1})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDictionary("empty", 4, 0, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDictionary("overflow", 3, 0, []uint64{1 << 9})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDictionary("negative", 3, -1, []uint64{1})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDictionary("eight", 8, 0, []uint64{^uint64(0)})
	test.That(t, err, test.ShouldBeNil)
}

func TestParseDictionary(t *testing.T) {
	d, err := ParseDictionary([]byte(testDictionaryYAML), "test4")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Name, test.ShouldEqual, "test4")
	test.That(t, d.MarkerSize, test.ShouldEqual, 4)
	test.That(t, d.MaxCorrectionBits, test.ShouldEqual, 3)
	test.That(t, d.Len(), test.ShouldEqual, 3)
	for id, want := range testCodewords {
		got, err := d.Codeword(id)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}

	asJSON := `{"nmarkers": 1, "markersize": 2, "maxCorrectionBits": 0, "marker_0": "1001"}`
	j, err := ParseDictionary([]byte(asJSON), "json")
	test.That(t, err, test.ShouldBeNil)
	code, err := j.Codeword(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, code, test.ShouldEqual, uint64(0b1001))

	for name, bad := range map[string]string{
		"missing key":   "nmarkers: 1\nmarkersize: 2\nmarker_0: \"1001\"\n",
		"short marker":  "nmarkers: 1\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0: \"101\"\n",
		"bad character": "nmarkers: 1\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0: \"10x1\"\n",
		"few markers":   "nmarkers: 2\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0: \"1001\"\n",
		"not a map":     "- 1\n- 2\n",
		"bad size":      "nmarkers: 1\nmarkersize: 12\nmaxCorrectionBits: 0\nmarker_0: \"1\"\n",
		"bad count":     "nmarkers: one\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0: \"1001\"\n",
		"correction":    "nmarkers: 1\nmarkersize: 2\nmaxCorrectionBits: 5\nmarker_0: \"1001\"\n",
		"wide runes":    "nmarkers: 1\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0: \"1é1\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDictionary([]byte(bad), name)
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestDictionaryFileRoundTrip(t *testing.T) {
	d, err := NewDictionary("roundtrip", 4, 3, testCodewords)
	test.That(t, err, test.ShouldBeNil)
	data, err := d.EncodeYAML()
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "my_dict.yml")
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
	loaded, err := LoadDictionaryFile(path, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.Name, test.ShouldEqual, "my_dict")
	if diff := cmp.Diff(d.codes, loaded.codes); diff != "" {
		t.Errorf("codewords differ (-want +got):\n%s", diff)
	}
	test.That(t, loaded.MaxCorrectionBits, test.ShouldEqual, 3)

	_, err = LoadDictionaryFile(filepath.Join(t.TempDir(), "missing.yml"), "")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseDictionaryMalformedValues(t *testing.T) {
	sequence := testDictionaryYAML + "marker_3: [1, 0, 1]\n"
	_, err := ParseDictionary([]byte(sequence), "seq")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"marker_3" must be a single value`)

	nested := "nmarkers: 1\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0:\n  bits: \"1001\"\n"
	_, err = ParseDictionary([]byte(nested), "nested")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"marker_0" must be a single value`)

	twice := "nmarkers: 1\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0: \"1001\"\nmarker_0: \"0110\"\n"
	_, err = ParseDictionary([]byte(twice), "twice")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "marker_0")

	// a multi-byte character counts as one cell
	_, err = ParseDictionary([]byte("nmarkers: 1\nmarkersize: 2\nmaxCorrectionBits: 0\nmarker_0: \"10é1\"\n"), "rune")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "non binary character")
}
