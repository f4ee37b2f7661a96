// Package marker detects square binary fiducial markers, identifies them against a dictionary of codewords and
// estimates their pose relative to a calibrated camera.
package marker

import (
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// maxMarkerSize keeps a codeword inside a uint64.
const maxMarkerSize = 8

// ArucoOriginal is the name of the built-in dictionary of the original ArUco library.
const ArucoOriginal = "ARUCO_ORIGINAL"

// A Dictionary is a family of markerSize x markerSize bit patterns. Each id maps to one codeword; bits are
// stored row-major starting at the least significant bit, 1 meaning a white cell. A marker found up to
// MaxCorrectionBits bits away from a codeword, at any of the four rotations, can be corrected to it.
type Dictionary struct {
	Name              string
	MarkerSize        int
	MaxCorrectionBits int
	// codes[id][r] is the codeword rotated clockwise r quarter turns
	codes [][4]uint64
}

// NewDictionary builds a dictionary from unrotated codewords.
func NewDictionary(name string, markerSize, maxCorrectionBits int, codewords []uint64) (*Dictionary, error) {
	if markerSize < 2 || markerSize > maxMarkerSize {
		return nil, errors.Errorf("marker size must be between 2 and %d, got %d", maxMarkerSize, markerSize)
	}
	if maxCorrectionBits < 0 {
		return nil, errors.Errorf("max correction bits must not be negative, got %d", maxCorrectionBits)
	}
	if len(codewords) == 0 {
		return nil, errors.Errorf("dictionary %q has no codewords", name)
	}
	mask := codeMask(markerSize)
	d := &Dictionary{Name: name, MarkerSize: markerSize, MaxCorrectionBits: maxCorrectionBits}
	d.codes = make([][4]uint64, len(codewords))
	for id, c := range codewords {
		if c&^mask != 0 {
			return nil, errors.Errorf("codeword %d of dictionary %q has more than %d bits", id, name, markerSize*markerSize)
		}
		d.codes[id][0] = c
		for r := 1; r < 4; r++ {
			d.codes[id][r] = rotateCW(d.codes[id][r-1], markerSize)
		}
	}
	return d, nil
}

func codeMask(n int) uint64 {
	if n*n == 64 {
		return ^uint64(0)
	}
	return 1<<uint(n*n) - 1
}

// rotateCW turns an n x n bit grid a quarter turn clockwise: out[r][c] = in[n-1-c][r].
func rotateCW(code uint64, n int) uint64 {
	var out uint64
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if code>>uint((n-1-c)*n+r)&1 == 1 {
				out |= 1 << uint(r*n+c)
			}
		}
	}
	return out
}

// Len is the number of ids in the dictionary.
func (d *Dictionary) Len() int {
	return len(d.codes)
}

// Codeword returns the unrotated codeword of id.
func (d *Dictionary) Codeword(id int) (uint64, error) {
	if id < 0 || id >= len(d.codes) {
		return 0, errors.Errorf("id %d is out of range for dictionary %q with %d markers", id, d.Name, len(d.codes))
	}
	return d.codes[id][0], nil
}

// Bits returns the inner bit grid of id, 1 meaning white.
func (d *Dictionary) Bits(id int) ([][]uint8, error) {
	code, err := d.Codeword(id)
	if err != nil {
		return nil, err
	}
	return CodeToBits(code, d.MarkerSize), nil
}

// Identify finds the codeword closest to code in Hamming distance over all rotations. Ties go to the lowest id
// and then the lowest rotation. rotation is the number of clockwise quarter turns taking the codeword to code.
func (d *Dictionary) Identify(code uint64) (id, rotation, distance int) {
	id, rotation, distance = -1, 0, d.MarkerSize*d.MarkerSize+1
	for i, rots := range d.codes {
		for r, c := range rots {
			if dist := bits.OnesCount64(code ^ c); dist < distance {
				id, rotation, distance = i, r, dist
			}
		}
	}
	return id, rotation, distance
}

// CodeToBits unpacks a row-major codeword into an n x n grid.
func CodeToBits(code uint64, n int) [][]uint8 {
	out := make([][]uint8, n)
	for r := range out {
		out[r] = make([]uint8, n)
		for c := range out[r] {
			out[r][c] = uint8(code >> uint(r*n+c) & 1)
		}
	}
	return out
}

// BitsToCode packs an n x n grid into a row-major codeword. Any non-zero cell counts as 1.
func BitsToCode(grid [][]uint8) uint64 {
	n := len(grid)
	var code uint64
	for r, row := range grid {
		for c, v := range row {
			if v != 0 {
				code |= 1 << uint(r*n+c)
			}
		}
	}
	return code
}

// NewArucoOriginalDictionary builds the 1024 marker 5x5 dictionary of the original ArUco library, where every
// row encodes two bits of the id with one of four five-bit words. It equals the embedded ARUCO_ORIGINAL table.
func NewArucoOriginalDictionary() *Dictionary {
	rowWords := [4]uint64{0x10, 0x17, 0x09, 0x0e}
	const n = 5
	codewords := make([]uint64, 1024)
	for id := range codewords {
		var code uint64
		for y := 0; y < n; y++ {
			word := rowWords[(id>>uint(2*(n-1-y)))&3]
			for x := 0; x < n; x++ {
				if word>>uint(n-1-x)&1 == 1 {
					code |= 1 << uint(y*n+x)
				}
			}
		}
		codewords[id] = code
	}
	d, err := NewDictionary(ArucoOriginal, n, 1, codewords)
	if err != nil {
		panic(err)
	}
	return d
}

// LoadDictionaryFile reads a dictionary in the layout written by OpenCV's Dictionary::writeDictionary: nmarkers,
// markersize, maxCorrectionBits and one marker_<i> string of '0'/'1' characters per id. A leading %YAML
// directive is tolerated and JSON files with the same keys parse as well. The name defaults to the file name.
func LoadDictionaryFile(path, name string) (*Dictionary, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read dictionary file %q", path)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	d, err := ParseDictionary(data, name)
	if err != nil {
		return nil, errors.Wrapf(err, "bad dictionary file %q", path)
	}
	return d, nil
}

// ParseDictionary decodes the contents of a dictionary file.
func ParseDictionary(data []byte, name string) (*Dictionary, error) {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "%YAML") {
			continue
		}
		lines = append(lines, line)
	}
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(strings.Join(lines, "\n")), &root); err != nil {
		return nil, errors.Wrap(err, "cannot parse dictionary")
	}
	if len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("dictionary must be a mapping")
	}
	fields := map[string]string{}
	mapping := root.Content[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i].Value, mapping.Content[i+1]
		if _, ok := fields[key]; ok {
			return nil, errors.Errorf("%q is set twice", key)
		}
		if value.Kind != yaml.ScalarNode {
			return nil, errors.Errorf("%q must be a single value, line %d", key, value.Line)
		}
		fields[key] = value.Value
	}

	intField := func(key string) (int, error) {
		v, ok := fields[key]
		if !ok {
			return 0, errors.Errorf("missing %q", key)
		}
		out, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errors.Wrapf(err, "bad %q", key)
		}
		return out, nil
	}
	nMarkers, err := intField("nmarkers")
	if err != nil {
		return nil, err
	}
	markerSize, err := intField("markersize")
	if err != nil {
		return nil, err
	}
	maxCorrection, err := intField("maxCorrectionBits")
	if err != nil {
		return nil, err
	}
	if markerSize < 2 || markerSize > maxMarkerSize {
		return nil, errors.Errorf("marker size must be between 2 and %d, got %d", maxMarkerSize, markerSize)
	}
	if nMarkers <= 0 {
		return nil, errors.Errorf("nmarkers must be positive, got %d", nMarkers)
	}
	if maxCorrection < 0 || maxCorrection > markerSize*markerSize {
		return nil, errors.Errorf("maxCorrectionBits must be between 0 and %d, got %d",
			markerSize*markerSize, maxCorrection)
	}

	codewords := make([]uint64, nMarkers)
	for id := range codewords {
		key := "marker_" + strconv.Itoa(id)
		s, ok := fields[key]
		if !ok {
			return nil, errors.Errorf("missing %q", key)
		}
		s = strings.TrimSpace(s)
		if n := utf8.RuneCountInString(s); n != markerSize*markerSize {
			return nil, errors.Errorf("%q has %d bits, expected %d", key, n, markerSize*markerSize)
		}
		for i, ch := range []rune(s) {
			switch ch {
			case '1':
				codewords[id] |= 1 << uint(i)
			case '0':
			default:
				return nil, errors.Errorf("%q has a non binary character %q", key, ch)
			}
		}
	}
	return NewDictionary(name, markerSize, maxCorrection, codewords)
}

// EncodeYAML writes the dictionary in the layout ParseDictionary reads.
func (d *Dictionary) EncodeYAML() ([]byte, error) {
	out := yaml.Node{Kind: yaml.MappingNode}
	add := func(key, value string, style yaml.Style) {
		out.Content = append(out.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: style})
	}
	add("nmarkers", strconv.Itoa(d.Len()), 0)
	add("markersize", strconv.Itoa(d.MarkerSize), 0)
	add("maxCorrectionBits", strconv.Itoa(d.MaxCorrectionBits), 0)
	nBits := d.MarkerSize * d.MarkerSize
	for id, rots := range d.codes {
		var sb strings.Builder
		for i := 0; i < nBits; i++ {
			sb.WriteByte('0' + byte(rots[0]>>uint(i)&1))
		}
		add("marker_"+strconv.Itoa(id), sb.String(), yaml.DoubleQuotedStyle)
	}
	return yaml.Marshal(&out)
}
