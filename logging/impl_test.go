package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

// splitLogLine breaks a console encoded line into its tab delimited parts.
func splitLogLine(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(line, "\n"), "\t")
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := NewWriterLogger("impl", notStdout)

	logger.Info("impl Info log")
	parts := splitLogLine(t, notStdout)
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "impl")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "impl Info log")

	logger.Debugf("impl %s log", "debugf")
	parts = splitLogLine(t, notStdout)
	test.That(t, parts[1], test.ShouldEqual, "DEBUG")
	test.That(t, parts[4], test.ShouldEqual, "impl debugf log")

	logger.Warnw("impl logw", "key", "value", "BasicStruct", BasicStruct{1, "alice"})
	parts = splitLogLine(t, notStdout)
	test.That(t, parts, test.ShouldHaveLength, 6)
	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldResemble, map[string]any{
		"key":         "value",
		"BasicStruct": map[string]any{"X": 1.0},
	})

	logger.Errorw("unpaired", "lonely")
	parts = splitLogLine(t, notStdout)
	test.That(t, parts[5], test.ShouldContainSubstring, "unpaired log key")
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWriterLogger("lvl", buf)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Info("dropped")
	logger.Debugw("dropped too", "k", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warn("kept")
	test.That(t, buf.String(), test.ShouldContainSubstring, "kept")
}

func TestSublogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	calib := logger.Sublogger("calib")
	sub := calib.Sublogger("views")

	sub.Infow("view skipped", "index", 3)
	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "calib.views")
	test.That(t, entries[0].Message, test.ShouldEqual, "view skipped")
	test.That(t, entries[0].ContextMap()["index"], test.ShouldEqual, int64(3))

	// Level changes on a sublogger do not leak to the parent.
	sub.SetLevel(ERROR)
	sub.Info("dropped")
	calib.Info("kept")
	test.That(t, observed.FilterMessage("dropped").Len(), test.ShouldEqual, 0)
	test.That(t, observed.FilterMessage("kept").Len(), test.ShouldEqual, 1)
}

func TestAsZap(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.AsZap().Named("zap").Infow("from zap", "n", 2)
	test.That(t, observed.FilterMessage("from zap").Len(), test.ShouldEqual, 1)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestLevelJSON(t *testing.T) {
	for _, level := range []Level{DEBUG, INFO, WARN, ERROR} {
		data, err := json.Marshal(level)
		test.That(t, err, test.ShouldBeNil)
		var parsed Level
		test.That(t, json.Unmarshal(data, &parsed), test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, level)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("stdout")
	test.That(t, logger.GetLevel(), test.ShouldEqual, INFO)
	sub := logger.Sublogger("calib")
	test.That(t, sub.GetLevel(), test.ShouldEqual, INFO)
	sub.Debug("not written")
}

func TestNewBlankLogger(t *testing.T) {
	logger := NewBlankLogger("blank")
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debugw("dropped", "key", 1)
	logger.Sublogger("sub").Errorf("dropped %d", 2)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}
