package logging

import (
	"io"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the time format used by the test appender.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

type writerAppender struct {
	mu      sync.Mutex
	encoder zapcore.Encoder
	out     zapcore.WriteSyncer
}

// NewWriterAppender returns an appender that console encodes entries into w.
func NewWriterAppender(w io.Writer) Appender {
	return &writerAppender{
		encoder: zapcore.NewConsoleEncoder(NewEncoderConfig()),
		out:     zapcore.AddSync(w),
	}
}

func (wa *writerAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	wa.mu.Lock()
	defer wa.mu.Unlock()

	buf, err := wa.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = wa.out.Write(buf.Bytes())
	return err
}

func (wa *writerAppender) Sync() error {
	wa.mu.Lock()
	defer wa.mu.Unlock()
	return wa.out.Sync()
}

type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns a logger appender that logs to the underlying `testing.TB`
// object. Writing logs with `tb.Log` associates each line with the test that produced it,
// which matters once tests run in parallel. The appender logs in the local timezone.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write outputs the log entry to the underlying test object `Log` method.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	const maxLength = 10
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))

	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, entry.Caller.TrimmedPath())
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return nil
	}

	// Encode only the fields, in order, by handing zap an empty entry.
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return err
	}
	toPrint = append(toPrint, string(buf.Bytes()))
	tapp.tb.Log(strings.Join(toPrint, "\t"))
	return nil
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}

// appenderCore lets an Appender sit underneath a zap logger returned by AsZap.
type appenderCore struct {
	zapcore.LevelEnabler
	appender Appender
	fields   []zapcore.Field
}

func (ac *appenderCore) With(fields []zapcore.Field) zapcore.Core {
	combined := make([]zapcore.Field, 0, len(ac.fields)+len(fields))
	combined = append(combined, ac.fields...)
	combined = append(combined, fields...)
	return &appenderCore{ac.LevelEnabler, ac.appender, combined}
}

func (ac *appenderCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ac.Enabled(entry.Level) {
		return checked.AddCore(entry, ac)
	}
	return checked
}

func (ac *appenderCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if len(ac.fields) == 0 {
		return ac.appender.Write(entry, fields)
	}
	combined := make([]zapcore.Field, 0, len(ac.fields)+len(fields))
	combined = append(combined, ac.fields...)
	combined = append(combined, fields...)
	return ac.appender.Write(entry, combined)
}

func (ac *appenderCore) Sync() error {
	return ac.appender.Sync()
}
