package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// callerSkip is the number of frames between write and the code that called a level method.
const callerSkip = 2

var errUnpairedKey = errors.New("unpaired log key")

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{name: name, level: NewAtomicLevelAt(level), inUTC: inUTC, appenders: appenders}
}

// message defers formatting until an entry is known to be enabled.
type message func() string

func sprint(args []interface{}) message {
	return func() string { return fmt.Sprint(args...) }
}

func sprintf(template string, args []interface{}) message {
	return func() string { return fmt.Sprintf(template, args...) }
}

func literal(msg string) message {
	return func() string { return msg }
}

// write must only be called directly from the exported level methods.
func (imp *impl) write(level Level, msg message, keysAndValues []interface{}) {
	if level < imp.level.Get() {
		return
	}
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg(),
		Caller:     caller(callerSkip),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	fields := pairFields(keysAndValues)
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// pairFields turns alternating keys and values into zap fields. A trailing key without a value is kept with an
// error in its place so the mistake shows up in the output.
func pairFields(keysAndValues []interface{}) []zapcore.Field {
	if len(keysAndValues) == 0 {
		return nil
	}
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for rest := keysAndValues; len(rest) > 0; {
		key := fmt.Sprint(rest[0])
		if len(rest) == 1 {
			fields = append(fields, zap.NamedError(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, rest[1]))
		rest = rest[2:]
	}
	return fields
}

func caller(skip int) zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(skip + 1)
	c := zapcore.NewEntryCaller(pc, file, line, ok)
	if fn := runtime.FuncForPC(pc); ok && fn != nil {
		c.Function = fn.Name()
	}
	return c
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	sub := newImpl(name, imp.level.Get(), imp.inUTC)
	sub.appenders = imp.appenders
	return sub
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	enabled := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= imp.level.Get().AsZap()
	})
	cores := make([]zapcore.Core, len(imp.appenders))
	for i, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			cores[i] = core
		} else {
			cores[i] = &appenderCore{LevelEnabler: enabled, appender: appender}
		}
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar().Named(imp.name)
}

func (imp *impl) Debug(args ...interface{}) { imp.write(DEBUG, sprint(args), nil) }

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.write(DEBUG, sprintf(template, args), nil)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.write(DEBUG, literal(msg), keysAndValues)
}

func (imp *impl) Info(args ...interface{}) { imp.write(INFO, sprint(args), nil) }

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.write(INFO, sprintf(template, args), nil)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.write(INFO, literal(msg), keysAndValues)
}

func (imp *impl) Warn(args ...interface{}) { imp.write(WARN, sprint(args), nil) }

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.write(WARN, sprintf(template, args), nil)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.write(WARN, literal(msg), keysAndValues)
}

func (imp *impl) Error(args ...interface{}) { imp.write(ERROR, sprint(args), nil) }

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.write(ERROR, sprintf(template, args), nil)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.write(ERROR, literal(msg), keysAndValues)
}
