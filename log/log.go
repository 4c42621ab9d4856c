// High level log wrapper, so it can output different log based on level.
//
// There are five levels in total: FATAL, ERROR, WARNING, INFO, DEBUG.
// The default log output level is INFO, you can change it by:
// - call log.SetLevelByString()
// - set environment variable `LOG_LEVEL`

package log

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	_base = New()
	// _log is used by the package level helpers, which add one frame.
	_log = _base.withCallerSkip(1)
)

func GlobalLogger() *Logger {
	return _base
}

func SetLevelByString(level string) {
	_log.SetLevelByString(level)
}

func GetLogLevel() string {
	return _log.level.Level().String()
}

// With returns a child of the global logger carrying fields on every entry.
func With(fields ...zap.Field) *Logger {
	return _base.With(fields...)
}

func Info(v ...interface{}) {
	_log.Info(v...)
}

func Infof(format string, v ...interface{}) {
	_log.Infof(format, v...)
}

func Panic(v ...interface{}) {
	_log.Panic(v...)
}

func Panicf(format string, v ...interface{}) {
	_log.Panicf(format, v...)
}

func Debug(v ...interface{}) {
	_log.Debug(v...)
}

func Debugf(format string, v ...interface{}) {
	_log.Debugf(format, v...)
}

func Warn(v ...interface{}) {
	_log.Warning(v...)
}

func Warnf(format string, v ...interface{}) {
	_log.Warningf(format, v...)
}

func Warning(v ...interface{}) {
	_log.Warning(v...)
}

func Warningf(format string, v ...interface{}) {
	_log.Warningf(format, v...)
}

func Error(v ...interface{}) {
	_log.Error(v...)
}

func Errorf(format string, v ...interface{}) {
	_log.Errorf(format, v...)
}

func Fatal(v ...interface{}) {
	_log.Fatal(v...)
}

func Fatalf(format string, v ...interface{}) {
	_log.Fatalf(format, v...)
}

// Logger is a leveled logger. Its method set also satisfies badger.Logger so
// the storage engine can log through it.
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

func (l *Logger) SetLevelByString(level string) {
	l.level.SetLevel(StringToLevel(level))
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{sugar: l.sugar.Desugar().With(fields...).Sugar(), level: l.level}
}

func (l *Logger) withCallerSkip(skip int) *Logger {
	return &Logger{sugar: l.sugar.Desugar().WithOptions(zap.AddCallerSkip(skip)).Sugar(), level: l.level}
}

func (l *Logger) Fatal(v ...interface{}) {
	l.sugar.Fatal(v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.sugar.Fatalf(format, v...)
}

func (l *Logger) Panic(v ...interface{}) {
	l.sugar.Panic(v...)
}

func (l *Logger) Panicf(format string, v ...interface{}) {
	l.sugar.Panicf(format, v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.sugar.Error(v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

func (l *Logger) Warning(v ...interface{}) {
	l.sugar.Warn(v...)
}

func (l *Logger) Warningf(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

func (l *Logger) Debug(v ...interface{}) {
	l.sugar.Debug(v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

func (l *Logger) Info(v ...interface{}) {
	l.sugar.Info(v...)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Sync flushes any buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

func StringToLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func New() *Logger {
	return NewLogger(zapcore.Lock(os.Stderr))
}

func NewLogger(w zapcore.WriteSyncer) *Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		level.SetLevel(StringToLevel(l))
	}
	encConf := zap.NewDevelopmentEncoderConfig()
	encConf.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encConf), w, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: logger.Sugar(), level: level}
}
