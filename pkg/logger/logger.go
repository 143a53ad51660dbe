package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel определяет уровень логирования
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var zapLevels = map[LogLevel]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
	LevelFatal: zapcore.FatalLevel,
}

// ParseLevel переводит строку из конфигурации в LogLevel, по умолчанию info
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Field представляет поле логирования
type Field = zap.Field

// Logger представляет структурированный логгер поверх zap
type Logger struct {
	level *zap.AtomicLevel
	zl    *zap.Logger
}

// New создает JSON логгер для продакшена
func New(level LogLevel) *Logger {
	return build(zap.NewProductionConfig(), level)
}

// NewConsole создает человекочитаемый логгер для локальной разработки
func NewConsole(level LogLevel) *Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return build(cfg, level)
}

// NewNop создает логгер, который ничего не пишет (для тестов)
func NewNop() *Logger {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return &Logger{level: &lvl, zl: zap.NewNop()}
}

func build(cfg zap.Config, level LogLevel) *Logger {
	lvl := zap.NewAtomicLevelAt(zapLevels[level])
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// конфигурация собирается из констант, ошибка здесь означает баг
		panic(err)
	}
	return &Logger{level: &lvl, zl: zl}
}

// SetLevel устанавливает уровень логирования
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(zapLevels[level])
}

// Debug записывает debug сообщение
func (l *Logger) Debug(msg string, fields ...Field) {
	l.zl.Debug(msg, fields...)
}

// Info записывает info сообщение
func (l *Logger) Info(msg string, fields ...Field) {
	l.zl.Info(msg, fields...)
}

// Warn записывает warning сообщение
func (l *Logger) Warn(msg string, fields ...Field) {
	l.zl.Warn(msg, fields...)
}

// Error записывает error сообщение
func (l *Logger) Error(msg string, fields ...Field) {
	l.zl.Error(msg, fields...)
}

// Fatal записывает fatal сообщение и завершает программу
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.zl.Fatal(msg, fields...)
}

// WithFields возвращает логгер с предустановленными полями
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{level: l.level, zl: l.zl.With(fields...)}
}

// Named возвращает логгер компонента
func (l *Logger) Named(name string) *Logger {
	return &Logger{level: l.level, zl: l.zl.Named(name)}
}

// Sync сбрасывает буферы
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Вспомогательные функции для создания полей
func String(key, value string) Field {
	return zap.String(key, value)
}

func Int(key string, value int) Field {
	return zap.Int(key, value)
}

func Int64(key string, value int64) Field {
	return zap.Int64(key, value)
}

func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

func Error(err error) Field {
	return zap.Error(err)
}

func Duration(key string, value time.Duration) Field {
	return zap.Duration(key, value)
}

func Time(key string, value time.Time) Field {
	return zap.Time(key, value)
}

func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}

// Глобальный логгер по умолчанию
var defaultLogger = New(LevelInfo)

// Default возвращает глобальный логгер
func Default() *Logger {
	return defaultLogger
}

// SetDefault заменяет глобальный логгер
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Глобальные функции логирования
func Debug(msg string, fields ...Field) {
	defaultLogger.Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	defaultLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	defaultLogger.Warn(msg, fields...)
}

func ErrorLog(msg string, fields ...Field) {
	defaultLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...Field) {
	defaultLogger.Fatal(msg, fields...)
}
