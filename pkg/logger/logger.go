package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger
var sugar *zap.SugaredLogger

// Init initializes the global logger.
// env "dev" and "local" get the colored console encoder, everything else JSON.
func Init(service, env, level string) {
	var cfg zap.Config

	switch env {
	case "dev", "local":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	// stdout is reserved for command output in CLI mode
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	log = logger.With(zap.String("service", service), zap.String("env", env))
	sugar = log.Sugar()

	log.Debug("logger.initialized", zap.String("level", level))
}

// L returns the base structured logger.
func L() *zap.Logger {
	if log == nil {
		Init("tanium-adapter", "dev", "info")
	}
	return log
}

// S returns the sugared logger.
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init("tanium-adapter", "dev", "info")
	}
	return sugar
}

// Sync flushes any buffered logs (defer this in main()).
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
