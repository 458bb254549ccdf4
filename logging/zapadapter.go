package logging

import "go.uber.org/zap"

// ZapLogger adapts a *zap.SugaredLogger to the Logger interface, giving
// this repository's structured logging a real, exercised zap dependency.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production zap logger (JSON encoding, info level)
// and wraps it as a Logger.
func NewZapLogger() (*ZapLogger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: base.Sugar()}, nil
}

// NewZapLoggerFromSugar wraps an already-constructed sugared logger,
// letting callers control encoder/level/output themselves.
func NewZapLoggerFromSugar(sugar *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{sugar: sugar}
}

func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Sync flushes any buffered log entries; callers should defer it at
// startup, matching zap's own idiom.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
