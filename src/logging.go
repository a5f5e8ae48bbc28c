package src

import "go.uber.org/zap"

// Logger is the logging surface shared by every component. It is
// satisfied by *zap.SugaredLogger so that the app can choose the
// development or production encoder at startup.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Info(args ...any)
	Error(args ...any)
	Sync() error
}

var _ Logger = (*zap.SugaredLogger)(nil)
