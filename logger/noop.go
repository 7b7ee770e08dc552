package logger

// noop is a Logger that discards everything. It backs NewNoOp, used
// whenever a caller opts out of logging (e.g. --quiet on the CLI, or
// tests that don't want log noise).
type noop struct{}

// NewNoOp returns a Logger that silently discards all calls.
func NewNoOp() Logger { return noop{} }

func (noop) Panicln(v ...any)               {}
func (noop) Panicf(format string, v ...any) {}
func (noop) Fatalln(v ...any)               {}
func (noop) Fatalf(format string, v ...any) {}
func (noop) Errorln(v ...any)               {}
func (noop) Errorf(format string, v ...any) {}
func (noop) Warnln(v ...any)                {}
func (noop) Warnf(format string, v ...any)  {}
func (noop) Infoln(v ...any)                {}
func (noop) Infof(format string, v ...any)  {}
func (noop) Debugln(v ...any)               {}
func (noop) Debugf(format string, v ...any) {}
func (noop) Traceln(v ...any)               {}
func (noop) Tracef(format string, v ...any) {}
