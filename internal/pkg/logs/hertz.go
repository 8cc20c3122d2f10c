package logs

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// hlogAdapter routes the metrics server's internal logging into Logger.
type hlogAdapter struct {
	l Logger
}

var _ hlog.FullLogger = (*hlogAdapter)(nil)

func NewHlogLogger(l Logger) hlog.FullLogger {
	return &hlogAdapter{l: l}
}

func (a *hlogAdapter) log(ctx context.Context, level hlog.Level, format string, v ...interface{}) {
	if format == "" {
		format = "%s"
		v = []interface{}{fmt.Sprint(v...)}
	}
	format = "[hertz] " + format
	switch level {
	case hlog.LevelTrace, hlog.LevelDebug:
		a.l.CtxDebug(ctx, format, v...)
	case hlog.LevelInfo, hlog.LevelNotice:
		a.l.CtxInfo(ctx, format, v...)
	case hlog.LevelWarn:
		a.l.CtxWarn(ctx, format, v...)
	case hlog.LevelError:
		a.l.CtxError(ctx, format, v...)
	default:
		a.l.CtxFatal(ctx, format, v...)
	}
}

func (a *hlogAdapter) Trace(v ...interface{}) { a.log(context.Background(), hlog.LevelTrace, "", v...) }
func (a *hlogAdapter) Debug(v ...interface{}) { a.log(context.Background(), hlog.LevelDebug, "", v...) }
func (a *hlogAdapter) Info(v ...interface{})  { a.log(context.Background(), hlog.LevelInfo, "", v...) }
func (a *hlogAdapter) Notice(v ...interface{}) {
	a.log(context.Background(), hlog.LevelNotice, "", v...)
}
func (a *hlogAdapter) Warn(v ...interface{})  { a.log(context.Background(), hlog.LevelWarn, "", v...) }
func (a *hlogAdapter) Error(v ...interface{}) { a.log(context.Background(), hlog.LevelError, "", v...) }
func (a *hlogAdapter) Fatal(v ...interface{}) { a.log(context.Background(), hlog.LevelFatal, "", v...) }

func (a *hlogAdapter) Tracef(format string, v ...interface{}) {
	a.log(context.Background(), hlog.LevelTrace, format, v...)
}
func (a *hlogAdapter) Debugf(format string, v ...interface{}) {
	a.log(context.Background(), hlog.LevelDebug, format, v...)
}
func (a *hlogAdapter) Infof(format string, v ...interface{}) {
	a.log(context.Background(), hlog.LevelInfo, format, v...)
}
func (a *hlogAdapter) Noticef(format string, v ...interface{}) {
	a.log(context.Background(), hlog.LevelNotice, format, v...)
}
func (a *hlogAdapter) Warnf(format string, v ...interface{}) {
	a.log(context.Background(), hlog.LevelWarn, format, v...)
}
func (a *hlogAdapter) Errorf(format string, v ...interface{}) {
	a.log(context.Background(), hlog.LevelError, format, v...)
}
func (a *hlogAdapter) Fatalf(format string, v ...interface{}) {
	a.log(context.Background(), hlog.LevelFatal, format, v...)
}

func (a *hlogAdapter) CtxTracef(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelTrace, format, v...)
}
func (a *hlogAdapter) CtxDebugf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelDebug, format, v...)
}
func (a *hlogAdapter) CtxInfof(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelInfo, format, v...)
}
func (a *hlogAdapter) CtxNoticef(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelNotice, format, v...)
}
func (a *hlogAdapter) CtxWarnf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelWarn, format, v...)
}
func (a *hlogAdapter) CtxErrorf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelError, format, v...)
}
func (a *hlogAdapter) CtxFatalf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelFatal, format, v...)
}

func (a *hlogAdapter) SetLevel(level hlog.Level) {
	switch level {
	case hlog.LevelTrace, hlog.LevelDebug:
		a.l.SetLevel(DebugLevel)
	case hlog.LevelInfo, hlog.LevelNotice:
		a.l.SetLevel(InfoLevel)
	case hlog.LevelWarn:
		a.l.SetLevel(WarnLevel)
	case hlog.LevelError:
		a.l.SetLevel(ErrorLevel)
	case hlog.LevelFatal:
		a.l.SetLevel(FatalLevel)
	}
}

// SetOutput is ignored; output follows the Logger's configuration.
func (a *hlogAdapter) SetOutput(_ io.Writer) {}
