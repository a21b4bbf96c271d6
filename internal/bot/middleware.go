package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	kit "pockettodo/internal/transport"
	logx "pockettodo/pkg/logx"
)

// request is one routed update.
type request struct {
	kind   kit.UpdateKind
	chatID int64
	fromID int64
	cmd    string
	log    logx.Logger
}

type handlerFunc func(ctx context.Context, req *request) error

type middleware func(next handlerFunc) handlerFunc

func chain(h handlerFunc, m ...middleware) handlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func withTimeout(d time.Duration) middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func withRecover() middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func withRequestLog() middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.kind)),
				logx.String("cmd", req.cmd),
				logx.Duration("dur", d),
			}
			if err != nil {
				req.log.Warn("request failed", append(fields, logx.Err(err))...)
				return err
			}
			// Slow successful requests stay visible at INFO.
			if d >= 750*time.Millisecond {
				req.log.Info("request ok", fields...)
			} else {
				req.log.Debug("request ok", fields...)
			}
			return nil
		}
	}
}
