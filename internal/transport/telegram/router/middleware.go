package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so the first middleware listed runs outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for _, mw := range slices.Backward(mws) {
		h = mw(h)
	}
	return h
}

// pickLogger prefers the request-scoped logger, which already carries rid,
// chat and command fields, over the manager's.
func pickLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

// MWTimeout bounds handler execution; d <= 0 means no limit.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(tctx, req)
		}
	}
}

// MWPanicRecover converts a handler panic into an error so one bad command
// cannot take down a dispatch worker.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				pickLogger(log, req).Error("panic recovered",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

// slowRequest is the latency above which a successful request logs at INFO
// instead of DEBUG.
const slowRequest = 750 * time.Millisecond

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			logger := pickLogger(log, req)
			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int("thread_id", req.Chat.ThreadID),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", took),
			}
			switch {
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Any("err", err))...)
			case took >= slowRequest:
				logger.Info("request ok", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}
