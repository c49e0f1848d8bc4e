package xslog

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	groupRequest  = "request"
	groupResponse = "response"
	groupError    = "error"
)

const (
	keyMethod     = "method"
	keyPath       = "path"
	keyIP         = "ip"
	keyHost       = "host"
	keyUserAgent  = "user_agent"
	keyQuery      = "query"
	keyStatusText = "status_text"
	keyDurationMS = "duration_ms"
	keyMessage    = "message"
	keyType       = "type"
	keyValue      = "value"
)

// RequestGroup describes r. clientIP is passed in because the router resolves
// it from trusted proxy headers.
func RequestGroup(r *http.Request, clientIP string) slog.Attr {
	attrs := []slog.Attr{
		slog.String(keyMethod, r.Method),
		slog.String(keyPath, r.URL.Path),
		slog.String(keyIP, clientIP),
		slog.String(keyHost, r.Host),
		slog.String(keyUserAgent, r.UserAgent()),
	}
	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String(keyQuery, r.URL.RawQuery))
	}
	return slog.Attr{Key: groupRequest, Value: slog.GroupValue(attrs...)}
}

func ResponseGroup(status int, duration time.Duration) slog.Attr {
	return slog.Group(groupResponse,
		HTTPStatus(status),
		slog.String(keyStatusText, http.StatusText(status)),
		Duration(duration),
		slog.Int64(keyDurationMS, duration.Milliseconds()),
	)
}

func ErrorGroup(err error) slog.Attr {
	if err == nil {
		return slog.Group(groupError)
	}
	return slog.Group(groupError,
		slog.String(keyMessage, err.Error()),
		slog.String(keyType, fmt.Sprintf("%T", err)),
	)
}

func ErrorGroupWithStack(err any) slog.Attr {
	return slog.Group(groupError,
		slog.Any(keyValue, err),
		slog.String(keyType, fmt.Sprintf("%T", err)),
		Stack(),
	)
}
