package xslog

import (
	"log/slog"
	"runtime/debug"
	"time"
)

const keyError = "error"

func Error(err error) slog.Attr {
	return slog.String(keyError, err.Error())
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func PageID(id string) slog.Attr {
	const pageIDKey = "page_id"
	return slog.String(pageIDKey, id)
}

func Section(section string) slog.Attr {
	const sectionKey = "section"
	return slog.String(sectionKey, section)
}

func Offset(offset float64) slog.Attr {
	const offsetKey = "offset"
	return slog.Float64(offsetKey, offset)
}

func MessageType(typ string) slog.Attr {
	const typeKey = "message_type"
	return slog.String(typeKey, typ)
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func Rows(n int64) slog.Attr {
	const rowsKey = "rows"
	return slog.Int64(rowsKey, n)
}

func Path(path string) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, path)
}

func Addr(addr string) slog.Attr {
	const addrKey = "addr"
	return slog.String(addrKey, addr)
}

func HashedIP(hash string) slog.Attr {
	const hashedIPKey = "hashed_ip"
	return slog.String(hashedIPKey, hash)
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(d time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, d)
}
