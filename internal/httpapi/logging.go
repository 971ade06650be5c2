package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, request logging is off.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logStart(r *http.Request, rid, model string, stream bool) {
	if zlog == nil {
		return
	}
	zlog.Info().Str("path", r.URL.Path).Str("model", model).Bool("stream", stream).
		Str("request_id", rid).Msg("proxy start")
}

func logEnd(r *http.Request, rid, model string, status int, dur time.Duration, err error) {
	if zlog == nil {
		return
	}
	ev := zlog.Info().Str("path", r.URL.Path).Str("model", model).Int("status", status).
		Dur("dur", dur).Str("request_id", rid)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("proxy end")
}
