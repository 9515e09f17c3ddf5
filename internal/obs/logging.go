package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/common"
)

// NewLogger builds the process logger. format "console" (or "text") gives
// human-readable output for a till's terminal; anything else is JSON.
// Unknown levels fall back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// RequestLogger writes one "http_request" line per request. Client errors
// log at warn and server errors at error.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		status := rec.Status()
		evt := l.Logger.WithLevel(levelFor(status)).
			Str("method", r.Method).
			Str("route", Route(r)).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", rec.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context()))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		for field, value := range registerIdentity(r) {
			if value != "" {
				evt = evt.Str(field, value)
			}
		}
		evt.Str("remote_addr", common.ClientIP(r)).
			Str("user_agent", r.UserAgent()).
			Msg("http_request")
	})
}

func levelFor(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// registerIdentity names the shop, cashier and till behind a request. The
// logger runs outside the resolvers, so raw headers fill what the context
// lacks.
func registerIdentity(r *http.Request) map[string]string {
	operatorID, ok := common.OperatorID(r.Context())
	if !ok {
		operatorID = strings.TrimSpace(r.Header.Get(common.OperatorHeader))
	}
	businessID, ok := business.From(r.Context())
	if !ok {
		businessID = strings.TrimSpace(r.Header.Get(business.Header))
	}
	return map[string]string{
		"business_id": businessID,
		"operator_id": operatorID,
		"terminal_id": strings.TrimSpace(r.Header.Get(terminalHeader)),
	}
}
