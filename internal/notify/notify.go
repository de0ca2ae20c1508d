// Package notify carries user-facing notices from the navigation core to whatever
// surface presents them (toast, push message, API response log).
package notify

import (
	"time"

	"github.com/rs/zerolog"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice codes. They mirror the error taxonomy of the navigation core.
const (
	CodePermissionDenied    = "permission_denied"
	CodePositionUnavailable = "position_unavailable"
	CodeGeocodeFailed       = "geocode_failed"
	CodeRouteUnavailable    = "route_unavailable"
	CodePreconditionFailed  = "precondition_failed"
	CodeArrived             = "arrived"
)

// Notice is a single user-facing message.
type Notice struct {
	Level   Level
	Code    string
	Message string
	At      time.Time
}

// Sink receives notices. Implementations must not block.
type Sink interface {
	Notify(n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(Notice) {})

// LogSink writes notices to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

// Notify logs the notice at a level matching its severity.
func (s LogSink) Notify(n Notice) {
	var ev *zerolog.Event
	switch n.Level {
	case LevelError:
		ev = s.Logger.Error()
	case LevelWarning:
		ev = s.Logger.Warn()
	default:
		ev = s.Logger.Info()
	}
	ev.Str("code", n.Code).Time("at", n.At).Msg(n.Message)
}

// New builds a notice stamped with the current time.
func New(level Level, code, message string) Notice {
	return Notice{
		Level:   level,
		Code:    code,
		Message: message,
		At:      time.Now(),
	}
}
