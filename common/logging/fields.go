package logging

import "log/slog"

// Field names shared by every service so log queries work across processes.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldAgentID     = "agent_id"
	FieldIP          = "ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldMessageType = "message_type"
	FieldSignature   = "signature"
	FieldAlertID     = "alert_id"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func AgentID(id string) slog.Attr {
	return slog.String(FieldAgentID, id)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a duration attribute in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns an error attribute. A nil error is logged as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func MessageType(kind string) slog.Attr {
	return slog.String(FieldMessageType, kind)
}

func Signature(name string) slog.Attr {
	return slog.String(FieldSignature, name)
}

func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}
