package ctxutil

import "context"

type ctxKey int

const (
	requestDataKey ctxKey = iota
	traceDataKey
)

// RequestData carries the authenticated caller for the lifetime of a request.
type RequestData struct {
	UserID      string
	TokenString string
}

// TraceData correlates log lines, spans and response headers for one request.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	rd, _ := ctx.Value(requestDataKey).(*RequestData)
	return rd
}

// UserID returns the authenticated user id or "".
func UserID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.UserID
	}
	return ""
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceDataKey).(*TraceData)
	return td
}

// LogFields returns the correlation ids present on ctx as logger key/values.
func LogFields(ctx context.Context) []interface{} {
	var out []interface{}
	if td := GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			out = append(out, "trace_id", td.TraceID)
		}
		if td.RequestID != "" {
			out = append(out, "request_id", td.RequestID)
		}
	}
	if uid := UserID(ctx); uid != "" {
		out = append(out, "user_id", uid)
	}
	return out
}
