package contextkey

// key is unexported so values can only be set through this package's constants.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	Token     key = "token"
)
