package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/identity.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Live domain
	FieldSessionID    = "session_id"
	FieldConnectionID = "connection_id"
	FieldTopic        = "topic"
	FieldEventType    = "event_type"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
