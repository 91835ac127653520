package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldIdentity   = "identity"
	FieldRecordID   = "record_id"
	FieldCollection = "collection"
	FieldState      = "state"
	FieldSeq        = "seq"
	FieldRecords    = "records"
	FieldBackend    = "backend"
)

// Components
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentSession   = "session"
	ComponentDashboard = "dashboard"
	ComponentHub       = "hub"
	ComponentAuth      = "auth"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentKafka     = "kafka"
	ComponentBackend   = "backend"
)

// Operations
const (
	OpCreate    = "create"
	OpDelete    = "delete"
	OpSubscribe = "subscribe"
	OpRelease   = "release"
	OpValidate  = "validate"
	OpRender    = "render"
	OpPublish   = "publish"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
