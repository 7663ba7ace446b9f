package orchestrator

// Metadata carries the fixed field set every response response carries.
type Metadata struct {
	TokensUsed      int    `json:"tokens_used"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	CacheHit        bool   `json:"cache_hit"`
	Mode            string `json:"mode"`
	TraceID         string `json:"trace_id"`
}

// ResultPayload is the success-case result object.
type ResultPayload struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// ErrorPayload is the failure-case error object.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the Structured Response (§3): a single JSON object,
// immediately serialized, with exactly one of Result or Error populated.
type Response struct {
	Protocol string         `json:"protocol"`
	Result   *ResultPayload `json:"result,omitempty"`
	Error    *ErrorPayload  `json:"error,omitempty"`
	Schema   string         `json:"schema,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

const protocolVersion = "2.0"

func successResponse(result ResultPayload, schema string, md Metadata) *Response {
	return &Response{Protocol: protocolVersion, Result: &result, Schema: schema, Metadata: md}
}

func errorResponse(code, message string, md Metadata) *Response {
	return &Response{Protocol: protocolVersion, Error: &ErrorPayload{Code: code, Message: message}, Metadata: md}
}
