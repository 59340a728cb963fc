package domain

import (
	"errors"
	"fmt"
)

// Category sentinels, used with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrToolFailure      = fmt.Errorf("tool execution failed")
	ErrMaxRounds        = fmt.Errorf("agent reached max rounds")
	ErrNoUserMessage    = fmt.Errorf("no user message to process")
	ErrRequestCanceled  = fmt.Errorf("request canceled")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrMessageStore     = fmt.Errorf("message store failed")
	ErrRetrieval        = fmt.Errorf("retrieval failed")
	ErrCircuitOpen      = fmt.Errorf("provider circuit open")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrServerFailure   = fmt.Errorf("provider server error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Handler.Run")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "plugin", "mcp"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
// The orchestrator itself never retries; collaborators and callers may.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrServerFailure) || errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure      ErrorCode = "TOOL_FAILURE"
	CodeMaxRounds        ErrorCode = "MAX_ROUNDS"
	CodeNoUserMessage    ErrorCode = "NO_USER_MESSAGE"
	CodeRequestCanceled  ErrorCode = "REQUEST_CANCELED"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeMessageStore     ErrorCode = "MESSAGE_STORE"
	CodeRetrieval        ErrorCode = "RETRIEVAL"
	CodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeServerFailure    ErrorCode = "SERVER_FAILURE"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodePluginNotFound   ErrorCode = "PLUGIN_NOT_FOUND"
	CodePluginInvalid    ErrorCode = "PLUGIN_INVALID_CONFIG"
	CodePromptTarget     ErrorCode = "PROMPT_TARGET_NOT_FOUND"
	CodeMCPTimeout       ErrorCode = "MCP_TIMEOUT"
	CodeMCPUnavailable   ErrorCode = "MCP_UNAVAILABLE"
	CodeToolParamInvalid ErrorCode = "TOOL_PARAMS_INVALID"

	// Category error codes: fallback codes when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeDisabled         ErrorCode = "DISABLED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrProviderNotFound: CodeProviderNotFound,
	ErrToolNotFound:     CodeToolNotFound,
	ErrToolFailure:      CodeToolFailure,
	ErrMaxRounds:        CodeMaxRounds,
	ErrNoUserMessage:    CodeNoUserMessage,
	ErrRequestCanceled:  CodeRequestCanceled,
	ErrConfigLoad:       CodeConfigLoad,
	ErrMessageStore:     CodeMessageStore,
	ErrRetrieval:        CodeRetrieval,
	ErrCircuitOpen:      CodeCircuitOpen,
	ErrContextOverflow:  CodeContextOverflow,
	ErrRateLimit:        CodeRateLimit,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrServerFailure:    CodeServerFailure,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"plugin": CodePluginNotFound,
		"prompt": CodePromptTarget,
		"tool":   CodeToolNotFound,
	},
	ErrInvalidInput: {
		"plugin": CodePluginInvalid,
		"tool":   CodeToolParamInvalid,
	},
	ErrTimeout: {
		"mcp": CodeMCPTimeout,
	},
	ErrProviderError: {
		"mcp": CodeMCPUnavailable,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

// ErrorDetail is the structured error payload carried on error turns.
type ErrorDetail struct {
	Name     string    `json:"name"`
	Code     ErrorCode `json:"code"`
	Provider string    `json:"provider,omitempty"`
	Message  string    `json:"message"`
}

// ErrorDetailOf builds an ErrorDetail for err attributed to provider.
func ErrorDetailOf(err error, provider string) ErrorDetail {
	if err == nil {
		return ErrorDetail{Name: "Error", Code: CodeUnknown, Provider: provider}
	}
	code := ErrorCodeOf(err)
	return ErrorDetail{
		Name:     errorName(code),
		Code:     code,
		Provider: provider,
		Message:  err.Error(),
	}
}

func errorName(code ErrorCode) string {
	switch code {
	case CodeRateLimit:
		return "RateLimitError"
	case CodeAuthInvalid:
		return "AuthenticationError"
	case CodeContextOverflow:
		return "ContextOverflowError"
	case CodeServerFailure, CodeCircuitOpen, CodeProviderError:
		return "ProviderError"
	case CodeRequestCanceled:
		return "CanceledError"
	case CodeTimeout:
		return "TimeoutError"
	default:
		return "Error"
	}
}
