package analysis

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 是流水线对外暴露的错误分类。
type ErrorKind string

const (
	ErrKindUnsupportedFormat   ErrorKind = "unsupported_format"
	ErrKindExtractionFailed    ErrorKind = "extraction_failed"
	ErrKindUnknownAnalysisKind ErrorKind = "unknown_analysis_kind"
	ErrKindUnknownProvider     ErrorKind = "unknown_provider"
	ErrKindProviderUnavailable ErrorKind = "provider_unavailable"
	ErrKindProviderTimeout     ErrorKind = "provider_timeout"
	ErrKindProviderRefused     ErrorKind = "provider_refused"
	ErrKindMalformedResponse   ErrorKind = "malformed_response"
	ErrKindStoreWriteFailed    ErrorKind = "store_write_failed"
	ErrKindStoreReadFailed     ErrorKind = "store_read_failed"
)

// ProviderRefused 的细分原因。
const (
	ReasonAuth          = "auth"
	ReasonQuota         = "quota"
	ReasonPolicy        = "policy"
	ReasonNotConfigured = "not_configured"
	ReasonMalware       = "malware"
	ReasonScanFailed    = "scan_failed"
)

// 哨兵错误，只比较 Kind，配合 errors.Is 使用。
var (
	ErrUnsupportedFormat   = &Error{Kind: ErrKindUnsupportedFormat}
	ErrExtractionFailed    = &Error{Kind: ErrKindExtractionFailed}
	ErrUnknownAnalysisKind = &Error{Kind: ErrKindUnknownAnalysisKind}
	ErrUnknownProvider     = &Error{Kind: ErrKindUnknownProvider}
	ErrProviderUnavailable = &Error{Kind: ErrKindProviderUnavailable}
	ErrProviderTimeout     = &Error{Kind: ErrKindProviderTimeout}
	ErrProviderRefused     = &Error{Kind: ErrKindProviderRefused}
	ErrMalformedResponse   = &Error{Kind: ErrKindMalformedResponse}
	ErrStoreWriteFailed    = &Error{Kind: ErrKindStoreWriteFailed}
	ErrStoreReadFailed     = &Error{Kind: ErrKindStoreReadFailed}
)

// Error 携带分类、可选的 Provider 与细分原因，以及底层错误。
// Raw 只在 MalformedResponse 时填充，保存模型原始回复用于排查。
type Error struct {
	Kind     ErrorKind
	Provider Provider
	Reason   string
	Message  string
	Raw      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" [provider=")
		b.WriteString(string(e.Provider))
		b.WriteString("]")
	}
	if e.Reason != "" {
		b.WriteString(" [reason=")
		b.WriteString(e.Reason)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrProviderRefused) 按 Kind 匹配；
// 若目标带 Reason，则 Reason 也必须一致。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// KindOf 返回错误链中第一个 *Error 的分类；不存在时返回空串。
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError 取出错误链中的 *Error。
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func UnsupportedFormat(format string, args ...any) *Error {
	return &Error{Kind: ErrKindUnsupportedFormat, Message: fmt.Sprintf(format, args...)}
}

func ExtractionFailed(err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindExtractionFailed, Message: fmt.Sprintf(format, args...), Err: err}
}

func UnknownKind(raw string) *Error {
	return &Error{Kind: ErrKindUnknownAnalysisKind, Message: fmt.Sprintf("unknown analysis kind %q", raw)}
}

func UnknownProvider(raw string) *Error {
	return &Error{Kind: ErrKindUnknownProvider, Message: fmt.Sprintf("unknown provider %q", raw)}
}

func ProviderUnavailable(p Provider, err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindProviderUnavailable, Provider: p, Message: fmt.Sprintf(format, args...), Err: err}
}

func ProviderTimeout(p Provider, err error) *Error {
	return &Error{Kind: ErrKindProviderTimeout, Provider: p, Message: "provider call timed out", Err: err}
}

func ProviderRefused(p Provider, reason string, err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindProviderRefused, Provider: p, Reason: reason, Message: fmt.Sprintf(format, args...), Err: err}
}

func MalformedResponse(p Provider, raw string, err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindMalformedResponse, Provider: p, Raw: raw, Message: fmt.Sprintf(format, args...), Err: err}
}

func StoreWriteFailed(err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindStoreWriteFailed, Message: fmt.Sprintf(format, args...), Err: err}
}

func StoreReadFailed(err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindStoreReadFailed, Message: fmt.Sprintf(format, args...), Err: err}
}
