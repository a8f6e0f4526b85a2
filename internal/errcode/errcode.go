package errcode

import "cvinsight/internal/analysis"

// 错误码约定：
// - 0：无错误
// - 4xxx：调用方可修正或可换 provider 重试的错误
// - 5xxx：系统 / 上游错误
const (
	OK                  = 0
	UnsupportedFormat   = 4001
	ExtractionFailed    = 4002
	UnknownAnalysisKind = 4003
	ResourceMissing     = 4004
	UnknownProvider     = 4005
	MalformedResponse   = 4006
	ProviderRefused     = 4007
	BadRequest          = 4000
	Unauthorized        = 4010
	SystemError         = 5000
	ProviderUnavailable = 5001
	ProviderTimeout     = 5002
	StoreFailed         = 5003
)

var byKind = map[analysis.ErrorKind]int{
	analysis.ErrKindUnsupportedFormat:   UnsupportedFormat,
	analysis.ErrKindExtractionFailed:    ExtractionFailed,
	analysis.ErrKindUnknownAnalysisKind: UnknownAnalysisKind,
	analysis.ErrKindUnknownProvider:     UnknownProvider,
	analysis.ErrKindMalformedResponse:   MalformedResponse,
	analysis.ErrKindProviderRefused:     ProviderRefused,
	analysis.ErrKindProviderUnavailable: ProviderUnavailable,
	analysis.ErrKindProviderTimeout:     ProviderTimeout,
	analysis.ErrKindStoreWriteFailed:    StoreFailed,
	analysis.ErrKindStoreReadFailed:     StoreFailed,
}

// FromError 返回错误对应的错误码；nil 为 OK，未分类的错误为 SystemError。
func FromError(err error) int {
	if err == nil {
		return OK
	}
	if code, ok := byKind[analysis.KindOf(err)]; ok {
		return code
	}
	return SystemError
}
