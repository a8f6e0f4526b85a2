package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"cvinsight/internal/analysis"
)

var (
	quotaMarkers  = []string{"insufficient_quota", "resource_exhausted", "quota", "billing", "credit balance"}
	policyMarkers = []string{"content_policy", "content policy", "content_filter", "safety", "policy_violation", "responsible ai"}
)

// classify 把底层 SDK / HTTP 错误映射为 analysis.Error。
func classify(p analysis.Provider, err error) *analysis.Error {
	if err == nil {
		return nil
	}
	if e, ok := analysis.AsError(err); ok {
		return e
	}
	if isTimeout(err) {
		return analysis.ProviderTimeout(p, err)
	}

	var (
		oaAPIErr *openai.APIError
		oaReqErr *openai.RequestError
		gErr     genai.APIError
		gErrPtr  *genai.APIError
		httpErr  *httpStatusError
	)
	switch {
	case errors.As(err, &oaAPIErr):
		msg := strings.Join([]string{oaAPIErr.Type, codeString(oaAPIErr.Code), oaAPIErr.Message}, " ")
		return classifyStatus(p, oaAPIErr.HTTPStatusCode, msg, err)
	case errors.As(err, &oaReqErr):
		return classifyStatus(p, oaReqErr.HTTPStatusCode, errString(oaReqErr.Err), err)
	case errors.As(err, &gErr):
		return classifyStatus(p, gErr.Code, gErr.Status+" "+gErr.Message, err)
	case errors.As(err, &gErrPtr):
		return classifyStatus(p, gErrPtr.Code, gErrPtr.Status+" "+gErrPtr.Message, err)
	case errors.As(err, &httpErr):
		return classifyStatus(p, httpErr.StatusCode, httpErr.Type+" "+httpErr.Message, err)
	}

	if errors.Is(err, context.Canceled) {
		return analysis.ProviderUnavailable(p, err, "provider call canceled")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return analysis.ProviderUnavailable(p, err, "provider transport error")
	}
	return analysis.ProviderUnavailable(p, err, "%s", err.Error())
}

// classifyStatus 根据 HTTP 状态码和错误消息分类。
func classifyStatus(p analysis.Provider, status int, message string, err error) *analysis.Error {
	lower := strings.ToLower(message)
	message = strings.TrimSpace(message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return analysis.ProviderRefused(p, analysis.ReasonAuth, err, "provider rejected credentials (status %d)", status)
	case status == http.StatusTooManyRequests || containsAny(lower, quotaMarkers):
		return analysis.ProviderRefused(p, analysis.ReasonQuota, err, "provider quota exhausted (status %d)", status)
	case status == http.StatusBadRequest && containsAny(lower, policyMarkers):
		return analysis.ProviderRefused(p, analysis.ReasonPolicy, err, "provider refused content (status %d)", status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return analysis.ProviderTimeout(p, err)
	case status >= 500:
		return analysis.ProviderUnavailable(p, err, "provider server error (status %d)", status)
	default:
		return analysis.ProviderUnavailable(p, err, "%s", message)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func codeString(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return ""
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
