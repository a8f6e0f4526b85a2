package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvinsight/internal/analysis"
	"cvinsight/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"error": msg, "error_code": errcode.ResourceMissing})
}

// HTTPStatus 把错误分类映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch analysis.KindOf(err) {
	case analysis.ErrKindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case analysis.ErrKindExtractionFailed, analysis.ErrKindMalformedResponse:
		return http.StatusUnprocessableEntity
	case analysis.ErrKindUnknownAnalysisKind, analysis.ErrKindUnknownProvider:
		return http.StatusBadRequest
	case analysis.ErrKindProviderUnavailable, analysis.ErrKindProviderRefused:
		return http.StatusBadGateway
	case analysis.ErrKindProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AnalysisError 输出带错误码与分类的错误响应。
// 未分类的错误不回显内部信息。
func AnalysisError(c *gin.Context, err error) {
	body := gin.H{
		"error":      "internal error",
		"error_code": errcode.FromError(err),
	}
	if aerr, ok := analysis.AsError(err); ok {
		body["error"] = aerr.Message
		body["error_kind"] = aerr.Kind
		if aerr.Provider != "" {
			body["ai_provider"] = aerr.Provider
		}
		if aerr.Reason != "" {
			body["reason"] = aerr.Reason
		}
	}
	c.JSON(HTTPStatus(err), body)
}
