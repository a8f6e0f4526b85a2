package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// IsNoSuchKey 判断错误是否明确表示对象不存在（S3/MinIO: NoSuchKey/NotFound）。
// 桶不存在（NoSuchBucket）属于配置错误，不算对象缺失。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		switch strings.ToLower(strings.TrimSpace(minioErr.Code)) {
		case "nosuchkey", "notfound":
			return true
		default:
			return false
		}
	}

	// 兜底：不同网关/代理可能会把错误包装成字符串，只认对象级的文案。
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "bucket") {
		return false
	}
	return strings.Contains(lower, "nosuchkey") ||
		strings.Contains(lower, "specified key does not exist")
}
