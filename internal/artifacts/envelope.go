package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cvinsight/internal/analysis"
)

// Envelope 是对象存储中 JSON 文档的外层结构。
type Envelope struct {
	UserID       uint               `json:"user_id"`
	AnalysisType analysis.Kind      `json:"analysis_type"`
	AIProvider   analysis.Provider  `json:"ai_provider"`
	Timestamp    time.Time          `json:"timestamp"`
	Analysis     *analysis.Artifact `json:"analysis"`
}

// Encode 以缩进、保留非 ASCII 字符的方式序列化。
func (e Envelope) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope 解析对象内容；缺少 analysis 时报错。
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Analysis == nil {
		return nil, fmt.Errorf("decode envelope: missing analysis")
	}
	return &env, nil
}

// objectMetadata 作为 S3 用户元数据写入。
func objectMetadata(userID uint, kind analysis.Kind, provider analysis.Provider) map[string]string {
	return map[string]string{
		"user_id":       strconv.FormatUint(uint64(userID), 10),
		"analysis_type": string(kind),
		"ai_provider":   string(provider),
	}
}
