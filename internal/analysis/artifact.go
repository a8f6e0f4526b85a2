package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Artifact 是一次成功分析的规范化结果。
// 已知字段之外的顶层键保存在 Extra 中，序列化时原样输出。
type Artifact struct {
	Score            int
	Strengths        []string
	Weaknesses       []string
	Recommendations  []string
	Keywords         []string
	AnalysisType     Kind
	AIProvider       Provider
	DetailedFeedback string
	Extra            map[string]any
	CreatedAt        time.Time
}

// Slot 是唯一性单位：(user, kind, provider)。
type Slot struct {
	UserID   uint
	Kind     Kind
	Provider Provider
}

func (s Slot) String() string {
	return fmt.Sprintf("user_%d/%s_%s", s.UserID, s.Kind, s.Provider)
}

// SlotOf 返回 artifact 所属的槽位。
func (a *Artifact) SlotOf(userID uint) Slot {
	return Slot{UserID: userID, Kind: a.AnalysisType, Provider: a.AIProvider}
}

var knownFields = map[string]struct{}{
	"score":             {},
	"strengths":         {},
	"weaknesses":        {},
	"recommendations":   {},
	"keywords":          {},
	"analysis_type":     {},
	"ai_provider":       {},
	"detailed_feedback": {},
	"created_at":        {},
}

// IsKnownField 报告 key 是否属于 Artifact 的固定字段。
func IsKnownField(key string) bool {
	_, ok := knownFields[key]
	return ok
}

func (a Artifact) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+len(knownFields))
	for k, v := range a.Extra {
		if IsKnownField(k) {
			continue
		}
		out[k] = v
	}
	out["score"] = a.Score
	out["strengths"] = nonNil(a.Strengths)
	out["weaknesses"] = nonNil(a.Weaknesses)
	out["recommendations"] = nonNil(a.Recommendations)
	out["keywords"] = nonNil(a.Keywords)
	out["analysis_type"] = a.AnalysisType
	out["ai_provider"] = a.AIProvider
	out["detailed_feedback"] = a.DetailedFeedback
	if !a.CreatedAt.IsZero() {
		out["created_at"] = a.CreatedAt.UTC().Format(time.RFC3339)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded Artifact
	fields := []struct {
		key string
		dst any
	}{
		{"score", &decoded.Score},
		{"strengths", &decoded.Strengths},
		{"weaknesses", &decoded.Weaknesses},
		{"recommendations", &decoded.Recommendations},
		{"keywords", &decoded.Keywords},
		{"analysis_type", &decoded.AnalysisType},
		{"ai_provider", &decoded.AIProvider},
		{"detailed_feedback", &decoded.DetailedFeedback},
	}
	for _, f := range fields {
		value, ok := raw[f.key]
		if !ok || string(value) == "null" {
			continue
		}
		if err := json.Unmarshal(value, f.dst); err != nil {
			return fmt.Errorf("decode %s: %w", f.key, err)
		}
	}
	if value, ok := raw["created_at"]; ok && string(value) != "null" {
		var ts string
		if err := json.Unmarshal(value, &ts); err != nil {
			return fmt.Errorf("decode created_at: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return fmt.Errorf("parse created_at: %w", err)
		}
		decoded.CreatedAt = parsed
	}

	for k, v := range raw {
		if IsKnownField(k) {
			continue
		}
		if decoded.Extra == nil {
			decoded.Extra = make(map[string]any)
		}
		var value any
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		decoded.Extra[k] = value
	}

	decoded.Strengths = nonNil(decoded.Strengths)
	decoded.Weaknesses = nonNil(decoded.Weaknesses)
	decoded.Recommendations = nonNil(decoded.Recommendations)
	decoded.Keywords = nonNil(decoded.Keywords)

	*a = decoded
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
