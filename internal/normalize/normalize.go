// Package normalize 把模型的原始回复解析为结构合法的 Artifact。
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"cvinsight/internal/analysis"
)

var errNoObject = errors.New("no JSON object found in reply")

// Normalize 从 raw 中找到第一个平衡的 JSON 对象并校验。
// analysis_type / ai_provider 总是被调用方传入的值覆盖。
func Normalize(raw string, kind analysis.Kind, provider analysis.Provider) (*analysis.Artifact, error) {
	obj, err := FirstObject(raw)
	if err != nil {
		return nil, analysis.MalformedResponse(provider, raw, err, "reply does not contain a JSON object")
	}

	score, err := coerceScore(obj["score"])
	if err != nil {
		return nil, analysis.MalformedResponse(provider, raw, err, "invalid score")
	}

	artifact := &analysis.Artifact{
		Score:            score,
		Strengths:        stringSlice(obj["strengths"]),
		Weaknesses:       stringSlice(obj["weaknesses"]),
		Recommendations:  stringSlice(obj["recommendations"]),
		Keywords:         stringSlice(obj["keywords"]),
		AnalysisType:     kind,
		AIProvider:       provider,
		DetailedFeedback: stringValue(obj["detailed_feedback"]),
	}

	for key, value := range obj {
		if analysis.IsKnownField(key) {
			continue
		}
		if artifact.Extra == nil {
			artifact.Extra = make(map[string]any)
		}
		artifact.Extra[key] = value
	}
	return artifact, nil
}

// FirstObject 定位并解析 text 中第一个平衡的 {...}。
// 代码围栏和前后的说明文字都会被跳过；字符串中的花括号与转义字符不计入平衡。
func FirstObject(text string) (map[string]any, error) {
	var lastErr error
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end >= 0 {
			obj, err := decodeObject(text[start : end+1])
			if err == nil {
				return obj, nil
			}
			lastErr = err
		}

		// 未闭合或无法解析的 '{' 只是说明文字，从下一个 '{' 继续。
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errNoObject
}

// matchBrace 返回与 text[start] 处 '{' 配对的 '}' 下标，找不到时返回 -1。
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(candidate string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}
	if obj == nil {
		return nil, errNoObject
	}
	return obj, nil
}

// coerceScore 接受整数、浮点（四舍五入）和数字字符串，结果截断到 [0, 100]。
func coerceScore(v any) (int, error) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, errors.New("score is missing")
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("score %q is not a number", val.String())
		}
		f = parsed
	case float64:
		f = val
	case string:
		s := strings.TrimSpace(val)
		s = strings.TrimSuffix(s, "%")
		if i := strings.Index(s, "/"); i > 0 {
			// "85/100"
			s = strings.TrimSpace(s[:i])
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("score %q is not numeric", val)
		}
		f = parsed
	case bool:
		return 0, errors.New("score is a boolean")
	default:
		return 0, fmt.Errorf("score has unsupported type %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("score is not finite")
	}
	f = math.Round(f)
	switch {
	case f < 0:
		return 0, nil
	case f > 100:
		return 100, nil
	}
	return int(f), nil
}

// stringSlice 缺失或类型不符时返回空切片；非字符串元素转为字符串，null 变为 "" 以保留位置。
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, isString := v.(string); isString && strings.TrimSpace(s) != "" {
			return []string{s}
		}
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringValue(item))
	}
	return out
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(buf.String())
	}
}
