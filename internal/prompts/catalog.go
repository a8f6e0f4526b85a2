// Package prompts 保存每种分析类型对应的提示词模板。
package prompts

import (
	"embed"
	"fmt"
	"strings"

	"cvinsight/internal/analysis"
)

// Placeholder 是模板中唯一的替换点。
const Placeholder = "{{CV_TEXT}}"

// SystemPrompt 对所有分析类型和所有 provider 通用。
const SystemPrompt = `You are an experienced recruiter and career coach who reviews résumés.

Respond with a single JSON object and nothing else: no markdown, no code fences, no commentary before or after it.

The object must contain these fields:
{
  "score": <integer from 0 to 100>,
  "strengths": [<string>, ...],
  "weaknesses": [<string>, ...],
  "recommendations": [<string>, ...],
  "keywords": [<string>, ...],
  "detailed_feedback": <string>
}

Include any additional fields the task asks for at the top level of the same object. Write all text in the language of the résumé.`

//go:embed templates/*.md
var templateFS embed.FS

var templates = mustLoad()

func mustLoad() map[analysis.Kind]string {
	out := make(map[analysis.Kind]string, len(analysis.Kinds()))
	for _, kind := range analysis.Kinds() {
		raw, err := templateFS.ReadFile("templates/" + string(kind) + ".md")
		if err != nil {
			panic(fmt.Sprintf("prompts: missing template for %s: %v", kind, err))
		}
		tpl := string(raw)
		if strings.Count(tpl, Placeholder) != 1 {
			panic(fmt.Sprintf("prompts: template for %s must contain exactly one %s", kind, Placeholder))
		}
		out[kind] = tpl
	}
	return out
}

// Template 返回 kind 对应的原始模板。
func Template(kind analysis.Kind) (string, error) {
	tpl, ok := templates[kind]
	if !ok {
		return "", analysis.UnknownKind(string(kind))
	}
	return tpl, nil
}

// Compose 返回 (system prompt, user prompt)。
func Compose(kind analysis.Kind, text string) (string, string, error) {
	tpl, err := Template(kind)
	if err != nil {
		return "", "", err
	}
	return SystemPrompt, strings.Replace(tpl, Placeholder, text, 1), nil
}
