package analysis

import (
	"strings"
)

// Kind 表示分析类型，闭集共十种，每种对应一份提示词模板。
type Kind string

const (
	KindGeneralHealthCheck           Kind = "general_health_check"
	KindContentQualityAnalysis       Kind = "content_quality_analysis"
	KindJobTailoringOptimization     Kind = "job_tailoring_optimization"
	KindATSCompatibilityVerification Kind = "ats_compatibility_verification"
	KindToneStyleEvaluation          Kind = "tone_style_evaluation"
	KindIndustryRoleFeedback         Kind = "industry_role_feedback"
	KindBenchmarkingComparison       Kind = "benchmarking_comparison"
	KindAIImprovementSuggestions     Kind = "ai_improvement_suggestions"
	KindVisualDesignAssessment       Kind = "visual_design_assessment"
	KindComprehensiveScore           Kind = "comprehensive_score"
)

var kindOrder = []Kind{
	KindGeneralHealthCheck,
	KindContentQualityAnalysis,
	KindJobTailoringOptimization,
	KindATSCompatibilityVerification,
	KindToneStyleEvaluation,
	KindIndustryRoleFeedback,
	KindBenchmarkingComparison,
	KindAIImprovementSuggestions,
	KindVisualDesignAssessment,
	KindComprehensiveScore,
}

var kindTitles = map[Kind]string{
	KindGeneralHealthCheck:           "General CV Health Check",
	KindContentQualityAnalysis:       "Content Quality Analysis",
	KindJobTailoringOptimization:     "Job Tailoring Optimization",
	KindATSCompatibilityVerification: "ATS Compatibility Verification",
	KindToneStyleEvaluation:          "Tone & Style Evaluation",
	KindIndustryRoleFeedback:         "Industry & Role Feedback",
	KindBenchmarkingComparison:       "Benchmarking Comparison",
	KindAIImprovementSuggestions:     "AI Improvement Suggestions",
	KindVisualDesignAssessment:       "Visual Design Assessment",
	KindComprehensiveScore:           "Comprehensive Score",
}

// Kinds 按固定顺序返回全部分析类型。
func Kinds() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// ParseKind 解析分析类型，大小写与首尾空白不敏感。
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", UnknownKind(raw)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	_, ok := kindTitles[k]
	return ok
}

// Title 返回用于展示的名称。
func (k Kind) Title() string {
	return kindTitles[k]
}

func (k Kind) String() string { return string(k) }
