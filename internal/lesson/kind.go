package lesson

// Kind 课节组件类型
type Kind string

const (
	KindLikert         Kind = "likert"
	KindReframe        Kind = "reframe"
	KindRevenueSources Kind = "revenue_sources"
	KindWeeklyPlan     Kind = "weekly_plan"
	KindPersona        Kind = "persona"
	KindValues         Kind = "values"
	KindCardSelect     Kind = "card_select"
	KindMultiPrompt    Kind = "multi_prompt"
	KindCompare        Kind = "compare"
	KindQuiz           Kind = "quiz"
	KindFallback       Kind = "fallback"
)

func (k Kind) String() string {
	return string(k)
}

// Kinds 按解析优先级排列
func Kinds() []Kind {
	out := make([]Kind, 0, len(resolveOrder)+1)
	for _, p := range resolveOrder {
		out = append(out, p.kind)
	}
	return append(out, KindFallback)
}
