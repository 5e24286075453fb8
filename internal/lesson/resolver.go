package lesson

import (
	"strings"

	"github.com/tidwall/gjson"
)

type predicate struct {
	kind  Kind
	match func(root gjson.Result, slug string) bool
}

// resolveOrder 顺序即优先级，命中第一个即返回
var resolveOrder = []predicate{
	{KindLikert, func(r gjson.Result, _ string) bool {
		return r.Get("likert.items").IsArray()
	}},
	{KindReframe, func(r gjson.Result, _ string) bool {
		return r.Get("reframe.blocks").IsArray() &&
			r.Get("reframe.frames").IsArray() &&
			r.Get("reframe.correct").IsObject()
	}},
	{KindRevenueSources, func(r gjson.Result, _ string) bool {
		return r.Get("revenueSources.options").IsArray()
	}},
	{KindWeeklyPlan, func(r gjson.Result, _ string) bool {
		return r.Get("weeklyPlan").IsObject()
	}},
	{KindPersona, func(r gjson.Result, slug string) bool {
		return r.Get("persona").IsObject() ||
			r.Get("template").String() == "persona" ||
			strings.Contains(strings.ToLower(slug), "persona")
	}},
	{KindValues, func(r gjson.Result, _ string) bool {
		return r.Get("template").String() == "values" ||
			r.Get("values.suggestions").IsArray()
	}},
	{KindCardSelect, func(r gjson.Result, _ string) bool {
		return r.Get("cardSelect.cards").IsArray()
	}},
	{KindMultiPrompt, func(r gjson.Result, _ string) bool {
		return nonEmptyArray(r.Get("prompts"))
	}},
	{KindCompare, func(r gjson.Result, _ string) bool {
		return nonEmptyArray(r.Get("compareRows"))
	}},
	{KindQuiz, func(r gjson.Result, _ string) bool {
		return r.Get("quiz.options").IsArray()
	}},
}

func nonEmptyArray(r gjson.Result) bool {
	return r.IsArray() && len(r.Array()) > 0
}

// Normalize 把内容描述规整成 JSON 对象。
// 数据库里可能存的是 JSON 字符串，需要先解一层；非法内容一律当作 {}
func Normalize(raw []byte) []byte {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return []byte("{}")
	}
	root := gjson.ParseBytes(raw)
	if root.Type == gjson.String {
		inner := []byte(root.Str)
		if !gjson.ValidBytes(inner) {
			return []byte("{}")
		}
		root = gjson.ParseBytes(inner)
		raw = inner
	}
	if !root.IsObject() {
		return []byte("{}")
	}
	return raw
}

// Resolve 根据内容描述的结构选出课节组件类型，永不报错
func Resolve(raw []byte, slug string) Kind {
	return resolveRoot(gjson.ParseBytes(Normalize(raw)), slug)
}
