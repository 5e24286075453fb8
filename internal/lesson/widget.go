package lesson

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// State 组件的内存状态。每种组件有自己的状态类型
type State interface {
	widgetKind() Kind
}

// Widget 单个课节组件的状态机。
// Reduce 是纯函数：不修改入参状态，返回新状态与副作用
type Widget interface {
	Kind() Kind
	Load(prev json.RawMessage) State
	Reduce(s State, ev Event) (State, Effect, error)
	Payload(s State) (json.RawMessage, error)
	CanAdvance(s State) bool
	View(s State) any
}

// Rewritable 支持 AI 改写的组件
type Rewritable interface {
	RewriteRequests(s State, field string, lc Context) ([]RewriteRequest, error)
	ApplyRewrite(s State, field, text string) (State, error)
}

// ImageAttacher 支持图片附件的组件
type ImageAttacher interface {
	AttachImage(s State, targetID string, a Attachment) (State, error)
}

// Context 课节所在的模块信息，AI 改写时作为输入
type Context struct {
	ModuleID    string
	ModuleSlug  string
	LessonID    string
	LessonSlug  string
	LessonTitle string
}

// RewriteRequest 一次 AI 改写调用，Field 为回填位置
type RewriteRequest struct {
	Field       string
	PromptType  string
	Inputs      map[string]any
	Temperature float64
}

// Event 前端提交的组件事件
type Event struct {
	Type   string `json:"type" binding:"required"`
	ID     string `json:"id,omitempty"`
	Target string `json:"target,omitempty"`
	Field  string `json:"field,omitempty"`
	Text   string `json:"text,omitempty"`
	Value  int    `json:"value,omitempty"`
	Index  int    `json:"index,omitempty"`
	From   int    `json:"from,omitempty"`
	To     int    `json:"to,omitempty"`
}

type Persist int

const (
	PersistNone Persist = iota
	PersistDebounced
	PersistImmediate
)

func (p Persist) String() string {
	switch p {
	case PersistDebounced:
		return "debounced"
	case PersistImmediate:
		return "immediate"
	default:
		return "none"
	}
}

// Effect Reduce 的副作用描述
type Effect struct {
	Persist Persist `json:"persist"`
	// Shake 拖放被拒绝的块 ID
	Shake string `json:"shake,omitempty"`
}

var (
	debounced = Effect{Persist: PersistDebounced}
	immediate = Effect{Persist: PersistImmediate}
	noEffect  = Effect{}
)

// Parse 把内容描述转换为对应组件，内容非法时退化为自由笔记
func Parse(raw []byte, slug string) Widget {
	root := gjson.ParseBytes(Normalize(raw))
	switch resolveRoot(root, slug) {
	case KindLikert:
		return parseLikert(root)
	case KindReframe:
		return parseReframe(root)
	case KindRevenueSources:
		return parseRevenueSources(root)
	case KindWeeklyPlan:
		return parseWeeklyPlan(root)
	case KindPersona:
		return parsePersona(root)
	case KindValues:
		return parseValues(root)
	case KindCardSelect:
		return parseCardSelect(root)
	case KindMultiPrompt:
		return parseMultiPrompt(root)
	case KindCompare:
		return parseCompare(root)
	case KindQuiz:
		return parseQuiz(root)
	default:
		return parseFallback(root)
	}
}

func resolveRoot(root gjson.Result, slug string) Kind {
	for _, p := range resolveOrder {
		if p.match(root, slug) {
			return p.kind
		}
	}
	return KindFallback
}

func marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// prevRoot 解析历史答案；非对象一律视为空
func prevRoot(prev json.RawMessage) gjson.Result {
	if len(prev) == 0 || !gjson.ValidBytes(prev) {
		return gjson.Result{}
	}
	r := gjson.ParseBytes(prev)
	if !r.IsObject() {
		return gjson.Result{}
	}
	return r
}
