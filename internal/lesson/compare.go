package lesson

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	ChoiceLeft  = "left"
	ChoiceRight = "right"
)

type CompareRow struct {
	ID    string `json:"id"`
	Left  string `json:"left"`
	Right string `json:"right"`
	Tip   string `json:"tip,omitempty"`
}

type Compare struct {
	Lead            string       `json:"lead,omitempty"`
	Tip             string       `json:"tip,omitempty"`
	AIPromptType    string       `json:"aiPromptType"`
	ReflectionLabel string       `json:"reflectionLabel,omitempty"`
	Rows            []CompareRow `json:"rows"`
}

type CompareState struct {
	Notes   string
	Choices map[string]string
}

func (CompareState) widgetKind() Kind { return KindCompare }

func parseCompare(root gjson.Result) *Compare {
	w := &Compare{
		Lead:            root.Get("lead").String(),
		Tip:             root.Get("tip").String(),
		AIPromptType:    root.Get("aiPromptType").String(),
		ReflectionLabel: root.Get("reflectionLabel").String(),
	}
	if w.AIPromptType == "" {
		w.AIPromptType = defaultAIPromptType
	}
	root.Get("compareRows").ForEach(func(_, r gjson.Result) bool {
		w.Rows = append(w.Rows, CompareRow{
			ID:    r.Get("id").String(),
			Left:  r.Get("left").String(),
			Right: r.Get("right").String(),
			Tip:   r.Get("tip").String(),
		})
		return true
	})
	return w
}

func (w *Compare) Kind() Kind { return KindCompare }

func (w *Compare) hasRow(id string) bool {
	for _, r := range w.Rows {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (w *Compare) Load(prev json.RawMessage) State {
	root := prevRoot(prev)
	st := CompareState{Notes: root.Get("notes").String(), Choices: map[string]string{}}
	root.Get("compare").ForEach(func(_, c gjson.Result) bool {
		id, choice := c.Get("rowId").String(), c.Get("choice").String()
		if w.hasRow(id) && (choice == ChoiceLeft || choice == ChoiceRight) {
			st.Choices[id] = choice
		}
		return true
	})
	return st
}

func (w *Compare) state(s State) (CompareState, error) {
	st, ok := s.(CompareState)
	if !ok {
		return CompareState{}, ErrStateMismatch
	}
	choices := make(map[string]string, len(st.Choices))
	for k, v := range st.Choices {
		choices[k] = v
	}
	st.Choices = choices
	return st, nil
}

func (w *Compare) Reduce(s State, ev Event) (State, Effect, error) {
	st, err := w.state(s)
	if err != nil {
		return s, noEffect, err
	}
	switch ev.Type {
	case "choose":
		if !w.hasRow(ev.ID) || (ev.Target != ChoiceLeft && ev.Target != ChoiceRight) {
			return s, noEffect, ErrUnknownTarget
		}
		st.Choices[ev.ID] = ev.Target
		return st, debounced, nil
	case "set_notes":
		st.Notes = ev.Text
		return st, debounced, nil
	}
	return s, noEffect, ErrUnknownEvent
}

type compareChoice struct {
	RowID  string `json:"rowId"`
	Choice string `json:"choice"`
}

// choiceList 按行顺序输出，保证序列化稳定
func (w *Compare) choiceList(st CompareState) []compareChoice {
	out := []compareChoice{}
	for _, r := range w.Rows {
		if c, ok := st.Choices[r.ID]; ok {
			out = append(out, compareChoice{RowID: r.ID, Choice: c})
		}
	}
	return out
}

func (w *Compare) Payload(s State) (json.RawMessage, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	return marshal(map[string]any{
		"notes":   st.Notes,
		"compare": w.choiceList(st),
	})
}

// Score 选择 right 的行占比，四舍五入到整数百分比
func (w *Compare) Score(s State) int {
	st, _ := s.(CompareState)
	if len(w.Rows) == 0 {
		return 0
	}
	right := 0
	for _, r := range w.Rows {
		if st.Choices[r.ID] == ChoiceRight {
			right++
		}
	}
	return int(math.Round(float64(right) / float64(len(w.Rows)) * 100))
}

// CanAdvance 分数只用于展示，不作为门槛
func (w *Compare) CanAdvance(State) bool { return true }

type compareView struct {
	*Compare
	Notes   string            `json:"notes"`
	Choices map[string]string `json:"choices"`
	Score   int               `json:"score"`
}

func (w *Compare) View(s State) any {
	st, _ := w.state(s)
	return compareView{Compare: w, Notes: st.Notes, Choices: st.Choices, Score: w.Score(s)}
}

func (w *Compare) RewriteRequests(s State, field string, lc Context) ([]RewriteRequest, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	if field != "notes" {
		return nil, ErrUnknownField
	}
	notes := strings.TrimSpace(st.Notes)
	if notes == "" || w.AIPromptType == "none" {
		return nil, ErrRewriteNotAllowed
	}
	return []RewriteRequest{{
		Field:      field,
		PromptType: w.AIPromptType,
		Inputs: map[string]any{
			"user_notes":   notes,
			"compare":      w.choiceList(st),
			"module_slug":  lc.ModuleSlug,
			"lesson_slug":  lc.LessonSlug,
			"lesson_title": lc.LessonTitle,
		},
		Temperature: 0.4,
	}}, nil
}

func (w *Compare) ApplyRewrite(s State, field, text string) (State, error) {
	st, err := w.state(s)
	if err != nil {
		return s, err
	}
	if field != "notes" {
		return s, ErrUnknownField
	}
	st.Notes = text
	return st, nil
}
