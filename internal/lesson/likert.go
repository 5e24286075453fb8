package lesson

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	likertMin = 1
	likertMax = 5
)

// 没有配置评估规则或规则都未命中时的兜底文案
var likertFallbackTiers = []struct {
	max  int
	text string
}{
	{10, "Perfekter Startpunkt. Fokus: raus aus dem Tagesgeschäft, Preise & Prozesse klären, erste Delegations-Schritte gehen."},
	{18, "Guter Weg! Du wechselst vom Operativen ins Unternehmer-Denken. Nächste Schritte: Standards, einfache Automationen, delegierbare To-dos sammeln."},
	{math.MaxInt, "Starkes Unternehmer-Mindset! Baue skalierbare Systeme, führe über Ziele/KPIs und nutze freie Zeit für Wachstum."},
}

type LikertItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LikertRule Min/Max 缺省表示无界
type LikertRule struct {
	Min  *int   `json:"min,omitempty"`
	Max  *int   `json:"max,omitempty"`
	Text string `json:"text"`
}

func (r LikertRule) matches(score int) bool {
	if r.Min != nil && score < *r.Min {
		return false
	}
	if r.Max != nil && score > *r.Max {
		return false
	}
	return true
}

type Likert struct {
	Lead       string       `json:"lead,omitempty"`
	Hint       string       `json:"hint,omitempty"`
	LeftLabel  string       `json:"leftLabel"`
	RightLabel string       `json:"rightLabel"`
	Items      []LikertItem `json:"items"`
	ShowScore  bool         `json:"showScore"`
	Rules      []LikertRule `json:"-"`
}

type LikertState struct {
	Answers map[string]int
}

func (LikertState) widgetKind() Kind { return KindLikert }

func optionalInt(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	v := int(r.Int())
	return &v
}

func parseLikert(root gjson.Result) *Likert {
	l := root.Get("likert")
	w := &Likert{
		Lead:       root.Get("lead").String(),
		Hint:       root.Get("hint").String(),
		LeftLabel:  "Trifft nicht zu",
		RightLabel: "Trifft voll zu",
		ShowScore:  root.Get("evaluation.showScore").Bool(),
	}
	if v := l.Get("leftLabel"); v.Exists() {
		w.LeftLabel = strings.ReplaceAll(v.String(), `\n`, " ")
	}
	if v := l.Get("rightLabel"); v.Exists() {
		w.RightLabel = strings.ReplaceAll(v.String(), `\n`, " ")
	}
	l.Get("items").ForEach(func(_, it gjson.Result) bool {
		w.Items = append(w.Items, LikertItem{
			ID:   it.Get("id").String(),
			Text: strings.TrimSpace(firstString(it, "text", "label", "statement")),
		})
		return true
	})
	root.Get("evaluation.rules").ForEach(func(_, r gjson.Result) bool {
		w.Rules = append(w.Rules, LikertRule{
			Min:  optionalInt(r.Get("min")),
			Max:  optionalInt(r.Get("max")),
			Text: r.Get("text").String(),
		})
		return true
	})
	return w
}

func (w *Likert) Kind() Kind { return KindLikert }

func (w *Likert) hasItem(id string) bool {
	for _, it := range w.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func (w *Likert) Load(prev json.RawMessage) State {
	st := LikertState{Answers: map[string]int{}}
	answers := prevRoot(prev).Get("likert.answers")
	if !answers.IsObject() {
		return st
	}
	answers.ForEach(func(k, v gjson.Result) bool {
		n := intOr(v, 0)
		if w.hasItem(k.String()) && n >= likertMin && n <= likertMax {
			st.Answers[k.String()] = n
		}
		return true
	})
	return st
}

func (w *Likert) state(s State) (LikertState, error) {
	st, ok := s.(LikertState)
	if !ok {
		return LikertState{}, ErrStateMismatch
	}
	answers := make(map[string]int, len(st.Answers))
	for k, v := range st.Answers {
		answers[k] = v
	}
	st.Answers = answers
	return st, nil
}

func (w *Likert) Reduce(s State, ev Event) (State, Effect, error) {
	st, err := w.state(s)
	if err != nil {
		return s, noEffect, err
	}
	if ev.Type != "answer" {
		return s, noEffect, ErrUnknownEvent
	}
	if !w.hasItem(ev.ID) || ev.Value < likertMin || ev.Value > likertMax {
		return s, noEffect, ErrUnknownTarget
	}
	st.Answers[ev.ID] = ev.Value
	return st, debounced, nil
}

func (w *Likert) Payload(s State) (json.RawMessage, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	return marshal(map[string]any{"likert": map[string]any{"answers": st.Answers}})
}

// Score 未作答的题按 0 计
func (w *Likert) Score(s State) int {
	st, _ := s.(LikertState)
	sum := 0
	for _, it := range w.Items {
		sum += st.Answers[it.ID]
	}
	return sum
}

func (w *Likert) MaxScore() int {
	return len(w.Items) * likertMax
}

// Evaluation 第一条区间命中的规则；都不命中时按固定三档兜底
func (w *Likert) Evaluation(score int) string {
	for _, r := range w.Rules {
		if r.matches(score) {
			if r.Text != "" {
				return r.Text
			}
			break
		}
	}
	for _, t := range likertFallbackTiers {
		if score <= t.max {
			return t.text
		}
	}
	return ""
}

func (w *Likert) CanAdvance(State) bool { return true }

type likertView struct {
	*Likert
	Answers    map[string]int `json:"answers"`
	Score      *int           `json:"score,omitempty"`
	MaxScore   *int           `json:"maxScore,omitempty"`
	Evaluation string         `json:"evaluation"`
}

func (w *Likert) View(s State) any {
	st, _ := w.state(s)
	score := w.Score(s)
	v := likertView{Likert: w, Answers: st.Answers, Evaluation: w.Evaluation(score)}
	if w.ShowScore {
		max := w.MaxScore()
		v.Score, v.MaxScore = &score, &max
	}
	return v
}
