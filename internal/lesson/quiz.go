package lesson

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

type QuizOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Quiz struct {
	Lead        string       `json:"lead,omitempty"`
	Scenario    string       `json:"scenario"`
	Options     []QuizOption `json:"options"`
	CorrectKey  string       `json:"-"`
	Explanation string       `json:"-"`
}

type QuizState struct {
	Selected string `json:"selected"`
}

func (QuizState) widgetKind() Kind { return KindQuiz }

func parseQuiz(root gjson.Result) *Quiz {
	q := root.Get("quiz")
	w := &Quiz{
		Lead:        root.Get("lead").String(),
		Scenario:    normalizeText(q.Get("scenario").String()),
		CorrectKey:  q.Get("correctKey").String(),
		Explanation: normalizeText(q.Get("explanation").String()),
	}
	q.Get("options").ForEach(func(_, o gjson.Result) bool {
		// 兼容 label / text 两种写法
		w.Options = append(w.Options, QuizOption{
			Key:   o.Get("key").String(),
			Label: firstString(o, "label", "text"),
		})
		return true
	})
	return w
}

func (w *Quiz) Kind() Kind { return KindQuiz }

func (w *Quiz) Load(prev json.RawMessage) State {
	sel := prevRoot(prev).Get("quiz.selected")
	if sel.Type != gjson.String || !w.hasOption(sel.Str) {
		return QuizState{}
	}
	return QuizState{Selected: sel.Str}
}

func (w *Quiz) hasOption(key string) bool {
	for _, o := range w.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

func (w *Quiz) Reduce(s State, ev Event) (State, Effect, error) {
	if _, ok := s.(QuizState); !ok {
		return s, noEffect, ErrStateMismatch
	}
	if ev.Type != "select" {
		return s, noEffect, ErrUnknownEvent
	}
	if !w.hasOption(ev.Target) {
		return s, noEffect, ErrUnknownTarget
	}
	return QuizState{Selected: ev.Target}, immediate, nil
}

func (w *Quiz) Payload(s State) (json.RawMessage, error) {
	st, ok := s.(QuizState)
	if !ok {
		return nil, ErrStateMismatch
	}
	var selected any
	if st.Selected != "" {
		selected = st.Selected
	}
	return marshal(map[string]any{
		"quiz": map[string]any{
			"selected": selected,
			"correct":  st.Selected != "" && st.Selected == w.CorrectKey,
		},
	})
}

func (w *Quiz) CanAdvance(s State) bool {
	st, ok := s.(QuizState)
	return ok && st.Selected != ""
}

type quizView struct {
	*Quiz
	Selected string `json:"selected,omitempty"`
	Correct  bool   `json:"correct"`
	// Explanation 只在选对时下发
	Explanation string `json:"explanation,omitempty"`
}

func (w *Quiz) View(s State) any {
	st, _ := s.(QuizState)
	v := quizView{Quiz: w, Selected: st.Selected}
	if st.Selected != "" && st.Selected == w.CorrectKey {
		v.Correct = true
		v.Explanation = w.Explanation
	}
	return v
}
