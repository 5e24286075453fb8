package lesson

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

type Values struct {
	Lead        string   `json:"lead,omitempty"`
	Suggestions []string `json:"suggestions"`
	Min         int      `json:"min"`
	Max         int      `json:"max"`
	ExplainQ    string   `json:"explainQuestion,omitempty"`
	ExplainHint string   `json:"explainPlaceholder,omitempty"`
	TipMarkdown string   `json:"tip_md,omitempty"`
}

type ValuesState struct {
	// Available 可选的价值标签，包含用户自定义的
	Available   []string
	Selected    []string
	Explanation string
}

func (ValuesState) widgetKind() Kind { return KindValues }

func parseValues(root gjson.Result) *Values {
	w := &Values{
		Lead:        normalizeText(root.Get("lead").String()),
		ExplainQ:    root.Get("explain.question").String(),
		ExplainHint: root.Get("explain.placeholder").String(),
		TipMarkdown: root.Get("tip_md").String(),
	}
	w.Min = max(1, intOr(root.Get("values.min"), 3))
	w.Max = max(w.Min, intOr(root.Get("values.max"), 5))
	for _, s := range stringList(root.Get("values.suggestions")) {
		s = strings.TrimSpace(s)
		if s != "" && indexOf(w.Suggestions, s) < 0 {
			w.Suggestions = append(w.Suggestions, s)
		}
	}
	return w
}

func (w *Values) Kind() Kind { return KindValues }

// Load 已选中的值会合并回可选池，自定义值不会丢失
func (w *Values) Load(prev json.RawMessage) State {
	root := prevRoot(prev)
	st := ValuesState{Explanation: root.Get("explanation").String()}
	for _, v := range stringList(root.Get("selected")) {
		v = strings.TrimSpace(v)
		if v != "" && indexOf(st.Selected, v) < 0 && len(st.Selected) < w.Max {
			st.Selected = append(st.Selected, v)
		}
	}
	for _, v := range append(append([]string(nil), st.Selected...), w.Suggestions...) {
		if indexOf(st.Available, v) < 0 {
			st.Available = append(st.Available, v)
		}
	}
	return st
}

func (w *Values) state(s State) (ValuesState, error) {
	st, ok := s.(ValuesState)
	if !ok {
		return ValuesState{}, ErrStateMismatch
	}
	st.Available = append([]string(nil), st.Available...)
	st.Selected = append([]string(nil), st.Selected...)
	return st, nil
}

func (w *Values) Reduce(s State, ev Event) (State, Effect, error) {
	st, err := w.state(s)
	if err != nil {
		return s, noEffect, err
	}

	switch ev.Type {
	case "select", "add_custom":
		v := strings.TrimSpace(ev.Text)
		// 重复或已达上限时静默忽略
		if v == "" || indexOf(st.Selected, v) >= 0 || len(st.Selected) >= w.Max {
			return s, noEffect, nil
		}
		st.Selected = append(st.Selected, v)
		if indexOf(st.Available, v) < 0 {
			st.Available = append(st.Available, v)
		}
		return st, debounced, nil
	case "remove":
		if indexOf(st.Selected, ev.Text) < 0 {
			return s, noEffect, nil
		}
		st.Selected = without(st.Selected, ev.Text)
		return st, debounced, nil
	case "reorder":
		n := len(st.Selected)
		if ev.From == ev.To || ev.From < 0 || ev.From >= n || ev.To < 0 || ev.To >= n {
			return s, noEffect, nil
		}
		moved := st.Selected[ev.From]
		rest := append(append([]string(nil), st.Selected[:ev.From]...), st.Selected[ev.From+1:]...)
		st.Selected = append(rest[:ev.To], append([]string{moved}, rest[ev.To:]...)...)
		return st, debounced, nil
	case "set_explanation":
		st.Explanation = ev.Text
		return st, debounced, nil
	}
	return s, noEffect, ErrUnknownEvent
}

func (w *Values) Payload(s State) (json.RawMessage, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	selected := st.Selected
	if selected == nil {
		selected = []string{}
	}
	return marshal(map[string]any{"selected": selected, "explanation": st.Explanation})
}

func (w *Values) CanAdvance(s State) bool {
	st, ok := s.(ValuesState)
	if !ok {
		return false
	}
	return len(st.Selected) >= w.Min && len(st.Selected) <= w.Max
}

type valuesView struct {
	*Values
	Available   []string `json:"available"`
	Selected    []string `json:"selected"`
	Explanation string   `json:"explanation"`
	CanProceed  bool     `json:"canProceed"`
}

func (w *Values) View(s State) any {
	st, _ := w.state(s)
	return valuesView{
		Values:      w,
		Available:   st.Available,
		Selected:    st.Selected,
		Explanation: st.Explanation,
		CanProceed:  w.CanAdvance(s),
	}
}
