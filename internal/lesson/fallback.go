package lesson

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

type Checkbox struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Fallback 无法识别的内容统一按自由笔记处理，可选附带复选框
type Fallback struct {
	Lead            string     `json:"lead,omitempty"`
	BodyMD          string     `json:"body_md,omitempty"`
	Tip             string     `json:"tip,omitempty"`
	ReflectionLabel string     `json:"reflectionLabel,omitempty"`
	Checkboxes      []Checkbox `json:"checkboxes,omitempty"`
}

type FallbackState struct {
	Notes    string
	Selected []string
}

func (FallbackState) widgetKind() Kind { return KindFallback }

func parseFallback(root gjson.Result) *Fallback {
	w := &Fallback{
		Lead:            root.Get("lead").String(),
		BodyMD:          root.Get("body_md").String(),
		Tip:             root.Get("tip").String(),
		ReflectionLabel: root.Get("reflectionLabel").String(),
	}
	root.Get("checkboxes").ForEach(func(_, c gjson.Result) bool {
		w.Checkboxes = append(w.Checkboxes, Checkbox{ID: c.Get("id").String(), Label: c.Get("label").String()})
		return true
	})
	return w
}

func (w *Fallback) Kind() Kind { return KindFallback }

func (w *Fallback) Load(prev json.RawMessage) State {
	root := prevRoot(prev)
	return FallbackState{
		Notes:    root.Get("notes").String(),
		Selected: stringList(root.Get("selected")),
	}
}

func (w *Fallback) Reduce(s State, ev Event) (State, Effect, error) {
	st, ok := s.(FallbackState)
	if !ok {
		return s, noEffect, ErrStateMismatch
	}
	st.Selected = append([]string(nil), st.Selected...)

	switch ev.Type {
	case "set_notes":
		st.Notes = ev.Text
		return st, debounced, nil
	case "toggle":
		if ev.Target == "" {
			return s, noEffect, ErrUnknownTarget
		}
		if indexOf(st.Selected, ev.Target) >= 0 {
			st.Selected = without(st.Selected, ev.Target)
		} else {
			st.Selected = append(st.Selected, ev.Target)
		}
		return st, debounced, nil
	}
	return s, noEffect, ErrUnknownEvent
}

func (w *Fallback) Payload(s State) (json.RawMessage, error) {
	st, ok := s.(FallbackState)
	if !ok {
		return nil, ErrStateMismatch
	}
	selected := st.Selected
	if selected == nil {
		selected = []string{}
	}
	return marshal(map[string]any{"notes": st.Notes, "selected": selected})
}

func (w *Fallback) CanAdvance(State) bool { return true }

type fallbackView struct {
	*Fallback
	Notes    string   `json:"notes"`
	Selected []string `json:"selected"`
}

func (w *Fallback) View(s State) any {
	st, _ := s.(FallbackState)
	return fallbackView{Fallback: w, Notes: st.Notes, Selected: st.Selected}
}
