package lesson

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

type Card struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Pros        []string `json:"pros,omitempty"`
	Cons        []string `json:"cons,omitempty"`
}

type Reflection struct {
	Question    string `json:"question"`
	Placeholder string `json:"placeholder,omitempty"`
}

type CardSelect struct {
	Lead       string      `json:"lead,omitempty"`
	Heading    string      `json:"heading,omitempty"`
	Subheading string      `json:"subheading,omitempty"`
	Cards      []Card      `json:"cards"`
	Reflection *Reflection `json:"reflection,omitempty"`
}

type CardSelectState struct {
	Selected   string
	Reflection string
}

func (CardSelectState) widgetKind() Kind { return KindCardSelect }

func parseReflection(r gjson.Result) *Reflection {
	if !r.IsObject() {
		return nil
	}
	return &Reflection{Question: r.Get("question").String(), Placeholder: r.Get("placeholder").String()}
}

func parseCardSelect(root gjson.Result) *CardSelect {
	cs := root.Get("cardSelect")
	w := &CardSelect{
		Lead:       normalizeText(root.Get("lead").String()),
		Heading:    cs.Get("heading").String(),
		Subheading: normalizeText(cs.Get("subheading").String()),
		Reflection: parseReflection(cs.Get("reflection")),
	}
	cs.Get("cards").ForEach(func(_, c gjson.Result) bool {
		w.Cards = append(w.Cards, Card{
			Key:         c.Get("key").String(),
			Title:       c.Get("title").String(),
			Summary:     normalizeText(c.Get("summary").String()),
			Description: normalizeText(c.Get("description").String()),
			Pros:        stringList(c.Get("pros")),
			Cons:        stringList(c.Get("cons")),
		})
		return true
	})
	return w
}

func (w *CardSelect) Kind() Kind { return KindCardSelect }

func (w *CardSelect) card(key string) *Card {
	for i := range w.Cards {
		if w.Cards[i].Key == key {
			return &w.Cards[i]
		}
	}
	return nil
}

func (w *CardSelect) Load(prev json.RawMessage) State {
	root := prevRoot(prev).Get("card_select")
	st := CardSelectState{Reflection: root.Get("reflection").String()}
	if sel := root.Get("selected"); sel.Type == gjson.String && w.card(sel.Str) != nil {
		st.Selected = sel.Str
	}
	return st
}

func (w *CardSelect) Reduce(s State, ev Event) (State, Effect, error) {
	st, ok := s.(CardSelectState)
	if !ok {
		return s, noEffect, ErrStateMismatch
	}
	switch ev.Type {
	case "select":
		if w.card(ev.Target) == nil {
			return s, noEffect, ErrUnknownTarget
		}
		st.Selected = ev.Target
		return st, debounced, nil
	case "set_reflection":
		st.Reflection = ev.Text
		return st, debounced, nil
	}
	return s, noEffect, ErrUnknownEvent
}

func (w *CardSelect) Payload(s State) (json.RawMessage, error) {
	st, ok := s.(CardSelectState)
	if !ok {
		return nil, ErrStateMismatch
	}
	var selected any
	if st.Selected != "" {
		selected = st.Selected
	}
	return marshal(map[string]any{
		"card_select": map[string]any{"selected": selected, "reflection": st.Reflection},
	})
}

func (w *CardSelect) CanAdvance(s State) bool {
	st, ok := s.(CardSelectState)
	return ok && st.Selected != ""
}

type cardSelectView struct {
	*CardSelect
	Selected   string `json:"selected,omitempty"`
	Reflection string `json:"reflectionText"`
	// Detail 选中卡片的详情（描述、优缺点）
	Detail *Card `json:"detail,omitempty"`
}

func (w *CardSelect) View(s State) any {
	st, _ := s.(CardSelectState)
	return cardSelectView{CardSelect: w, Selected: st.Selected, Reflection: st.Reflection, Detail: w.card(st.Selected)}
}
