package lesson

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

type RevenueSource struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Desc  string `json:"desc,omitempty"`
}

type RevenueSources struct {
	Lead       string          `json:"lead,omitempty"`
	Heading    string          `json:"heading,omitempty"`
	Subheading string          `json:"subheading,omitempty"`
	Multiple   bool            `json:"multiple"`
	Options    []RevenueSource `json:"options"`
	Reflection *Reflection     `json:"reflection,omitempty"`
}

type RevenueSourcesState struct {
	Selected   []string
	Reflection string
}

func (RevenueSourcesState) widgetKind() Kind { return KindRevenueSources }

func parseRevenueSources(root gjson.Result) *RevenueSources {
	rs := root.Get("revenueSources")
	w := &RevenueSources{
		Lead:       normalizeText(root.Get("lead").String()),
		Heading:    rs.Get("heading").String(),
		Subheading: normalizeText(rs.Get("subheading").String()),
		// 默认多选，只有显式 false 才是单选
		Multiple:   rs.Get("multiple").Type != gjson.False,
		Reflection: parseReflection(rs.Get("reflection")),
	}
	rs.Get("options").ForEach(func(_, o gjson.Result) bool {
		w.Options = append(w.Options, RevenueSource{
			Key:   o.Get("key").String(),
			Title: o.Get("title").String(),
			Desc:  o.Get("desc").String(),
		})
		return true
	})
	return w
}

func (w *RevenueSources) Kind() Kind { return KindRevenueSources }

func (w *RevenueSources) hasOption(key string) bool {
	for _, o := range w.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

func (w *RevenueSources) Load(prev json.RawMessage) State {
	root := prevRoot(prev).Get("revenue_sources")
	st := RevenueSourcesState{Reflection: root.Get("reflection").String()}
	for _, k := range stringList(root.Get("selected")) {
		if w.hasOption(k) && indexOf(st.Selected, k) < 0 {
			st.Selected = append(st.Selected, k)
		}
	}
	if !w.Multiple && len(st.Selected) > 1 {
		st.Selected = st.Selected[:1]
	}
	return st
}

func (w *RevenueSources) Reduce(s State, ev Event) (State, Effect, error) {
	st, ok := s.(RevenueSourcesState)
	if !ok {
		return s, noEffect, ErrStateMismatch
	}
	st.Selected = append([]string(nil), st.Selected...)

	switch ev.Type {
	case "toggle":
		if !w.hasOption(ev.Target) {
			return s, noEffect, ErrUnknownTarget
		}
		switch {
		case indexOf(st.Selected, ev.Target) >= 0:
			st.Selected = without(st.Selected, ev.Target)
		case w.Multiple:
			st.Selected = append(st.Selected, ev.Target)
		default:
			st.Selected = []string{ev.Target}
		}
		return st, debounced, nil
	case "set_reflection":
		st.Reflection = ev.Text
		return st, debounced, nil
	}
	return s, noEffect, ErrUnknownEvent
}

func (w *RevenueSources) Payload(s State) (json.RawMessage, error) {
	st, ok := s.(RevenueSourcesState)
	if !ok {
		return nil, ErrStateMismatch
	}
	selected := st.Selected
	if selected == nil {
		selected = []string{}
	}
	return marshal(map[string]any{
		"revenue_sources": map[string]any{"selected": selected, "reflection": st.Reflection},
	})
}

func (w *RevenueSources) CanAdvance(s State) bool {
	st, ok := s.(RevenueSourcesState)
	return ok && len(st.Selected) > 0
}

type revenueSourcesView struct {
	*RevenueSources
	Selected   []string `json:"selected"`
	Reflection string   `json:"reflectionText"`
}

func (w *RevenueSources) View(s State) any {
	st, _ := s.(RevenueSourcesState)
	return revenueSourcesView{RevenueSources: w, Selected: st.Selected, Reflection: st.Reflection}
}
