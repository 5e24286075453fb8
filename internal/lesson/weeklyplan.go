package lesson

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

var weekFields = []string{"focus", "todo1", "todo2", "todo3", "reward", "helper"}

var defaultWeekLabels = map[string]string{
	"focus":  "1 Fokus-Ziel",
	"todo1":  "To-do 1",
	"todo2":  "To-do 2",
	"todo3":  "To-do 3",
	"reward": "Wie belohne ich mich?",
	"helper": "Wer hilft mir?",
}

type WeeklyPlan struct {
	Lead     string            `json:"lead,omitempty"`
	Footnote string            `json:"footnote,omitempty"`
	Weeks    int               `json:"weeks"`
	Labels   map[string]string `json:"labels"`
}

// Week 一周的计划，字段名即持久化的键
type Week map[string]string

type WeeklyPlanState struct {
	Weeks   []Week
	Visible int
}

func (WeeklyPlanState) widgetKind() Kind { return KindWeeklyPlan }

func parseWeeklyPlan(root gjson.Result) *WeeklyPlan {
	w := &WeeklyPlan{
		Lead:     root.Get("lead").String(),
		Footnote: root.Get("footnote").String(),
		Weeks:    max(1, intOr(root.Get("weeklyPlan.weeks"), 4)),
		Labels:   make(map[string]string, len(weekFields)),
	}
	for _, f := range weekFields {
		w.Labels[f] = defaultWeekLabels[f]
		if v := root.Get("weeklyPlan.labels." + f).String(); v != "" {
			w.Labels[f] = v
		}
	}
	return w
}

func (w *WeeklyPlan) Kind() Kind { return KindWeeklyPlan }

func isWeekField(f string) bool {
	return indexOf(weekFields, f) >= 0
}

func (w *WeeklyPlan) Load(prev json.RawMessage) State {
	st := WeeklyPlanState{Weeks: make([]Week, w.Weeks), Visible: min(2, w.Weeks)}
	saved := prevRoot(prev).Get("weekly_plan.weeks").Array()
	for i := range st.Weeks {
		st.Weeks[i] = Week{}
		if i >= len(saved) {
			continue
		}
		for _, f := range weekFields {
			if v := saved[i].Get(f); v.Type == gjson.String && v.Str != "" {
				st.Weeks[i][f] = v.Str
			}
		}
	}
	return st
}

func (w *WeeklyPlan) state(s State) (WeeklyPlanState, error) {
	st, ok := s.(WeeklyPlanState)
	if !ok {
		return WeeklyPlanState{}, ErrStateMismatch
	}
	weeks := make([]Week, len(st.Weeks))
	for i, wk := range st.Weeks {
		weeks[i] = make(Week, len(wk))
		for k, v := range wk {
			weeks[i][k] = v
		}
	}
	st.Weeks = weeks
	return st, nil
}

func (w *WeeklyPlan) Reduce(s State, ev Event) (State, Effect, error) {
	st, err := w.state(s)
	if err != nil {
		return s, noEffect, err
	}
	switch ev.Type {
	case "set_field":
		if ev.Index < 0 || ev.Index >= len(st.Weeks) || !isWeekField(ev.Field) {
			return s, noEffect, ErrUnknownTarget
		}
		if ev.Text == "" {
			delete(st.Weeks[ev.Index], ev.Field)
		} else {
			st.Weeks[ev.Index][ev.Field] = ev.Text
		}
		return st, debounced, nil
	case "show_all":
		// 只影响展示，不触发保存
		st.Visible = len(st.Weeks)
		return st, noEffect, nil
	}
	return s, noEffect, ErrUnknownEvent
}

func (w *WeeklyPlan) Payload(s State) (json.RawMessage, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	return marshal(map[string]any{"weekly_plan": map[string]any{"weeks": st.Weeks}})
}

func (w *WeeklyPlan) CanAdvance(State) bool { return true }

type weeklyPlanView struct {
	*WeeklyPlan
	Rows    []Week `json:"rows"`
	Visible int    `json:"visible"`
}

func (w *WeeklyPlan) View(s State) any {
	st, _ := w.state(s)
	return weeklyPlanView{WeeklyPlan: w, Rows: st.Weeks, Visible: st.Visible}
}
