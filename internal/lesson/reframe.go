package lesson

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	defaultReframePromptType = "reframe"
	reframeStyle             = "Formatiere extrem knapp: 1 kurzer Reframe-Satz. Danach exakt 3 nummerierte, konkrete Schritte (je 1 Zeile). Keine Emojis, keine Floskeln."
	generatorField           = "generator"
)

type ReframeCard struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type ReframeGenerator struct {
	LabelLeft       string `json:"labelLeft,omitempty"`
	LabelRight      string `json:"labelRight,omitempty"`
	PlaceholderLeft string `json:"placeholderLeft,omitempty"`
	AIPromptType    string `json:"aiPromptType"`
}

type Reframe struct {
	Lead      string            `json:"lead,omitempty"`
	Title     string            `json:"title"`
	Hint      string            `json:"hint,omitempty"`
	Blocks    []ReframeCard     `json:"blocks"`
	Frames    []ReframeCard     `json:"frames"`
	Correct   map[string]string `json:"-"`
	Shuffle   bool              `json:"shuffle"`
	Generator ReframeGenerator  `json:"generator"`

	// shuffler 可在测试中替换
	shuffler func([]string)
}

type GeneratorRow struct {
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	TS     string `json:"ts,omitempty"`
}

type ReframeState struct {
	// Assignments 块 ID -> 框架 ID，空串表示未分配
	Assignments map[string]string
	Pool        []string
	Generator   []GeneratorRow
}

func (ReframeState) widgetKind() Kind { return KindReframe }

func parseReframe(root gjson.Result) *Reframe {
	r := root.Get("reframe")
	w := &Reframe{
		Lead:    root.Get("lead").String(),
		Title:   r.Get("title").String(),
		Hint:    r.Get("hint").String(),
		Correct: map[string]string{},
		Shuffle: r.Get("shuffle").Bool(),
		Generator: ReframeGenerator{
			LabelLeft:       root.Get("generator.labelLeft").String(),
			LabelRight:      root.Get("generator.labelRight").String(),
			PlaceholderLeft: root.Get("generator.placeholderLeft").String(),
			AIPromptType:    root.Get("generator.aiPromptType").String(),
		},
	}
	if w.Title == "" {
		w.Title = "Die Umkehrübung – Reframing"
	}
	if w.Generator.AIPromptType == "" {
		w.Generator.AIPromptType = defaultReframePromptType
	}
	cards := func(path string) []ReframeCard {
		var out []ReframeCard
		r.Get(path).ForEach(func(_, c gjson.Result) bool {
			out = append(out, ReframeCard{ID: c.Get("id").String(), Text: c.Get("text").String()})
			return true
		})
		return out
	}
	w.Blocks = cards("blocks")
	w.Frames = cards("frames")
	r.Get("correct").ForEach(func(k, v gjson.Result) bool {
		w.Correct[k.String()] = v.String()
		return true
	})
	return w
}

func (w *Reframe) Kind() Kind { return KindReframe }

func (w *Reframe) shuffle(ids []string) []string {
	if !w.Shuffle {
		return ids
	}
	if w.shuffler != nil {
		w.shuffler(ids)
		return ids
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

func (w *Reframe) hasFrame(id string) bool {
	for _, f := range w.Frames {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (w *Reframe) hasBlock(id string) bool {
	for _, b := range w.Blocks {
		if b.ID == id {
			return true
		}
	}
	return false
}

// Load 恢复正确的分配，错误或失效的分配丢弃，框架回到候选池
func (w *Reframe) Load(prev json.RawMessage) State {
	root := prevRoot(prev)
	st := ReframeState{Assignments: make(map[string]string, len(w.Blocks))}
	assigned := map[string]bool{}
	for _, b := range w.Blocks {
		v := root.Get("reframe.assignments." + gjsonKey(b.ID))
		if v.Type == gjson.String && v.Str == w.Correct[b.ID] && w.hasFrame(v.Str) && !assigned[v.Str] {
			st.Assignments[b.ID] = v.Str
			assigned[v.Str] = true
		} else {
			st.Assignments[b.ID] = ""
		}
	}
	for _, f := range w.Frames {
		if !assigned[f.ID] {
			st.Pool = append(st.Pool, f.ID)
		}
	}
	st.Pool = w.shuffle(st.Pool)

	root.Get("generator").ForEach(func(_, g gjson.Result) bool {
		st.Generator = append(st.Generator, GeneratorRow{
			Input:  g.Get("input").String(),
			Output: g.Get("output").String(),
			TS:     g.Get("ts").String(),
		})
		return true
	})
	if len(st.Generator) == 0 {
		st.Generator = []GeneratorRow{{}}
	}
	return st
}

// gjsonKey 转义路径中的特殊字符
func gjsonKey(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(k)
}

func (w *Reframe) state(s State) (ReframeState, error) {
	st, ok := s.(ReframeState)
	if !ok {
		return ReframeState{}, ErrStateMismatch
	}
	as := make(map[string]string, len(st.Assignments))
	for k, v := range st.Assignments {
		as[k] = v
	}
	st.Assignments = as
	st.Pool = append([]string(nil), st.Pool...)
	st.Generator = append([]GeneratorRow(nil), st.Generator...)
	return st, nil
}

func (w *Reframe) Reduce(s State, ev Event) (State, Effect, error) {
	st, err := w.state(s)
	if err != nil {
		return s, noEffect, err
	}

	switch ev.Type {
	case "drop":
		if !w.hasBlock(ev.ID) || indexOf(st.Pool, ev.Target) < 0 {
			return s, noEffect, ErrUnknownTarget
		}
		// 只接受正确的框架，错误时原状态不变
		if w.Correct[ev.ID] != ev.Target {
			return s, Effect{Shake: ev.ID}, nil
		}
		st.Assignments[ev.ID] = ev.Target
		st.Pool = without(st.Pool, ev.Target)
		return st, debounced, nil
	case "remove":
		frame := st.Assignments[ev.ID]
		if frame == "" {
			return s, noEffect, nil
		}
		st.Assignments[ev.ID] = ""
		st.Pool = w.shuffle(append(st.Pool, frame))
		return st, debounced, nil
	case "gen_add_row":
		st.Generator = append(st.Generator, GeneratorRow{})
		return st, debounced, nil
	case "gen_input", "gen_output", "gen_clear_output":
		if ev.Index < 0 || ev.Index >= len(st.Generator) {
			return s, noEffect, ErrUnknownTarget
		}
		row := st.Generator[ev.Index]
		switch ev.Type {
		case "gen_input":
			row.Input = ev.Text
		case "gen_output":
			row.Output = ev.Text
		default:
			row.Output = ""
		}
		st.Generator[ev.Index] = row
		return st, debounced, nil
	}
	return s, noEffect, ErrUnknownEvent
}

func (w *Reframe) Payload(s State) (json.RawMessage, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	assignments := make(map[string]any, len(w.Blocks))
	for _, b := range w.Blocks {
		if f := st.Assignments[b.ID]; f != "" {
			assignments[b.ID] = f
		} else {
			assignments[b.ID] = nil
		}
	}
	return marshal(map[string]any{
		"reframe":   map[string]any{"assignments": assignments},
		"generator": st.Generator,
	})
}

// CanAdvance 所有块都放上了正确的框架
func (w *Reframe) CanAdvance(s State) bool {
	st, ok := s.(ReframeState)
	if !ok {
		return false
	}
	for _, b := range w.Blocks {
		f := st.Assignments[b.ID]
		if f == "" || w.Correct[b.ID] != f {
			return false
		}
	}
	return true
}

type reframeView struct {
	*Reframe
	Assignments map[string]string `json:"assignments"`
	Pool        []string          `json:"pool"`
	Generator   []GeneratorRow    `json:"generatorRows"`
	Solved      bool              `json:"solved"`
}

func (w *Reframe) View(s State) any {
	st, _ := w.state(s)
	return reframeView{
		Reframe:     w,
		Assignments: st.Assignments,
		Pool:        st.Pool,
		Generator:   st.Generator,
		Solved:      w.CanAdvance(s),
	}
}

func generatorRowField(i int) string {
	return fmt.Sprintf("%s.%d", generatorField, i)
}

func parseGeneratorField(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, generatorField+".")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	return i, err == nil
}

// RewriteRequests field 为 "generator" 时改写所有有输入的行，"generator.N" 只改写第 N 行
func (w *Reframe) RewriteRequests(s State, field string, lc Context) ([]RewriteRequest, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	rows := []int{}
	if field == generatorField {
		for i := range st.Generator {
			rows = append(rows, i)
		}
	} else {
		i, ok := parseGeneratorField(field)
		if !ok || i < 0 || i >= len(st.Generator) {
			return nil, ErrUnknownField
		}
		rows = append(rows, i)
	}

	var reqs []RewriteRequest
	for _, i := range rows {
		src := strings.TrimSpace(st.Generator[i].Input)
		if src == "" {
			continue
		}
		reqs = append(reqs, RewriteRequest{
			Field:      generatorRowField(i),
			PromptType: w.Generator.AIPromptType,
			Inputs: map[string]any{
				"blockade":     src,
				"style":        reframeStyle,
				"module_slug":  lc.ModuleSlug,
				"lesson_slug":  lc.LessonSlug,
				"lesson_title": lc.LessonTitle,
			},
			Temperature: 0.2,
		})
	}
	if len(reqs) == 0 {
		return nil, ErrRewriteNotAllowed
	}
	return reqs, nil
}

func (w *Reframe) ApplyRewrite(s State, field, text string) (State, error) {
	st, err := w.state(s)
	if err != nil {
		return s, err
	}
	i, ok := parseGeneratorField(field)
	if !ok || i < 0 || i >= len(st.Generator) {
		return s, ErrUnknownField
	}
	st.Generator[i].Output = CompactReframe(text)
	return st, nil
}
