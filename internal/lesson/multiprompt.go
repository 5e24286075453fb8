package lesson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultAIPromptType = "motivation"

type Choice struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Callout struct {
	Title   string   `json:"title,omitempty"`
	Text    string   `json:"text,omitempty"`
	Bullets []string `json:"bullets,omitempty"`
	Footer  []string `json:"footer,omitempty"`
}

// Prompt 规整后的子问题
type Prompt struct {
	ID           string   `json:"id"`
	BaseType     string   `json:"baseType"`
	RenderAs     string   `json:"renderAs"`
	Question     string   `json:"question"`
	Placeholder  string   `json:"placeholder,omitempty"`
	AIPromptType string   `json:"aiPromptType,omitempty"`
	Callout      *Callout `json:"callout,omitempty"`
	Options      []Choice `json:"options,omitempty"`
	Rows         int      `json:"rows,omitempty"`
}

type MultiPrompt struct {
	Lead         string          `json:"lead,omitempty"`
	BodyMD       string          `json:"body_md,omitempty"`
	Video        json.RawMessage `json:"video,omitempty"`
	AIPromptType string          `json:"aiPromptType"`
	Prompts      []Prompt        `json:"prompts"`
}

type Block struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type MultiPromptState struct {
	Blocks []Block `json:"blocks"`
}

func (MultiPromptState) widgetKind() Kind { return KindMultiPrompt }

func parseCallout(r gjson.Result) *Callout {
	if !r.IsObject() {
		return nil
	}
	return &Callout{
		Title:   r.Get("title").String(),
		Text:    normalizeText(r.Get("text").String()),
		Bullets: stringList(r.Get("bullets")),
		Footer:  stringList(r.Get("footer")),
	}
}

func parseChoices(r gjson.Result) []Choice {
	var out []Choice
	i := 0
	r.ForEach(func(_, o gjson.Result) bool {
		i++
		if o.Type == gjson.String {
			out = append(out, Choice{Key: fmt.Sprintf("opt%d", i), Label: o.Str})
			return true
		}
		key := o.Get("key").String()
		label := o.Get("label").String()
		if label == "" {
			label = key
		}
		out = append(out, Choice{Key: key, Label: label})
		return true
	})
	return out
}

// isCalloutEntry 纯提示条目不参与答题
func isCalloutEntry(p gjson.Result) bool {
	if p.Get("type").String() == "callout" {
		return true
	}
	return p.Get("tip").String() != "" &&
		!p.Get("question").Exists() && !p.Get("label").Exists() && !p.Get("options").Exists()
}

func parseMultiPrompt(root gjson.Result) *MultiPrompt {
	w := &MultiPrompt{
		Lead:         normalizeText(root.Get("lead").String()),
		BodyMD:       root.Get("body_md").String(),
		AIPromptType: root.Get("aiPromptType").String(),
	}
	if w.AIPromptType == "" {
		w.AIPromptType = defaultAIPromptType
	}
	if v := root.Get("video"); v.Exists() {
		w.Video = json.RawMessage(v.Raw)
	}

	i := 0
	root.Get("prompts").ForEach(func(_, p gjson.Result) bool {
		if isCalloutEntry(p) {
			return true
		}
		i++
		base := p.Get("type").String()
		if base == "" {
			base = "textarea"
		}
		renderAs := "textarea"
		switch {
		case base == "radios" || base == "checkboxes":
			renderAs = base
		case base == "input" || p.Get("input").String() == "short" || p.Get("rows").Int() == 1:
			renderAs = "input"
		}
		q := Prompt{
			ID:           p.Get("id").String(),
			BaseType:     base,
			RenderAs:     renderAs,
			Question:     strings.TrimSpace(firstString(p, "question", "label")),
			Placeholder:  p.Get("placeholder").String(),
			AIPromptType: p.Get("aiPromptType").String(),
			Callout:      parseCallout(p.Get("callout")),
			Options:      parseChoices(p.Get("options")),
			Rows:         int(p.Get("rows").Int()),
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i)
		}
		if q.Question == "" {
			q.Question = fmt.Sprintf("Frage %d", i)
		}
		if q.Callout == nil && p.Get("tip").String() != "" {
			q.Callout = &Callout{Text: normalizeText(p.Get("tip").String())}
		}
		w.Prompts = append(w.Prompts, q)
		return true
	})
	return w
}

func (w *MultiPrompt) Kind() Kind { return KindMultiPrompt }

func (w *MultiPrompt) Load(prev json.RawMessage) State {
	byID := map[string]string{}
	prevRoot(prev).Get("blocks").ForEach(func(_, b gjson.Result) bool {
		if id := b.Get("id").String(); id != "" {
			byID[id] = b.Get("text").String()
		}
		return true
	})
	s := MultiPromptState{Blocks: make([]Block, len(w.Prompts))}
	for i, p := range w.Prompts {
		s.Blocks[i] = Block{ID: p.ID, Text: byID[p.ID]}
	}
	return s
}

func (w *MultiPrompt) state(s State) (MultiPromptState, error) {
	st, ok := s.(MultiPromptState)
	if !ok {
		return MultiPromptState{}, ErrStateMismatch
	}
	st.Blocks = append([]Block(nil), st.Blocks...)
	return st, nil
}

func (w *MultiPrompt) prompt(id string) (int, *Prompt) {
	for i := range w.Prompts {
		if w.Prompts[i].ID == id {
			return i, &w.Prompts[i]
		}
	}
	return -1, nil
}

func (w *MultiPrompt) Reduce(s State, ev Event) (State, Effect, error) {
	st, err := w.state(s)
	if err != nil {
		return s, noEffect, err
	}
	idx, p := w.prompt(ev.ID)
	if p == nil || idx >= len(st.Blocks) {
		return s, noEffect, ErrUnknownTarget
	}

	switch ev.Type {
	case "set_text":
		st.Blocks[idx].Text = ev.Text
		return st, debounced, nil
	case "select_option":
		// 单选题立即保存
		st.Blocks[idx].Text = ev.Target
		return st, immediate, nil
	case "toggle_option":
		// 多选答案以逗号拼接保存
		var keys []string
		if cur := st.Blocks[idx].Text; cur != "" {
			keys = strings.Split(cur, ",")
		}
		if indexOf(keys, ev.Target) >= 0 {
			keys = without(keys, ev.Target)
		} else {
			keys = append(keys, ev.Target)
		}
		st.Blocks[idx].Text = strings.Join(keys, ",")
		return st, immediate, nil
	case "clear":
		st.Blocks[idx].Text = ""
		return st, immediate, nil
	}
	return s, noEffect, ErrUnknownEvent
}

func (w *MultiPrompt) Payload(s State) (json.RawMessage, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	return marshal(st)
}

func (w *MultiPrompt) CanAdvance(State) bool { return true }

type multiPromptView struct {
	*MultiPrompt
	Blocks    []Block         `json:"blocks"`
	AIAllowed map[string]bool `json:"aiAllowed"`
}

func (w *MultiPrompt) View(s State) any {
	st, _ := w.state(s)
	allowed := make(map[string]bool, len(w.Prompts))
	for _, p := range w.Prompts {
		allowed[p.ID] = w.aiPromptType(p) != ""
	}
	return multiPromptView{MultiPrompt: w, Blocks: st.Blocks, AIAllowed: allowed}
}

// aiPromptType 只有多行文本框允许 AI 改写；返回空串表示不允许
func (w *MultiPrompt) aiPromptType(p Prompt) string {
	if p.RenderAs != "textarea" {
		return ""
	}
	t := p.AIPromptType
	if t == "" {
		t = w.AIPromptType
	}
	if t == "none" {
		return ""
	}
	return t
}

func (w *MultiPrompt) RewriteRequests(s State, field string, lc Context) ([]RewriteRequest, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	idx, p := w.prompt(field)
	if p == nil {
		return nil, ErrUnknownField
	}
	promptType := w.aiPromptType(*p)
	text := strings.TrimSpace(st.Blocks[idx].Text)
	if promptType == "" || text == "" {
		return nil, ErrRewriteNotAllowed
	}
	return []RewriteRequest{{
		Field:      field,
		PromptType: promptType,
		Inputs: map[string]any{
			"question":     p.Question,
			"user_notes":   text,
			"module_slug":  lc.ModuleSlug,
			"lesson_slug":  lc.LessonSlug,
			"lesson_title": lc.LessonTitle,
			"block_id":     field,
		},
		Temperature: 0.4,
	}}, nil
}

func (w *MultiPrompt) ApplyRewrite(s State, field, text string) (State, error) {
	st, err := w.state(s)
	if err != nil {
		return s, err
	}
	idx, _ := w.prompt(field)
	if idx < 0 {
		return s, ErrUnknownField
	}
	st.Blocks[idx].Text = text
	return st, nil
}
