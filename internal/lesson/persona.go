package lesson

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var personaFields = []string{"name", "age", "role", "goals", "pains", "motivations"}

type Persona struct {
	Lead string `json:"lead,omitempty"`
	Tip  string `json:"tip,omitempty"`

	newID func() string
}

// PersonaEntry 持久化结构。ImageLocal 只是临时预览句柄，不保证可用
type PersonaEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Age         string `json:"age"`
	Role        string `json:"role"`
	Goals       string `json:"goals"`
	Pains       string `json:"pains"`
	Motivations string `json:"motivations"`
	ImageURL    string `json:"image_url"`
	ImageLocal  string `json:"image_local,omitempty"`
}

func (p *PersonaEntry) field(name string) *string {
	switch name {
	case "name":
		return &p.Name
	case "age":
		return &p.Age
	case "role":
		return &p.Role
	case "goals":
		return &p.Goals
	case "pains":
		return &p.Pains
	case "motivations":
		return &p.Motivations
	}
	return nil
}

type PersonaState struct {
	Personas []PersonaEntry
}

func (PersonaState) widgetKind() Kind { return KindPersona }

func parsePersona(root gjson.Result) *Persona {
	return &Persona{
		Lead: firstString(root, "persona.lead", "lead"),
		Tip:  firstString(root, "persona.tip", "tip"),
	}
}

func (w *Persona) Kind() Kind { return KindPersona }

func (w *Persona) id() string {
	if w.newID != nil {
		return w.newID()
	}
	return uuid.NewString()[:8]
}

func (w *Persona) Load(prev json.RawMessage) State {
	var st PersonaState
	prevRoot(prev).Get("personas").ForEach(func(_, p gjson.Result) bool {
		if !p.IsObject() {
			return true
		}
		e := PersonaEntry{
			ID:         p.Get("id").String(),
			ImageURL:   p.Get("image_url").String(),
			ImageLocal: p.Get("image_local").String(),
		}
		for _, f := range personaFields {
			*e.field(f) = p.Get(f).String()
		}
		if e.ID == "" {
			e.ID = w.id()
		}
		st.Personas = append(st.Personas, e)
		return true
	})
	if len(st.Personas) == 0 {
		st.Personas = []PersonaEntry{{ID: w.id()}}
	}
	return st
}

func (w *Persona) state(s State) (PersonaState, error) {
	st, ok := s.(PersonaState)
	if !ok {
		return PersonaState{}, ErrStateMismatch
	}
	st.Personas = append([]PersonaEntry(nil), st.Personas...)
	return st, nil
}

func (st PersonaState) index(id string) int {
	for i, p := range st.Personas {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (w *Persona) Reduce(s State, ev Event) (State, Effect, error) {
	st, err := w.state(s)
	if err != nil {
		return s, noEffect, err
	}

	switch ev.Type {
	case "add":
		id := ev.ID
		if id == "" || st.index(id) >= 0 {
			id = w.id()
		}
		st.Personas = append(st.Personas, PersonaEntry{ID: id})
		return st, debounced, nil
	case "remove":
		i := st.index(ev.ID)
		// 至少保留一个
		if i < 0 || len(st.Personas) <= 1 {
			return s, noEffect, nil
		}
		st.Personas = append(st.Personas[:i], st.Personas[i+1:]...)
		return st, immediate, nil
	case "set_field":
		i := st.index(ev.ID)
		if i < 0 {
			return s, noEffect, ErrUnknownTarget
		}
		f := st.Personas[i].field(ev.Field)
		if f == nil {
			return s, noEffect, ErrUnknownField
		}
		*f = ev.Text
		return st, debounced, nil
	}
	return s, noEffect, ErrUnknownEvent
}

// AttachImage 上传成功时记录 URL；失败时只记录本地预览句柄
func (w *Persona) AttachImage(s State, personaID string, a Attachment) (State, error) {
	st, err := w.state(s)
	if err != nil {
		return s, err
	}
	i := st.index(personaID)
	if i < 0 {
		return s, ErrUnknownTarget
	}
	switch att := a.(type) {
	case Stored:
		st.Personas[i].ImageURL = att.URL
		st.Personas[i].ImageLocal = ""
	case LocalOnly:
		st.Personas[i].ImageLocal = att.Handle
	default:
		return s, ErrUnknownTarget
	}
	return st, nil
}

func (w *Persona) Payload(s State) (json.RawMessage, error) {
	st, err := w.state(s)
	if err != nil {
		return nil, err
	}
	return marshal(map[string]any{"personas": st.Personas})
}

func (w *Persona) CanAdvance(State) bool { return true }

type personaView struct {
	*Persona
	Personas  []PersonaEntry `json:"personas"`
	CanRemove bool           `json:"canRemove"`
}

func (w *Persona) View(s State) any {
	st, _ := w.state(s)
	return personaView{Persona: w, Personas: st.Personas, CanRemove: len(st.Personas) > 1}
}
