package lesson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const likertContent = `{
  "likert": {
    "items": [
      {"id": "i1", "statement": "Ich arbeite am Unternehmen"},
      {"id": "i2", "text": "Ich delegiere"},
      {"id": "i3", "label": "Ich habe Prozesse"}
    ]
  },
  "evaluation": {
    "showScore": true,
    "rules": [
      {"max": 5, "text": "niedrig"},
      {"min": 6, "max": 10, "text": "mittel"}
    ]
  }
}`

func answer(t *testing.T, w Widget, s State, id string, v int) State {
	t.Helper()
	next, eff, err := w.Reduce(s, Event{Type: "answer", ID: id, Value: v})
	require.NoError(t, err)
	assert.Equal(t, PersistDebounced, eff.Persist)
	return next
}

func TestLikertScore(t *testing.T) {
	w := Parse([]byte(likertContent), "").(*Likert)
	require.Len(t, w.Items, 3)
	assert.Equal(t, "Ich arbeite am Unternehmen", w.Items[0].Text)
	assert.Equal(t, 15, w.MaxScore())

	s := w.Load(nil)
	s = answer(t, w, s, "i1", 3)
	s = answer(t, w, s, "i2", 4)
	s = answer(t, w, s, "i3", 2)

	assert.Equal(t, 9, w.Score(s))
	assert.Equal(t, "mittel", w.Evaluation(9))
	assert.Equal(t, "niedrig", w.Evaluation(0))
	// 规则都不命中时走兜底
	assert.Contains(t, w.Evaluation(12), "Guter Weg!")
}

func TestLikertRejectsOutOfRange(t *testing.T) {
	w := Parse([]byte(likertContent), "")
	s := w.Load(nil)

	_, _, err := w.Reduce(s, Event{Type: "answer", ID: "i1", Value: 6})
	assert.ErrorIs(t, err, ErrUnknownTarget)
	_, _, err = w.Reduce(s, Event{Type: "answer", ID: "nope", Value: 3})
	assert.ErrorIs(t, err, ErrUnknownTarget)
	_, _, err = w.Reduce(s, Event{Type: "select", ID: "i1"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestLikertFallbackTiers(t *testing.T) {
	w := Parse([]byte(`{"likert":{"items":[]}}`), "").(*Likert)
	assert.Contains(t, w.Evaluation(10), "Perfekter Startpunkt")
	assert.Contains(t, w.Evaluation(11), "Guter Weg!")
	assert.Contains(t, w.Evaluation(18), "Guter Weg!")
	assert.Contains(t, w.Evaluation(19), "Starkes Unternehmer-Mindset!")
}

func TestLikertFiveItemScenario(t *testing.T) {
	raw := `{"likert":{"items":[{"id":"a"},{"id":"b"},{"id":"c"},{"id":"d"},{"id":"e"}]}}`
	w := Parse([]byte(raw), "").(*Likert)

	s := w.Load(nil)
	for i, v := range []int{5, 5, 4, 5, 4} {
		s = answer(t, w, s, w.Items[i].ID, v)
	}
	assert.Equal(t, 23, w.Score(s))
	assert.Contains(t, w.Evaluation(23), "Starkes Unternehmer-Mindset!")

	payload, err := w.Payload(s)
	require.NoError(t, err)

	reloaded := w.Load(payload)
	assert.Equal(t, 23, w.Score(reloaded))
	assert.Equal(t, w.Evaluation(w.Score(s)), w.Evaluation(w.Score(reloaded)))

	view := w.View(reloaded).(likertView)
	assert.Nil(t, view.Score, "score stays hidden unless showScore is set")
}

func TestLikertLoadIsDefensive(t *testing.T) {
	w := Parse([]byte(likertContent), "")
	for _, prev := range []string{
		``,
		`null`,
		`[]`,
		`{"likert":{"answers":"oops"}}`,
		`{"likert":{"answers":{"i1":9,"zzz":3,"i2":"4"}}}`,
		`{"personas":[{"id":"x"}]}`,
	} {
		s := w.Load(json.RawMessage(prev))
		assert.Empty(t, s.(LikertState).Answers, prev)
	}
}
