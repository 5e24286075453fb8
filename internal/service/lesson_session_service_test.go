package service

import (
	"academy_backend/internal/lesson"
	"academy_backend/internal/model"
	"academy_backend/internal/util"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeLessons struct {
	byPath map[string]*model.Lesson
}

func (f *fakeLessons) FindBySlugs(_ context.Context, moduleSlug, lessonSlug string) (*model.Lesson, error) {
	l, ok := f.byPath[moduleSlug+"/"+lessonSlug]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return l, nil
}

func (f *fakeLessons) FindByID(_ context.Context, id string) (*model.Lesson, error) {
	for _, l := range f.byPath {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLessons) Chapters(_ context.Context, moduleID string) ([]model.Lesson, error) {
	var out []model.Lesson
	for _, id := range []string{"l-likert", "l-prompt", "l-quiz", "l-persona"} {
		for _, l := range f.byPath {
			if l.ID == id && l.ModuleID == moduleID {
				out = append(out, *l)
			}
		}
	}
	return out, nil
}

func (f *fakeLessons) NextModule(context.Context, string, int) (*model.Module, error) {
	return nil, nil
}

type fakeResponses struct {
	data map[string]json.RawMessage
	err  error
}

func (f *fakeResponses) Load(_ context.Context, userID, lessonID string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[userID+"/"+lessonID], nil
}

type fakeProgress struct {
	mu      sync.Mutex
	lessons []string
	modules []string
}

func (f *fakeProgress) MarkLessonCompleted(_ context.Context, _, lessonID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lessons = append(f.lessons, lessonID)
	return nil
}

func (f *fakeProgress) MarkModuleCompleted(_ context.Context, _, moduleID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules = append(f.modules, moduleID)
	return nil
}

type rewriteFunc func(ctx context.Context, in RewriteInput) (string, error)

func (f rewriteFunc) Rewrite(ctx context.Context, in RewriteInput) (string, error) {
	return f(ctx, in)
}

type fakeUploader struct {
	att lesson.Attachment
	err error
}

func (f *fakeUploader) UploadPersonaImage(context.Context, string, string, string, string, []byte) (lesson.Attachment, error) {
	return f.att, f.err
}

type harness struct {
	svc       *LessonSessionService
	store     *memoryStore
	responses *fakeResponses
	progress  *fakeProgress
	uploader  *fakeUploader
	locks     *LocalFieldLock
	rewrite   rewriteFunc
}

func testCatalog() *fakeLessons {
	phase := &model.Phase{Slug: "fundament"}
	phase.ID = "ph1"
	mod := &model.Module{Slug: "mindset", Title: "Mindset", PhaseID: "ph1", Phase: phase}
	mod.ID = "m1"

	mk := func(id, slug, content string) *model.Lesson {
		l := &model.Lesson{Slug: slug, ModuleID: "m1", Kind: model.LessonChapter, Title: slug,
			ContentJSON: datatypes.JSON(content), Module: mod}
		l.ID = id
		return l
	}
	return &fakeLessons{byPath: map[string]*model.Lesson{
		"mindset/selbsttest": mk("l-likert", "selbsttest",
			`{"likert":{"items":[{"id":"a"},{"id":"b"},{"id":"c"},{"id":"d"},{"id":"e"}]}}`),
		"mindset/motivation": mk("l-prompt", "motivation",
			`{"aiPromptType":"vision","prompts":[{"question":"Was treibt dich an?"}]}`),
		"mindset/fallstudie": mk("l-quiz", "fallstudie",
			`{"quiz":{"scenario":"Ein Kunde ruft an","options":[{"key":"a","text":"Ja"},{"key":"b","text":"Nein"}],"correctKey":"b"}}`),
		"mindset/kunden-persona": mk("l-persona", "kunden-persona", `{}`),
	}}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     &memoryStore{},
		responses: &fakeResponses{data: map[string]json.RawMessage{}},
		progress:  &fakeProgress{},
		uploader:  &fakeUploader{},
		locks:     NewLocalFieldLock(),
	}
	catalog := testCatalog()
	h.svc = NewLessonSessionService(LessonSessionDeps{
		Lessons:   catalog,
		Responses: h.responses,
		// 长静默期，保存只由显式触发
		Autosave: NewAutosaveScheduler(h.store, time.Hour, time.Second),
		Rewriter: rewriteFunc(func(ctx context.Context, in RewriteInput) (string, error) {
			return h.rewrite(ctx, in)
		}),
		Locks:    h.locks,
		Progress: NewProgressService(catalog, h.progress),
		Uploader: h.uploader,
	})
	return h
}

func TestSessionLikertEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.svc.Open(ctx, "u1", "mindset", "selbsttest")
	require.NoError(t, err)
	assert.Equal(t, lesson.KindLikert, view.Widget)
	assert.Equal(t, "fundament", view.Lesson.PhaseSlug)
	require.NotNil(t, view.Previous)
	assert.Equal(t, "/app/modules/mindset", view.Previous.Path)

	for i, v := range []int{5, 5, 4, 5, 4} {
		id := string(rune('a' + i))
		res, err := h.svc.Apply(ctx, "u1", "l-likert", lesson.Event{Type: "answer", ID: id, Value: v})
		require.NoError(t, err)
		assert.Equal(t, lesson.PersistDebounced, res.Effect.Persist)
	}
	assert.Empty(t, h.store.saved(), "debounced answers wait for the quiet period")
	assert.Equal(t, SavePending, h.svc.SaveStatus("u1", "l-likert").State)

	status, err := h.svc.Blur(ctx, "u1", "l-likert")
	require.NoError(t, err)
	assert.Equal(t, SaveSaved, status.State)
	rows := h.store.saved()
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"likert":{"answers":{"a":5,"b":5,"c":4,"d":5,"e":4}}}`, rows[0].payload)

	next, err := h.svc.Continue(ctx, "u1", "l-likert")
	require.NoError(t, err)
	assert.Equal(t, NavChapter, next.Kind)
	assert.Equal(t, "/app/modules/mindset/lesson/motivation", next.Path)
	assert.Equal(t, []string{"l-likert"}, h.progress.lessons)
	assert.Empty(t, h.progress.modules)

	// 新进程从已保存的答案恢复
	h2 := newHarness(t)
	h2.responses.data["u1/l-likert"] = json.RawMessage(rows[0].payload)
	view, err = h2.svc.Open(ctx, "u1", "mindset", "selbsttest")
	require.NoError(t, err)
	raw, err := json.Marshal(view.View)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Starkes Unternehmer-Mindset!")

	require.NoError(t, h.svc.Close())
	require.NoError(t, h2.svc.Close())
}

func TestSessionReopenKeepsMemoryState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	_, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	_, err = h.svc.Apply(ctx, "u1", "l-prompt", lesson.Event{Type: "set_text", ID: "q1", Text: "Freiheit"})
	require.NoError(t, err)

	view, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	raw, _ := json.Marshal(view.View)
	assert.Contains(t, string(raw), "Freiheit")
}

func TestSessionRewriteFailureLeavesTextUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	_, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	_, err = h.svc.Apply(ctx, "u1", "l-prompt", lesson.Event{Type: "set_text", ID: "q1", Text: "meine notizen"})
	require.NoError(t, err)

	h.rewrite = func(_ context.Context, in RewriteInput) (string, error) {
		assert.Equal(t, "vision", in.PromptType)
		assert.Equal(t, "m1", in.ModuleID)
		assert.Equal(t, "tok", in.BearerToken)
		return "", &GatewayError{Provider: "edge", StatusCode: 500, Message: "boom"}
	}
	res, err := h.svc.Rewrite(ctx, "u1", "l-prompt", "q1", "tok")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.NotNil(t, res)
	assert.Empty(t, res.Applied)
	assert.Equal(t, []string{"q1"}, res.Failed)

	raw, _ := json.Marshal(res.Session.View)
	assert.Contains(t, string(raw), "meine notizen")
	assert.Empty(t, h.store.saved(), "failed rewrite is not saved")

	h.rewrite = func(context.Context, RewriteInput) (string, error) {
		return "Ich will frei entscheiden.", nil
	}
	res, err = h.svc.Rewrite(ctx, "u1", "l-prompt", "q1", "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, res.Applied)

	rows := h.store.saved()
	require.Len(t, rows, 1, "rewrite result is saved immediately")
	assert.Contains(t, rows[0].payload, "Ich will frei entscheiden.")
}

func TestSessionRewriteGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	_, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	_, err = h.svc.Rewrite(ctx, "u1", "l-prompt", "q1", "")
	assert.ErrorIs(t, err, lesson.ErrRewriteNotAllowed, "empty text")

	_, err = h.svc.Apply(ctx, "u1", "l-prompt", lesson.Event{Type: "set_text", ID: "q1", Text: "x"})
	require.NoError(t, err)
	ok, err := h.locks.Acquire(ctx, "u1/l-prompt/q1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = h.svc.Rewrite(ctx, "u1", "l-prompt", "q1", "")
	assert.ErrorIs(t, err, util.ErrRewriteInFlight)

	_, err = h.svc.Open(ctx, "u1", "mindset", "fallstudie")
	require.NoError(t, err)
	_, err = h.svc.Rewrite(ctx, "u1", "l-quiz", "q1", "")
	assert.ErrorIs(t, err, lesson.ErrRewriteNotAllowed, "quiz has no free text")
}

func TestSessionContinueRequiresAnswer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	view, err := h.svc.Open(ctx, "u1", "mindset", "fallstudie")
	require.NoError(t, err)
	assert.False(t, view.CanAdvance)

	_, err = h.svc.Continue(ctx, "u1", "l-quiz")
	assert.ErrorIs(t, err, util.ErrCannotAdvance)
	assert.Empty(t, h.progress.lessons)

	res, err := h.svc.Apply(ctx, "u1", "l-quiz", lesson.Event{Type: "select", Target: "b"})
	require.NoError(t, err)
	assert.True(t, res.Session.CanAdvance)
	require.Len(t, h.store.saved(), 1, "quiz answers are saved immediately")

	next, err := h.svc.Continue(ctx, "u1", "l-quiz")
	require.NoError(t, err)
	assert.Equal(t, "/app/modules/mindset/lesson/kunden-persona", next.Path)
}

func TestSessionLastChapterCompletesModule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	_, err := h.svc.Open(ctx, "u1", "mindset", "kunden-persona")
	require.NoError(t, err)
	next, err := h.svc.Continue(ctx, "u1", "l-persona")
	require.NoError(t, err)
	assert.Equal(t, NavPhase, next.Kind)
	assert.Equal(t, "/app/academy/fundament", next.Path)
	assert.Equal(t, []string{"m1"}, h.progress.modules)
}

func TestSessionErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	_, err := h.svc.Open(ctx, "u1", "mindset", "gibt-es-nicht")
	assert.ErrorIs(t, err, util.ErrLessonNotFound)

	_, err = h.svc.Apply(ctx, "u1", "l-likert", lesson.Event{Type: "answer", ID: "a", Value: 3})
	assert.ErrorIs(t, err, util.ErrSessionNotFound)

	_, err = h.svc.Open(ctx, "u1", "mindset", "selbsttest")
	require.NoError(t, err)
	_, err = h.svc.Apply(ctx, "u1", "l-likert", lesson.Event{Type: "answer", ID: "a", Value: 9})
	assert.ErrorIs(t, err, lesson.ErrUnknownTarget)
}

func TestSessionLoadFailureStartsEmpty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	h.responses.err = errors.New("db down")
	view, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	raw, _ := json.Marshal(view.View)
	assert.Contains(t, string(raw), `"blocks":[{"id":"q1","text":""}]`)
}

func TestSessionAttachImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	h.responses.data["u1/l-persona"] = json.RawMessage(`{"personas":[{"id":"p1","name":"Mia"}]}`)
	_, err := h.svc.Open(ctx, "u1", "mindset", "kunden-persona")
	require.NoError(t, err)

	_, err = h.svc.AttachImage(ctx, "u1", "l-persona", "nope", "a.png", "image/png", []byte("x"))
	assert.ErrorIs(t, err, lesson.ErrUnknownTarget)

	h.uploader.att = lesson.LocalOnly{Handle: "h1"}
	res, err := h.svc.AttachImage(ctx, "u1", "l-persona", "p1", "a.png", "image/png", []byte("x"))
	require.NoError(t, err)
	assert.False(t, res.Durable)
	assert.Equal(t, "h1", res.Handle)

	h.uploader.att = lesson.Stored{URL: "/uploads/u1/a.png"}
	res, err = h.svc.AttachImage(ctx, "u1", "l-persona", "p1", "a.png", "image/png", []byte("x"))
	require.NoError(t, err)
	assert.True(t, res.Durable)

	rows := h.store.saved()
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1].payload, "/uploads/u1/a.png")

	_, err = h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	_, err = h.svc.AttachImage(ctx, "u1", "l-prompt", "q1", "a.png", "image/png", []byte("x"))
	assert.ErrorIs(t, err, lesson.ErrUnknownEvent)
}

func TestSessionSweepFlushesIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	defer h.svc.Close()

	now := time.Now()
	h.svc.now = func() time.Time { return now }

	_, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	_, err = h.svc.Apply(ctx, "u1", "l-prompt", lesson.Event{Type: "set_text", ID: "q1", Text: "x"})
	require.NoError(t, err)

	assert.Equal(t, 0, h.svc.Sweep())
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, h.svc.Sweep())
	assert.Len(t, h.store.saved(), 1, "pending save written before eviction")

	_, err = h.svc.Apply(ctx, "u1", "l-prompt", lesson.Event{Type: "set_text", ID: "q1", Text: "y"})
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestSessionSweepKeepsSessionWhenFlushFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	ctx := context.Background()

	now := time.Now()
	h.svc.now = func() time.Time { return now }

	_, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	_, err = h.svc.Apply(ctx, "u1", "l-prompt", lesson.Event{Type: "set_text", ID: "q1", Text: "x"})
	require.NoError(t, err)

	h.store.setFail(errors.New("db down"))
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 0, h.svc.Sweep(), "failed flush keeps the session")
	assert.Empty(t, h.store.saved())
	assert.Equal(t, SaveFailed, h.svc.SaveStatus("u1", "l-prompt").State)

	h.store.setFail(nil)
	assert.Equal(t, 1, h.svc.Sweep(), "next sweep retries the failed save")
	rows := h.store.saved()
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].payload, `"x"`)
	require.NoError(t, h.svc.Close())
}

func TestSessionCloseWritesSaveThatFailedDuringSweep(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	ctx := context.Background()

	now := time.Now()
	h.svc.now = func() time.Time { return now }

	_, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	_, err = h.svc.Apply(ctx, "u1", "l-prompt", lesson.Event{Type: "set_text", ID: "q1", Text: "z"})
	require.NoError(t, err)

	h.store.setFail(errors.New("db down"))
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 0, h.svc.Sweep())

	h.store.setFail(nil)
	require.NoError(t, h.svc.Close())
	rows := h.store.saved()
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].payload, `"z"`)
}

func TestSessionSweepDoesNotBlockOtherSessions(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Open(ctx, "u1", "mindset", "motivation")
	require.NoError(t, err)
	h.svc.mu.Lock()
	busy := h.svc.sessions[SaveKey{UserID: "u1", LessonID: "l-prompt"}]
	h.svc.mu.Unlock()
	require.NotNil(t, busy)

	// 某个会话正被长时间占用
	busy.mu.Lock()
	swept := make(chan int)
	go func() { swept <- h.svc.Sweep() }()

	opened := make(chan error, 1)
	go func() {
		_, err := h.svc.Open(ctx, "u2", "mindset", "selbsttest")
		opened <- err
	}()
	select {
	case err := <-opened:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("open waited on a busy session during sweep")
	}

	busy.mu.Unlock()
	assert.Equal(t, 0, <-swept)
	require.NoError(t, h.svc.Close())
}
