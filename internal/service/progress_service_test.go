package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/util"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubCatalog struct {
	chapters []model.Lesson
	next     *model.Module
	err      error
}

func (c *stubCatalog) Chapters(context.Context, string) ([]model.Lesson, error) {
	return c.chapters, c.err
}

func (c *stubCatalog) NextModule(context.Context, string, int) (*model.Module, error) {
	return c.next, c.err
}

type failingProgress struct {
	lessonCalls, moduleCalls int
}

func (p *failingProgress) MarkLessonCompleted(context.Context, string, string, time.Time) error {
	p.lessonCalls++
	return errors.New("db down")
}

func (p *failingProgress) MarkModuleCompleted(context.Context, string, string, time.Time) error {
	p.moduleCalls++
	return errors.New("db down")
}

func chapter(id, slug string) model.Lesson {
	l := model.Lesson{Slug: slug, Kind: model.LessonChapter, ModuleID: "m1"}
	l.ID = id
	return l
}

func TestOutline(t *testing.T) {
	phase := &model.Phase{Slug: "fundament"}
	mod := &model.Module{Slug: "mindset", PhaseID: "ph1", OrderIndex: 1, Phase: phase}
	mod.ID = "m1"
	chapters := []model.Lesson{chapter("c1", "eins"), chapter("c2", "zwei"), chapter("c3", "drei")}
	nextMod := &model.Module{Slug: "angebot"}

	at := func(i int) *model.Lesson {
		l := chapters[i]
		l.Module = mod
		return &l
	}

	t.Run("intro goes to module overview", func(t *testing.T) {
		intro := &model.Lesson{Slug: "intro", Kind: model.LessonIntro, Module: mod}
		out, err := NewProgressService(&stubCatalog{}, nil).Outline(context.Background(), intro)
		require.NoError(t, err)
		assert.Equal(t, NavTarget{Kind: NavModule, Path: "/app/modules/mindset", ModuleSlug: "mindset"}, out.Next)
		assert.Nil(t, out.Previous)
		assert.False(t, out.LastChapter)
	})

	t.Run("first chapter", func(t *testing.T) {
		svc := NewProgressService(&stubCatalog{chapters: chapters}, nil)
		out, err := svc.Outline(context.Background(), at(0))
		require.NoError(t, err)
		require.NotNil(t, out.Previous)
		assert.Equal(t, NavModule, out.Previous.Kind)
		assert.Equal(t, "/app/modules/mindset/lesson/zwei", out.Next.Path)
		assert.False(t, out.LastChapter)
	})

	t.Run("middle chapter", func(t *testing.T) {
		svc := NewProgressService(&stubCatalog{chapters: chapters}, nil)
		out, err := svc.Outline(context.Background(), at(1))
		require.NoError(t, err)
		assert.Equal(t, "/app/modules/mindset/lesson/eins", out.Previous.Path)
		assert.Equal(t, "drei", out.Next.LessonSlug)
	})

	t.Run("last chapter with next module", func(t *testing.T) {
		svc := NewProgressService(&stubCatalog{chapters: chapters, next: nextMod}, nil)
		out, err := svc.Outline(context.Background(), at(2))
		require.NoError(t, err)
		assert.True(t, out.LastChapter)
		assert.Equal(t, "/app/modules/angebot", out.Next.Path)
	})

	t.Run("last module of phase", func(t *testing.T) {
		svc := NewProgressService(&stubCatalog{chapters: chapters}, nil)
		out, err := svc.Outline(context.Background(), at(2))
		require.NoError(t, err)
		assert.Equal(t, NavTarget{Kind: NavPhase, Path: "/app/academy/fundament", PhaseSlug: "fundament"}, out.Next)
	})

	t.Run("no phase", func(t *testing.T) {
		loose := &model.Module{Slug: "extra"}
		l := chapter("c9", "neun")
		l.Module = loose
		svc := NewProgressService(&stubCatalog{chapters: []model.Lesson{l}}, nil)
		out, err := svc.Outline(context.Background(), &l)
		require.NoError(t, err)
		assert.Equal(t, NavAcademy, out.Next.Kind)
		assert.Equal(t, "/app/academy", out.Next.Path)
	})

	t.Run("catalog error", func(t *testing.T) {
		svc := NewProgressService(&stubCatalog{err: errors.New("boom")}, nil)
		_, err := svc.Outline(context.Background(), at(0))
		assert.Error(t, err)
	})
}

func TestCompleteSwallowsErrors(t *testing.T) {
	store := &failingProgress{}
	svc := NewProgressService(&stubCatalog{}, store)
	l := chapter("c1", "eins")

	assert.NotPanics(t, func() { svc.Complete(context.Background(), "u1", &l, false) })
	assert.Equal(t, 1, store.lessonCalls)
	assert.Equal(t, 0, store.moduleCalls)

	svc.Complete(context.Background(), "u1", &l, true)
	assert.Equal(t, 2, store.lessonCalls)
	assert.Equal(t, 1, store.moduleCalls)
}

type overviewModules struct {
	mod      *model.Module
	chapters []model.Lesson
}

func (o *overviewModules) ModuleBySlug(_ context.Context, slug string) (*model.Module, error) {
	if o.mod == nil || o.mod.Slug != slug {
		return nil, gorm.ErrRecordNotFound
	}
	return o.mod, nil
}

func (o *overviewModules) Chapters(context.Context, string) ([]model.Lesson, error) {
	return o.chapters, nil
}

type overviewProgress struct {
	done     []string
	complete bool
}

func (p *overviewProgress) CompletedLessons(context.Context, string, string) ([]string, error) {
	return p.done, nil
}

func (p *overviewProgress) IsModuleCompleted(context.Context, string, string) (bool, error) {
	return p.complete, nil
}

func TestModuleOverview(t *testing.T) {
	mod := &model.Module{Slug: "mindset", Title: "Mindset", Phase: &model.Phase{Slug: "fundament"}}
	mod.ID = "m1"
	modules := &overviewModules{mod: mod, chapters: []model.Lesson{chapter("c1", "eins"), chapter("c2", "zwei")}}
	progress := &overviewProgress{done: []string{"c1"}}
	svc := NewModuleOverviewService(modules, progress)

	out, err := svc.Overview(context.Background(), "u1", "mindset")
	require.NoError(t, err)
	assert.Equal(t, "fundament", out.PhaseSlug)
	require.Len(t, out.Chapters, 2)
	assert.True(t, out.Chapters[0].Completed)
	assert.False(t, out.Chapters[1].Completed)
	require.NotNil(t, out.Resume)
	assert.Equal(t, "/app/modules/mindset/lesson/zwei", out.Resume.Path)

	progress.done, progress.complete = []string{"c1", "c2"}, true
	out, err = svc.Overview(context.Background(), "u1", "mindset")
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Nil(t, out.Resume)

	_, err = svc.Overview(context.Background(), "u1", "fehlt")
	assert.ErrorIs(t, err, util.ErrModuleNotFound)
}
