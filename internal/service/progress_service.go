package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LessonCatalog 课程结构查询，由 repository.LessonRepository 实现
type LessonCatalog interface {
	Chapters(ctx context.Context, moduleID string) ([]model.Lesson, error)
	NextModule(ctx context.Context, phaseID string, orderIndex int) (*model.Module, error)
}

// ProgressStore 由 repository.ProgressRepository 实现
type ProgressStore interface {
	MarkLessonCompleted(ctx context.Context, userID, lessonID string, at time.Time) error
	MarkModuleCompleted(ctx context.Context, userID, moduleID string, at time.Time) error
}

type NavKind string

const (
	NavChapter NavKind = "chapter"
	NavModule  NavKind = "module"
	NavPhase   NavKind = "phase"
	NavAcademy NavKind = "academy"
)

// NavTarget 继续之后跳转的位置
type NavTarget struct {
	Kind       NavKind `json:"kind"`
	Path       string  `json:"path"`
	ModuleSlug string  `json:"moduleSlug,omitempty"`
	LessonSlug string  `json:"lessonSlug,omitempty"`
	PhaseSlug  string  `json:"phaseSlug,omitempty"`
}

// Outline 课节在模块中的位置
type Outline struct {
	Previous *NavTarget `json:"previous,omitempty"`
	Next     NavTarget  `json:"next"`
	// LastChapter 模块最后一章，完成后记录模块进度
	LastChapter bool `json:"lastChapter"`
}

type ProgressService struct {
	catalog  LessonCatalog
	progress ProgressStore
	now      func() time.Time
}

func NewProgressService(catalog LessonCatalog, progress ProgressStore) *ProgressService {
	return &ProgressService{catalog: catalog, progress: progress, now: time.Now}
}

func moduleTarget(m *model.Module) NavTarget {
	return NavTarget{Kind: NavModule, Path: "/app/modules/" + m.Slug, ModuleSlug: m.Slug}
}

func chapterTarget(moduleSlug, lessonSlug string) NavTarget {
	return NavTarget{
		Kind:       NavChapter,
		Path:       "/app/modules/" + moduleSlug + "/lesson/" + lessonSlug,
		ModuleSlug: moduleSlug,
		LessonSlug: lessonSlug,
	}
}

// Outline 计算上一章与继续后的目标。lesson 需预加载 Module 与 Module.Phase
func (s *ProgressService) Outline(ctx context.Context, lesson *model.Lesson) (Outline, error) {
	mod := lesson.Module
	if mod == nil {
		return Outline{Next: NavTarget{Kind: NavAcademy, Path: "/app/academy"}}, nil
	}

	// intro 不是章节，直接回到模块概览
	if lesson.Kind == model.LessonIntro {
		return Outline{Next: moduleTarget(mod)}, nil
	}

	chapters, err := s.catalog.Chapters(ctx, mod.ID)
	if err != nil {
		return Outline{}, err
	}
	idx := -1
	for i := range chapters {
		if chapters[i].ID == lesson.ID {
			idx = i
			break
		}
	}

	var out Outline
	if idx > 0 {
		prev := chapterTarget(mod.Slug, chapters[idx-1].Slug)
		out.Previous = &prev
	} else {
		back := moduleTarget(mod)
		out.Previous = &back
	}
	if idx >= 0 && idx+1 < len(chapters) {
		out.Next = chapterTarget(mod.Slug, chapters[idx+1].Slug)
		return out, nil
	}

	out.LastChapter = idx >= 0
	if mod.PhaseID != "" {
		next, err := s.catalog.NextModule(ctx, mod.PhaseID, mod.OrderIndex)
		if err != nil {
			return Outline{}, err
		}
		if next != nil {
			out.Next = moduleTarget(next)
			return out, nil
		}
	}
	if mod.Phase != nil {
		out.Next = NavTarget{Kind: NavPhase, Path: "/app/academy/" + mod.Phase.Slug, PhaseSlug: mod.Phase.Slug}
		return out, nil
	}
	out.Next = NavTarget{Kind: NavAcademy, Path: "/app/academy"}
	return out, nil
}

// Complete 记录课节完成，最后一章同时记录模块完成。失败只记日志，不影响跳转
func (s *ProgressService) Complete(ctx context.Context, userID string, lesson *model.Lesson, lastChapter bool) {
	at := s.now()
	if err := s.progress.MarkLessonCompleted(ctx, userID, lesson.ID, at); err != nil {
		logger.FromContext(ctx, logger.ForLesson(userID, lesson.ID)).Warn("Failed to record lesson progress", zap.Error(err))
	}
	if !lastChapter {
		return
	}
	if err := s.progress.MarkModuleCompleted(ctx, userID, lesson.ModuleID, at); err != nil {
		logger.Log.Warn("Failed to record module progress",
			zap.String("user_id", userID),
			zap.String("module_id", lesson.ModuleID),
			zap.Error(err))
	}
}

// ModuleReader 由 repository.LessonRepository 实现
type ModuleReader interface {
	ModuleBySlug(ctx context.Context, slug string) (*model.Module, error)
	Chapters(ctx context.Context, moduleID string) ([]model.Lesson, error)
}

// ProgressReader 由 repository.ProgressRepository 实现
type ProgressReader interface {
	CompletedLessons(ctx context.Context, userID, moduleID string) ([]string, error)
	IsModuleCompleted(ctx context.Context, userID, moduleID string) (bool, error)
}

type ChapterProgress struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Path      string `json:"path"`
	Completed bool   `json:"completed"`
}

// ModuleOverview 模块概览页的数据
type ModuleOverview struct {
	Slug      string            `json:"slug"`
	Title     string            `json:"title"`
	PhaseSlug string            `json:"phaseSlug,omitempty"`
	Chapters  []ChapterProgress `json:"chapters"`
	Completed bool              `json:"completed"`
	// Resume 第一个未完成的章节，全部完成时为空
	Resume *NavTarget `json:"resume,omitempty"`
}

type ModuleOverviewService struct {
	modules  ModuleReader
	progress ProgressReader
}

func NewModuleOverviewService(modules ModuleReader, progress ProgressReader) *ModuleOverviewService {
	return &ModuleOverviewService{modules: modules, progress: progress}
}

func (s *ModuleOverviewService) Overview(ctx context.Context, userID, moduleSlug string) (*ModuleOverview, error) {
	mod, err := s.modules.ModuleBySlug(ctx, moduleSlug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrModuleNotFound
	}
	if err != nil {
		return nil, err
	}

	chapters, err := s.modules.Chapters(ctx, mod.ID)
	if err != nil {
		return nil, err
	}
	done, err := s.progress.CompletedLessons(ctx, userID, mod.ID)
	if err != nil {
		return nil, err
	}
	completed, err := s.progress.IsModuleCompleted(ctx, userID, mod.ID)
	if err != nil {
		return nil, err
	}

	doneSet := make(map[string]bool, len(done))
	for _, id := range done {
		doneSet[id] = true
	}

	out := &ModuleOverview{Slug: mod.Slug, Title: mod.Title, Completed: completed, Chapters: []ChapterProgress{}}
	if mod.Phase != nil {
		out.PhaseSlug = mod.Phase.Slug
	}
	for _, ch := range chapters {
		target := chapterTarget(mod.Slug, ch.Slug)
		out.Chapters = append(out.Chapters, ChapterProgress{
			Slug:      ch.Slug,
			Title:     ch.Title,
			Path:      target.Path,
			Completed: doneSet[ch.ID],
		})
		if out.Resume == nil && !doneSet[ch.ID] {
			out.Resume = &target
		}
	}
	return out, nil
}
