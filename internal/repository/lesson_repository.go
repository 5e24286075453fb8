package repository

import (
	"academy_backend/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

// FindBySlugs 按模块 slug 与课节 slug 查找课节，预加载模块与阶段
func (r *LessonRepository) FindBySlugs(ctx context.Context, moduleSlug, lessonSlug string) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.WithContext(ctx).
		Joins("JOIN modules ON modules.id = lessons.module_id AND modules.deleted_at IS NULL").
		Where("modules.slug = ? AND lessons.slug = ?", moduleSlug, lessonSlug).
		Preload("Module.Phase").
		First(&lesson).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *LessonRepository) FindByID(ctx context.Context, id string) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.WithContext(ctx).Preload("Module.Phase").First(&lesson, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *LessonRepository) ModuleBySlug(ctx context.Context, slug string) (*model.Module, error) {
	var module model.Module
	err := r.DB.WithContext(ctx).Preload("Phase").Where("slug = ?", slug).First(&module).Error
	if err != nil {
		return nil, err
	}
	return &module, nil
}

// Chapters 模块内的章节，按 order_index 排序（不含 intro）
func (r *LessonRepository) Chapters(ctx context.Context, moduleID string) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.DB.WithContext(ctx).
		Select("id", "slug", "module_id", "order_index", "kind", "title").
		Where("module_id = ? AND kind = ?", moduleID, model.LessonChapter).
		Order("order_index ASC").
		Find(&lessons).Error
	return lessons, err
}

// NextModule 同一阶段中排在后面的第一个模块，没有时返回 nil
func (r *LessonRepository) NextModule(ctx context.Context, phaseID string, orderIndex int) (*model.Module, error) {
	var module model.Module
	err := r.DB.WithContext(ctx).
		Where("phase_id = ? AND order_index > ?", phaseID, orderIndex).
		Order("order_index ASC").
		First(&module).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &module, nil
}

// UpsertPhase 以 slug 为键写入阶段，返回持久化后的 ID
func (r *LessonRepository) UpsertPhase(ctx context.Context, p *model.Phase) error {
	return r.upsertBySlug(ctx, &model.Phase{}, p, &p.ID, p.Slug, []string{"title", "order_index", "updated_at"})
}

func (r *LessonRepository) UpsertModule(ctx context.Context, m *model.Module) error {
	return r.upsertBySlug(ctx, &model.Module{}, m, &m.ID, m.Slug, []string{"title", "description", "phase_id", "order_index", "updated_at"})
}

func (r *LessonRepository) UpsertLesson(ctx context.Context, l *model.Lesson) error {
	var existing model.Lesson
	err := r.DB.WithContext(ctx).Select("id").
		Where("module_id = ? AND slug = ?", l.ModuleID, l.Slug).
		First(&existing).Error
	if err == nil {
		l.ID = existing.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"order_index", "kind", "title", "content_json", "body", "updated_at"}),
	}).Create(l).Error
}

func (r *LessonRepository) upsertBySlug(ctx context.Context, table, value interface{}, id *string, slug string, columns []string) error {
	var existing struct{ ID string }
	err := r.DB.WithContext(ctx).Model(table).Select("id").Where("slug = ?", slug).Take(&existing).Error
	if err == nil {
		*id = existing.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(value).Error
}
