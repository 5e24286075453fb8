package repository

import (
	"academy_backend/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// MarkLessonCompleted 已完成的记录保持不变
func (r *ProgressRepository) MarkLessonCompleted(ctx context.Context, userID, lessonID string, at time.Time) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoNothing: true,
	}).Create(&model.UserLessonProgress{
		UserID:      userID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: &at,
	}).Error
}

func (r *ProgressRepository) MarkModuleCompleted(ctx context.Context, userID, moduleID string, at time.Time) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "module_id"}},
		DoNothing: true,
	}).Create(&model.UserModuleProgress{
		UserID:      userID,
		ModuleID:    moduleID,
		Completed:   true,
		CompletedAt: &at,
	}).Error
}

// CompletedLessons 用户在模块内已完成的课节 ID
func (r *ProgressRepository) CompletedLessons(ctx context.Context, userID, moduleID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.UserLessonProgress{}).
		Joins("JOIN lessons ON lessons.id = user_lesson_progress.lesson_id").
		Where("user_lesson_progress.user_id = ? AND lessons.module_id = ? AND user_lesson_progress.completed = ?", userID, moduleID, true).
		Pluck("user_lesson_progress.lesson_id", &ids).Error
	return ids, err
}

func (r *ProgressRepository) IsModuleCompleted(ctx context.Context, userID, moduleID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.UserModuleProgress{}).
		Where("user_id = ? AND module_id = ? AND completed = ?", userID, moduleID, true).
		Count(&count).Error
	return count > 0, err
}
