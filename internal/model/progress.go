package model

import (
	"time"
)

// UserLessonProgress 课节完成记录，只增不减
type UserLessonProgress struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_lesson_progress" json:"userId"`
	LessonID    string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_lesson_progress" json:"lessonId"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (UserLessonProgress) TableName() string {
	return "user_lesson_progress"
}

type UserModuleProgress struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_module_progress" json:"userId"`
	ModuleID    string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_module_progress" json:"moduleId"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (UserModuleProgress) TableName() string {
	return "user_module_progress"
}
