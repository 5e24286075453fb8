package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserLessonResponse 用户在某一课节的作答，(user_id, lesson_id) 唯一
// swagger:model
type UserLessonResponse struct {
	ID       uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_lesson_response" json:"userId"`
	LessonID string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_lesson_response" json:"lessonId"`
	DataJSON datatypes.JSON `gorm:"column:data_json" json:"data"`
	// Version 写入时的自动保存序号
	Version   int64     `gorm:"default:0" json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (UserLessonResponse) TableName() string {
	return "user_lesson_responses"
}
