package repository

import (
	"academy_backend/internal/model"
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponseRepository struct {
	DB *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: db}
}

// Load 读取用户在课节上的作答。没有记录时返回 nil, nil
func (r *ResponseRepository) Load(ctx context.Context, userID, lessonID string) (json.RawMessage, error) {
	var resp model.UserLessonResponse
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Take(&resp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.DataJSON), nil
}

// Save 以 (user_id, lesson_id) 为键幂等写入
func (r *ResponseRepository) Save(ctx context.Context, userID, lessonID string, payload json.RawMessage, version int64) error {
	row := model.UserLessonResponse{
		UserID:    userID,
		LessonID:  lessonID,
		DataJSON:  datatypes.JSON(payload),
		Version:   version,
		UpdatedAt: time.Now(),
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data_json", "version", "updated_at"}),
	}).Create(&row).Error
}
