package model

import (
	"gorm.io/datatypes"
)

type LessonKind string

const (
	LessonIntro   LessonKind = "intro"
	LessonChapter LessonKind = "chapter"
)

// Phase 学院阶段，包含若干模块
// swagger:model
type Phase struct {
	UUIDBase
	Slug       string   `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Title      string   `gorm:"size:255;not null" json:"title"`
	OrderIndex int      `gorm:"default:0" json:"orderIndex"`
	Modules    []Module `gorm:"foreignKey:PhaseID" json:"modules,omitempty"`
}

func (Phase) TableName() string {
	return "phases"
}

// swagger:model
type Module struct {
	UUIDBase
	Slug        string   `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Title       string   `gorm:"size:255;not null" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	PhaseID     string   `gorm:"type:varchar(36);index" json:"phaseId"`
	OrderIndex  int      `gorm:"default:0" json:"orderIndex"`
	Phase       *Phase   `gorm:"foreignKey:PhaseID" json:"phase,omitempty"`
	Lessons     []Lesson `gorm:"foreignKey:ModuleID" json:"lessons,omitempty"`
}

func (Module) TableName() string {
	return "modules"
}

// Lesson 课节。ContentJSON 是组件内容描述，可能是对象也可能是 JSON 字符串
// swagger:model
type Lesson struct {
	UUIDBase
	Slug        string         `gorm:"size:120;not null;uniqueIndex:idx_module_lesson_slug" json:"slug"`
	ModuleID    string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_module_lesson_slug;index" json:"moduleId"`
	OrderIndex  int            `gorm:"default:0" json:"orderIndex"`
	Kind        LessonKind     `gorm:"size:20;default:'chapter'" json:"kind"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	ContentJSON datatypes.JSON `gorm:"column:content_json" json:"-"`
	Body        string         `gorm:"type:text" json:"body,omitempty"`
	Module      *Module        `gorm:"foreignKey:ModuleID" json:"-"`
}

func (Lesson) TableName() string {
	return "lessons"
}
