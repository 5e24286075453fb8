package cmd

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const catalogYAML = `
phases:
  - slug: fundament
    title: Fundament
    order: 1
    modules:
      - slug: mindset
        title: Mindset
        order: 1
        lessons:
          - slug: intro
            title: Einführung
            kind: intro
            order: 0
          - slug: selbsttest
            title: Selbsttest
            order: 1
            content:
              likert:
                items:
                  - id: q1
                    text: Ich übernehme Verantwortung
          - slug: motivation
            title: Motivation
            order: 2
            content: '{"prompt":"Warum gründest du?"}'
`

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestApplySeed(t *testing.T) {
	seed, err := loadSeed(strings.NewReader(catalogYAML))
	require.NoError(t, err)

	db := newTestDB(t)
	repo := repository.NewLessonRepository(db)
	ctx := context.Background()

	stats, err := applySeed(ctx, repo, seed)
	require.NoError(t, err)
	assert.Equal(t, seedStats{Phases: 1, Modules: 1, Lessons: 3}, stats)

	l, err := repo.FindBySlugs(ctx, "mindset", "selbsttest")
	require.NoError(t, err)
	assert.Equal(t, model.LessonChapter, l.Kind)
	assert.JSONEq(t, `{"likert":{"items":[{"id":"q1","text":"Ich übernehme Verantwortung"}]}}`, string(l.ContentJSON))

	l, err = repo.FindBySlugs(ctx, "mindset", "motivation")
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"Warum gründest du?"}`, string(l.ContentJSON))

	// 重复导入不产生重复行
	_, err = applySeed(ctx, repo, seed)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&model.Lesson{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestLoadSeedRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing slug":  "phases:\n  - title: Ohne\n",
		"unknown field": "phases:\n  - slug: a\n    colour: red\n",
		"lesson slug":   "phases:\n  - slug: a\n    modules:\n      - slug: m\n        lessons:\n          - title: x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadSeed(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestPrintResolved(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResolved(&buf, []byte(`{"quiz":{"scenario":"Was zählt?","options":[{"key":"a","label":"A"},{"key":"b","label":"B"}],"correctKey":"a"}}`), ""))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "quiz", out["kind"])
	assert.Equal(t, false, out["canAdvance"])

	buf.Reset()
	require.NoError(t, printResolved(&buf, []byte(`not json`), ""))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "fallback", out["kind"])
}
