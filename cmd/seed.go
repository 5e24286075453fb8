package cmd

import (
	"academy_backend/internal/lesson"
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/pkg/database"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

// seedFile 课程目录文件：阶段 → 模块 → 课节
type seedFile struct {
	Phases []seedPhase `yaml:"phases"`
}

type seedPhase struct {
	Slug    string       `yaml:"slug"`
	Title   string       `yaml:"title"`
	Order   int          `yaml:"order"`
	Modules []seedModule `yaml:"modules"`
}

type seedModule struct {
	Slug        string       `yaml:"slug"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Order       int          `yaml:"order"`
	Lessons     []seedLesson `yaml:"lessons"`
}

type seedLesson struct {
	Slug  string `yaml:"slug"`
	Title string `yaml:"title"`
	Kind  string `yaml:"kind"`
	Order int    `yaml:"order"`
	Body  string `yaml:"body"`
	// Content 可以是映射，也可以是 JSON 字符串
	Content any `yaml:"content"`
}

type seedStats struct {
	Phases, Modules, Lessons int
}

func loadSeed(r io.Reader) (*seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for _, p := range f.Phases {
		if p.Slug == "" {
			return nil, fmt.Errorf("phase without slug")
		}
		for _, m := range p.Modules {
			if m.Slug == "" {
				return nil, fmt.Errorf("module without slug in phase %q", p.Slug)
			}
			for _, l := range m.Lessons {
				if l.Slug == "" {
					return nil, fmt.Errorf("lesson without slug in module %q", m.Slug)
				}
			}
		}
	}
	return &f, nil
}

func (l seedLesson) contentJSON() (datatypes.JSON, error) {
	switch c := l.Content.(type) {
	case nil:
		return nil, nil
	case string:
		return datatypes.JSON(c), nil
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("lesson %q content: %w", l.Slug, err)
		}
		return datatypes.JSON(b), nil
	}
}

// applySeed 按 slug 幂等写入，重复执行只更新内容
func applySeed(ctx context.Context, repo *repository.LessonRepository, f *seedFile) (seedStats, error) {
	var stats seedStats
	for _, p := range f.Phases {
		phase := model.Phase{Slug: p.Slug, Title: p.Title, OrderIndex: p.Order}
		if err := repo.UpsertPhase(ctx, &phase); err != nil {
			return stats, fmt.Errorf("phase %q: %w", p.Slug, err)
		}
		stats.Phases++

		for _, m := range p.Modules {
			mod := model.Module{Slug: m.Slug, Title: m.Title, Description: m.Description, PhaseID: phase.ID, OrderIndex: m.Order}
			if err := repo.UpsertModule(ctx, &mod); err != nil {
				return stats, fmt.Errorf("module %q: %w", m.Slug, err)
			}
			stats.Modules++

			for _, l := range m.Lessons {
				content, err := l.contentJSON()
				if err != nil {
					return stats, err
				}
				kind := model.LessonKind(l.Kind)
				if kind == "" {
					kind = model.LessonChapter
				}
				row := model.Lesson{
					Slug:        l.Slug,
					ModuleID:    mod.ID,
					OrderIndex:  l.Order,
					Kind:        kind,
					Title:       l.Title,
					ContentJSON: content,
					Body:        l.Body,
				}
				if err := repo.UpsertLesson(ctx, &row); err != nil {
					return stats, fmt.Errorf("lesson %q: %w", l.Slug, err)
				}
				stats.Lessons++
			}
		}
	}
	return stats, nil
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "导入课程目录（阶段、模块、课节）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		seed, err := loadSeed(file)
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := database.InitDB(&cfg.Database, false)
		if err != nil {
			return err
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}()
		if err := database.Migrate(db); err != nil {
			return err
		}

		stats, err := applySeed(cmd.Context(), repository.NewLessonRepository(db), seed)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d phases, %d modules, %d lessons\n", stats.Phases, stats.Modules, stats.Lessons)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <content.json>",
	Short: "解析课节内容，输出组件类型与初始视图",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		slug, _ := cmd.Flags().GetString("slug")
		return printResolved(cmd.OutOrStdout(), raw, slug)
	},
}

func printResolved(w io.Writer, raw []byte, slug string) error {
	widget := lesson.Parse(raw, slug)
	state := widget.Load(nil)
	out := struct {
		Kind       lesson.Kind `json:"kind"`
		CanAdvance bool        `json:"canAdvance"`
		View       any         `json:"view"`
	}{widget.Kind(), widget.CanAdvance(state), widget.View(state)}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	resolveCmd.Flags().String("slug", "", "课节 slug，部分组件按 slug 识别")
}
