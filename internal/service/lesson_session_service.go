package service

import (
	"academy_backend/internal/lesson"
	"academy_backend/internal/model"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LessonSource 由 repository.LessonRepository 实现
type LessonSource interface {
	FindBySlugs(ctx context.Context, moduleSlug, lessonSlug string) (*model.Lesson, error)
	FindByID(ctx context.Context, id string) (*model.Lesson, error)
}

// ResponseLoader 由 repository.ResponseRepository 实现
type ResponseLoader interface {
	Load(ctx context.Context, userID, lessonID string) (json.RawMessage, error)
}

// ImageUploader 由 StorageService 实现
type ImageUploader interface {
	UploadPersonaImage(ctx context.Context, userID, lessonID, filename, contentType string, data []byte) (lesson.Attachment, error)
}

// LessonInfo 返回给前端的课节元信息
type LessonInfo struct {
	ID          string           `json:"id"`
	Slug        string           `json:"slug"`
	Title       string           `json:"title"`
	Kind        model.LessonKind `json:"kind"`
	Body        string           `json:"body,omitempty"`
	ModuleSlug  string           `json:"moduleSlug,omitempty"`
	ModuleTitle string           `json:"moduleTitle,omitempty"`
	PhaseSlug   string           `json:"phaseSlug,omitempty"`
}

// SessionView 课节会话的当前视图
type SessionView struct {
	Lesson     LessonInfo  `json:"lesson"`
	Widget     lesson.Kind `json:"widget"`
	View       any         `json:"view"`
	CanAdvance bool        `json:"canAdvance"`
	Previous   *NavTarget  `json:"previous,omitempty"`
	Next       NavTarget   `json:"next"`
	Save       SaveStatus  `json:"save"`
}

type EventResult struct {
	Session *SessionView  `json:"session"`
	Effect  lesson.Effect `json:"effect"`
}

type RewriteResult struct {
	Applied []string     `json:"applied"`
	Failed  []string     `json:"failed,omitempty"`
	Session *SessionView `json:"session"`
}

type AttachResult struct {
	// Durable 为 false 时图片只是临时预览，刷新后可能丢失
	Durable bool         `json:"durable"`
	URL     string       `json:"url,omitempty"`
	Handle  string       `json:"handle,omitempty"`
	Session *SessionView `json:"session"`
}

type lessonSession struct {
	mu       sync.Mutex
	lesson   *model.Lesson
	widget   lesson.Widget
	state    lesson.State
	lc       lesson.Context
	outline  Outline
	lastSeen time.Time
}

// LessonSessionService 课节页面的服务端状态：每个 (user, lesson) 一个会话，
// 会话内串行处理事件，保存交给 AutosaveScheduler
type LessonSessionService struct {
	lessons   LessonSource
	responses ResponseLoader
	autosave  *AutosaveScheduler
	rewriter  Rewriter
	locks     FieldLock
	progress  *ProgressService
	uploader  ImageUploader
	lockTTL   time.Duration
	idle      time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[SaveKey]*lessonSession
}

type LessonSessionDeps struct {
	Lessons   LessonSource
	Responses ResponseLoader
	Autosave  *AutosaveScheduler
	Rewriter  Rewriter
	Locks     FieldLock
	Progress  *ProgressService
	Uploader  ImageUploader
	LockTTL   time.Duration
	IdleAfter time.Duration
}

func NewLessonSessionService(d LessonSessionDeps) *LessonSessionService {
	if d.Locks == nil {
		d.Locks = NewLocalFieldLock()
	}
	if d.LockTTL <= 0 {
		d.LockTTL = time.Minute
	}
	if d.IdleAfter <= 0 {
		d.IdleAfter = 30 * time.Minute
	}
	return &LessonSessionService{
		lessons:   d.Lessons,
		responses: d.Responses,
		autosave:  d.Autosave,
		rewriter:  d.Rewriter,
		locks:     d.Locks,
		progress:  d.Progress,
		uploader:  d.Uploader,
		lockTTL:   d.LockTTL,
		idle:      d.IdleAfter,
		now:       time.Now,
		sessions:  make(map[SaveKey]*lessonSession),
	}
}

// Open 打开课节：解析组件并恢复上次的作答。已有会话时沿用内存中的最新状态
func (s *LessonSessionService) Open(ctx context.Context, userID, moduleSlug, lessonSlug string) (*SessionView, error) {
	l, err := s.lessons.FindBySlugs(ctx, moduleSlug, lessonSlug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lesson: %w", err)
	}

	key := SaveKey{UserID: userID, LessonID: l.ID}
	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if ok {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		sess.lastSeen = s.now()
		return s.view(key, sess), nil
	}

	sess, err = s.newSession(ctx, userID, l)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// 并发打开时保留先建好的会话
	if existing, ok := s.sessions[key]; ok {
		sess = existing
	} else {
		s.sessions[key] = sess
		monitoring.ActiveSessions.Inc()
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(key, sess), nil
}

func (s *LessonSessionService) newSession(ctx context.Context, userID string, l *model.Lesson) (*lessonSession, error) {
	w := lesson.Parse(l.ContentJSON, l.Slug)

	prev, err := s.responses.Load(ctx, userID, l.ID)
	if err != nil {
		// 读取失败按无历史作答处理
		logger.FromContext(ctx, logger.ForLesson(userID, l.ID)).Warn("Failed to load lesson response", zap.Error(err))
		prev = nil
	}

	outline, err := s.progress.Outline(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("lesson outline: %w", err)
	}

	lc := lesson.Context{LessonID: l.ID, LessonSlug: l.Slug, LessonTitle: l.Title}
	if l.Module != nil {
		lc.ModuleID = l.Module.ID
		lc.ModuleSlug = l.Module.Slug
	}

	logger.FromContext(ctx, logger.ForLesson(userID, l.ID)).Debug("Opened lesson session",
		zap.String("widget", w.Kind().String()),
		zap.Bool("restored", len(prev) > 0))

	return &lessonSession{
		lesson:   l,
		widget:   w,
		state:    w.Load(prev),
		lc:       lc,
		outline:  outline,
		lastSeen: s.now(),
	}, nil
}

func (s *LessonSessionService) session(userID, lessonID string) (SaveKey, *lessonSession, error) {
	key := SaveKey{UserID: userID, LessonID: lessonID}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return key, nil, util.ErrSessionNotFound
	}
	return key, sess, nil
}

// view 调用方持有 sess.mu
func (s *LessonSessionService) view(key SaveKey, sess *lessonSession) *SessionView {
	l := sess.lesson
	info := LessonInfo{ID: l.ID, Slug: l.Slug, Title: l.Title, Kind: l.Kind, Body: l.Body}
	if l.Module != nil {
		info.ModuleSlug = l.Module.Slug
		info.ModuleTitle = l.Module.Title
		if l.Module.Phase != nil {
			info.PhaseSlug = l.Module.Phase.Slug
		}
	}
	return &SessionView{
		Lesson:     info,
		Widget:     sess.widget.Kind(),
		View:       sess.widget.View(sess.state),
		CanAdvance: sess.widget.CanAdvance(sess.state),
		Previous:   sess.outline.Previous,
		Next:       sess.outline.Next,
		Save:       s.autosave.Status(key),
	}
}

// persist 按副作用调度保存，调用方持有 sess.mu，保证序号与状态顺序一致
func (s *LessonSessionService) persist(key SaveKey, sess *lessonSession, p lesson.Persist) {
	if p == lesson.PersistNone {
		return
	}
	payload, err := sess.widget.Payload(sess.state)
	if err != nil {
		logger.ForLesson(key.UserID, key.LessonID).Error("Failed to encode lesson payload", zap.Error(err))
		return
	}
	switch p {
	case lesson.PersistDebounced:
		err = s.autosave.Schedule(key, payload)
	case lesson.PersistImmediate:
		err = s.autosave.SaveNow(key, payload)
	}
	// 保存失败只体现在保存状态里，下一轮会带着最新状态重试
	if err != nil && !errors.Is(err, ErrSchedulerClosed) {
		logger.ForLesson(key.UserID, key.LessonID).Debug("Save deferred", zap.Error(err))
	}
}

// Apply 处理一个组件事件
func (s *LessonSessionService) Apply(ctx context.Context, userID, lessonID string, ev lesson.Event) (*EventResult, error) {
	key, sess, err := s.session(userID, lessonID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastSeen = s.now()

	next, eff, err := sess.widget.Reduce(sess.state, ev)
	if err != nil {
		return nil, err
	}
	sess.state = next
	s.persist(key, sess, eff.Persist)
	return &EventResult{Session: s.view(key, sess), Effect: eff}, nil
}

// Blur 输入框失焦，立即写入挂起的保存
func (s *LessonSessionService) Blur(ctx context.Context, userID, lessonID string) (SaveStatus, error) {
	key, sess, err := s.session(userID, lessonID)
	if err != nil {
		return SaveStatus{}, err
	}
	sess.mu.Lock()
	sess.lastSeen = s.now()
	sess.mu.Unlock()

	if err := s.autosave.Flush(key); err != nil {
		logger.ForLesson(key.UserID, key.LessonID).Debug("Blur save failed", zap.Error(err))
	}
	return s.autosave.Status(key), nil
}

func (s *LessonSessionService) SaveStatus(userID, lessonID string) SaveStatus {
	return s.autosave.Status(SaveKey{UserID: userID, LessonID: lessonID})
}

// Rewrite 对一个字段调用 AI 改写。调用期间不持有会话锁，
// 结果只替换目标字段，用户在等待期间的其他修改保留
func (s *LessonSessionService) Rewrite(ctx context.Context, userID, lessonID, field, bearer string) (res *RewriteResult, err error) {
	ctx, end := tracing.Start(ctx, "lesson.rewrite", attribute.String("lesson_id", lessonID), attribute.String("field", field))
	defer func() { end(err) }()

	key, sess, err := s.session(userID, lessonID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	rw, ok := sess.widget.(lesson.Rewritable)
	if !ok {
		sess.mu.Unlock()
		return nil, lesson.ErrRewriteNotAllowed
	}
	reqs, err := rw.RewriteRequests(sess.state, field, sess.lc)
	lc := sess.lc
	sess.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var held []string
	defer func() {
		for _, k := range held {
			s.locks.Release(context.Background(), k)
		}
	}()
	for _, req := range reqs {
		lockKey := key.String() + "/" + req.Field
		acquired, err := s.locks.Acquire(ctx, lockKey, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire rewrite lock: %w", err)
		}
		if !acquired {
			return nil, util.ErrRewriteInFlight
		}
		held = append(held, lockKey)
	}

	type outcome struct {
		field string
		text  string
	}
	var (
		done     []outcome
		failed   []string
		firstErr error
	)
	for _, req := range reqs {
		text, err := s.rewriter.Rewrite(ctx, RewriteInput{
			PromptType:  req.PromptType,
			Inputs:      req.Inputs,
			ModuleID:    lc.ModuleID,
			Temperature: req.Temperature,
			BearerToken: bearer,
		})
		if err != nil {
			monitoring.RewriteCounter.WithLabelValues(req.PromptType, "failed").Inc()
			logger.FromContext(ctx, logger.ForLesson(key.UserID, key.LessonID)).Warn("AI rewrite failed",
				zap.String("field", req.Field),
				zap.String("prompt_type", req.PromptType),
				zap.Error(err))
			failed = append(failed, req.Field)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		monitoring.RewriteCounter.WithLabelValues(req.PromptType, "ok").Inc()
		done = append(done, outcome{field: req.Field, text: text})
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastSeen = s.now()

	result := &RewriteResult{Applied: []string{}, Failed: failed}
	for _, o := range done {
		next, err := rw.ApplyRewrite(sess.state, o.field, o.text)
		if err != nil {
			// 等待期间字段被删除（例如行被移除）
			result.Failed = append(result.Failed, o.field)
			continue
		}
		sess.state = next
		result.Applied = append(result.Applied, o.field)
	}
	if len(result.Applied) > 0 {
		s.persist(key, sess, lesson.PersistImmediate)
	}
	result.Session = s.view(key, sess)

	if len(result.Applied) == 0 && firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// AttachImage 上传人物画像图片。上传失败时记录临时预览句柄
func (s *LessonSessionService) AttachImage(ctx context.Context, userID, lessonID, targetID, filename, contentType string, data []byte) (res *AttachResult, err error) {
	ctx, end := tracing.Start(ctx, "lesson.attach_image", attribute.String("lesson_id", lessonID), attribute.Int("bytes", len(data)))
	defer func() { end(err) }()

	key, sess, err := s.session(userID, lessonID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	attacher, ok := sess.widget.(lesson.ImageAttacher)
	if ok {
		// 先用空附件校验目标存在，避免无效上传
		_, err = attacher.AttachImage(sess.state, targetID, lesson.Stored{})
	}
	sess.mu.Unlock()
	if !ok {
		return nil, lesson.ErrUnknownEvent
	}
	if err != nil {
		return nil, err
	}

	att, err := s.uploader.UploadPersonaImage(ctx, userID, lessonID, filename, contentType, data)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastSeen = s.now()
	next, err := attacher.AttachImage(sess.state, targetID, att)
	if err != nil {
		return nil, err
	}
	sess.state = next
	s.persist(key, sess, lesson.PersistImmediate)

	res = &AttachResult{Session: s.view(key, sess)}
	switch a := att.(type) {
	case lesson.Stored:
		res.Durable, res.URL = true, a.URL
	case lesson.LocalOnly:
		res.Handle = a.Handle
	}
	return res, nil
}

// Continue 组件允许继续时写入挂起的保存、记录进度并返回跳转目标
func (s *LessonSessionService) Continue(ctx context.Context, userID, lessonID string) (NavTarget, error) {
	key, sess, err := s.session(userID, lessonID)
	if err != nil {
		return NavTarget{}, err
	}
	sess.mu.Lock()
	can := sess.widget.CanAdvance(sess.state)
	l, outline := sess.lesson, sess.outline
	sess.lastSeen = s.now()
	sess.mu.Unlock()
	if !can {
		return NavTarget{}, util.ErrCannotAdvance
	}

	if err := s.autosave.Flush(key); err != nil {
		logger.ForLesson(key.UserID, key.LessonID).Debug("Save before continue failed", zap.Error(err))
	}
	s.progress.Complete(ctx, userID, l, outline.LastChapter)
	return outline.Next, nil
}

// Sweep 释放长时间未活动的会话，挂起的保存先落库
func (s *LessonSessionService) Sweep() int {
	cutoff := s.now().Add(-s.idle)
	s.mu.Lock()
	snapshot := make(map[SaveKey]*lessonSession, len(s.sessions))
	for key, sess := range s.sessions {
		snapshot[key] = sess
	}
	s.mu.Unlock()

	released := 0
	for key, sess := range snapshot {
		sess.mu.Lock()
		idle := sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if !idle {
			continue
		}

		s.mu.Lock()
		evicted := s.sessions[key] == sess
		if evicted {
			delete(s.sessions, key)
			monitoring.ActiveSessions.Dec()
		}
		s.mu.Unlock()
		if !evicted {
			continue
		}

		if err := s.autosave.Flush(key); err != nil {
			// 保存失败时保留会话，下一轮清理或关闭时重试
			logger.ForLesson(key.UserID, key.LessonID).Warn("Failed to flush idle session, keeping it", zap.Error(err))
			s.mu.Lock()
			if _, ok := s.sessions[key]; !ok {
				s.sessions[key] = sess
				monitoring.ActiveSessions.Inc()
			}
			s.mu.Unlock()
			continue
		}
		s.autosave.Forget(key)
		released++
	}
	return released
}

// Close 关闭前写入所有挂起的保存
func (s *LessonSessionService) Close() error {
	return s.autosave.Close()
}
