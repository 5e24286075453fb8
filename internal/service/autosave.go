package service

import (
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrSchedulerClosed = errors.New("autosave scheduler is closed")

// ResponseSaver 作答持久化，由 repository.ResponseRepository 实现
type ResponseSaver interface {
	Save(ctx context.Context, userID, lessonID string, payload json.RawMessage, version int64) error
}

// SaveKey 自动保存的键，即 (userId, lessonId)
type SaveKey struct {
	UserID   string
	LessonID string
}

func (k SaveKey) String() string {
	return k.UserID + "/" + k.LessonID
}

type SaveState string

const (
	SaveIdle    SaveState = "idle"
	SavePending SaveState = "pending"
	SaveSaving  SaveState = "saving"
	SaveSaved   SaveState = "saved"
	SaveFailed  SaveState = "failed"
)

// SaveStatus 某个键最近一次保存的结果
type SaveStatus struct {
	State     SaveState  `json:"state"`
	Version   int64      `json:"version"`
	SavedAt   *time.Time `json:"savedAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type saveEntry struct {
	// seq 最近分配的序号；written 已落库的最大序号
	seq     int64
	written int64

	timer      *time.Timer
	pending    json.RawMessage
	pendingSeq int64

	// retry 上次失败的负载，失焦时重试
	retry    json.RawMessage
	retrySeq int64

	// writeMu 串行化同一个键的写入
	writeMu sync.Mutex
	status  SaveStatus
}

// AutosaveScheduler 所有组件共用的防抖保存器。
// 每次保存都分配递增序号，同一个键的写入串行执行，
// 比已落库序号旧的写入直接丢弃，因此较新的状态不会被覆盖。
type AutosaveScheduler struct {
	store   ResponseSaver
	quiet   atomic.Int64
	timeout time.Duration

	mu      sync.Mutex
	entries map[SaveKey]*saveEntry
	closed  bool
	wg      sync.WaitGroup
}

func NewAutosaveScheduler(store ResponseSaver, quiet, timeout time.Duration) *AutosaveScheduler {
	s := &AutosaveScheduler{
		store:   store,
		timeout: timeout,
		entries: make(map[SaveKey]*saveEntry),
	}
	s.SetQuietPeriod(quiet)
	return s
}

// SetQuietPeriod 配置热更新时调整防抖时长，只影响之后的调度
func (s *AutosaveScheduler) SetQuietPeriod(d time.Duration) {
	if d <= 0 {
		d = 600 * time.Millisecond
	}
	s.quiet.Store(int64(d))
}

func (s *AutosaveScheduler) QuietPeriod() time.Duration {
	return time.Duration(s.quiet.Load())
}

func (s *AutosaveScheduler) entry(key SaveKey) *saveEntry {
	e, ok := s.entries[key]
	if !ok {
		e = &saveEntry{status: SaveStatus{State: SaveIdle}}
		s.entries[key] = e
	}
	return e
}

// stopTimer 调用方持有 s.mu
func (s *AutosaveScheduler) stopTimer(e *saveEntry) {
	if e.timer != nil && e.timer.Stop() {
		s.wg.Done()
	}
	e.timer = nil
}

// Schedule 重置静默计时，到期后保存最新的负载
func (s *AutosaveScheduler) Schedule(key SaveKey, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}

	e := s.entry(key)
	s.stopTimer(e)
	e.seq++
	seq := e.seq
	e.pending = payload
	e.pendingSeq = seq
	e.status.State = SavePending

	s.wg.Add(1)
	e.timer = time.AfterFunc(s.QuietPeriod(), func() {
		defer s.wg.Done()
		s.fire(key, seq)
	})
	return nil
}

func (s *AutosaveScheduler) fire(key SaveKey, seq int64) {
	s.mu.Lock()
	e := s.entries[key]
	if e == nil || e.pending == nil || e.pendingSeq != seq {
		s.mu.Unlock()
		return
	}
	payload := e.pending
	e.pending = nil
	e.timer = nil
	s.mu.Unlock()

	s.write(key, e, seq, payload, "debounce")
}

// Flush 失焦时立即保存尚未落库的负载；没有待保存内容时重试上次失败的写入
func (s *AutosaveScheduler) Flush(key SaveKey) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	var (
		payload json.RawMessage
		seq     int64
	)
	switch {
	case e.pending != nil:
		s.stopTimer(e)
		payload, seq = e.pending, e.pendingSeq
		e.pending = nil
	case e.retry != nil:
		payload, seq = e.retry, e.retrySeq
	}
	s.mu.Unlock()

	if payload == nil {
		return nil
	}
	return s.write(key, e, seq, payload, "blur")
}

// SaveNow 跳过防抖立即保存，挂起的旧负载被取代
func (s *AutosaveScheduler) SaveNow(key SaveKey, payload json.RawMessage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	e := s.entry(key)
	s.stopTimer(e)
	e.pending = nil
	e.seq++
	seq := e.seq
	s.mu.Unlock()

	return s.write(key, e, seq, payload, "immediate")
}

func (s *AutosaveScheduler) write(key SaveKey, e *saveEntry, seq int64, payload json.RawMessage, trigger string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	s.mu.Lock()
	if seq <= e.written {
		s.mu.Unlock()
		monitoring.AutosaveCounter.WithLabelValues(trigger, "stale").Inc()
		logger.ForLesson(key.UserID, key.LessonID).Debug("Discarding stale autosave",
			zap.Int64("seq", seq),
			zap.Int64("written", e.written))
		return nil
	}
	e.status.State = SaveSaving
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	err := s.store.Save(ctx, key.UserID, key.LessonID, payload, seq)
	monitoring.AutosaveDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		e.status.State = SaveFailed
		e.status.LastError = err.Error()
		if seq > e.retrySeq {
			e.retry, e.retrySeq = payload, seq
		}
		monitoring.AutosaveCounter.WithLabelValues(trigger, "failed").Inc()
		logger.ForLesson(key.UserID, key.LessonID).Warn("Autosave failed",
			zap.Int64("seq", seq),
			zap.String("trigger", trigger),
			zap.Error(err))
		return err
	}

	now := time.Now()
	e.written = seq
	if e.retrySeq <= seq {
		e.retry, e.retrySeq = nil, 0
	}
	e.status = SaveStatus{State: SaveSaved, Version: seq, SavedAt: &now}
	if e.pending != nil {
		e.status.State = SavePending
	}
	monitoring.AutosaveCounter.WithLabelValues(trigger, "ok").Inc()
	logger.ForLesson(key.UserID, key.LessonID).Debug("Autosaved response",
		zap.Int64("seq", seq),
		zap.String("trigger", trigger))
	return nil
}

func (s *AutosaveScheduler) Status(key SaveKey) SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return SaveStatus{State: SaveIdle}
	}
	return e.status
}

// Forget 释放空闲键占用的内存；仍有挂起保存时保留
func (s *AutosaveScheduler) Forget(key SaveKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.pending == nil && e.retry == nil && e.status.State != SaveSaving {
		delete(s.entries, key)
	}
}

// Close 停止接收新的保存，并把所有挂起的负载和上次失败的负载写入存储
func (s *AutosaveScheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	type job struct {
		key     SaveKey
		e       *saveEntry
		seq     int64
		payload json.RawMessage
	}
	var jobs []job
	for key, e := range s.entries {
		switch {
		case e.pending != nil:
			s.stopTimer(e)
			jobs = append(jobs, job{key: key, e: e, seq: e.pendingSeq, payload: e.pending})
			e.pending = nil
		case e.retry != nil:
			jobs = append(jobs, job{key: key, e: e, seq: e.retrySeq, payload: e.retry})
		}
	}
	s.mu.Unlock()

	var errs []error
	tried := make(map[SaveKey]int64, len(jobs))
	for _, j := range jobs {
		tried[j.key] = j.seq
		if err := s.write(j.key, j.e, j.seq, j.payload, "shutdown"); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()

	// 关闭期间到期的防抖写入若失败，再补写一次
	s.mu.Lock()
	jobs = jobs[:0]
	for key, e := range s.entries {
		if e.retry != nil && e.retrySeq > tried[key] {
			jobs = append(jobs, job{key: key, e: e, seq: e.retrySeq, payload: e.retry})
		}
	}
	s.mu.Unlock()
	for _, j := range jobs {
		if err := s.write(j.key, j.e, j.seq, j.payload, "shutdown"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
