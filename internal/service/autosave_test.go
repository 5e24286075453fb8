package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type savedRow struct {
	key     SaveKey
	payload string
	version int64
}

type memoryStore struct {
	mu    sync.Mutex
	rows  []savedRow
	fail  error
	block chan struct{}
}

func (m *memoryStore) Save(ctx context.Context, userID, lessonID string, payload json.RawMessage, version int64) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.rows = append(m.rows, savedRow{key: SaveKey{userID, lessonID}, payload: string(payload), version: version})
	return nil
}

func (m *memoryStore) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memoryStore) saved() []savedRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]savedRow(nil), m.rows...)
}

var testKey = SaveKey{UserID: "u1", LessonID: "l1"}

func TestAutosaveCoalescesBurst(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{}
	s := NewAutosaveScheduler(store, 40*time.Millisecond, time.Second)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Schedule(testKey, json.RawMessage(`{"n":`+string(rune('0'+i))+`}`)))
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, SavePending, s.Status(testKey).State)

	require.Eventually(t, func() bool { return len(store.saved()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	rows := store.saved()
	require.Len(t, rows, 1, "one write per quiet period")
	assert.JSONEq(t, `{"n":5}`, rows[0].payload)
	assert.Equal(t, int64(5), rows[0].version)

	st := s.Status(testKey)
	assert.Equal(t, SaveSaved, st.State)
	assert.Equal(t, int64(5), st.Version)
	require.NoError(t, s.Close())
}

func TestAutosaveFlushCancelsPendingTimer(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{}
	s := NewAutosaveScheduler(store, 30*time.Millisecond, time.Second)

	require.NoError(t, s.Schedule(testKey, json.RawMessage(`{"notes":"a"}`)))
	require.NoError(t, s.Schedule(testKey, json.RawMessage(`{"notes":"ab"}`)))
	require.NoError(t, s.Flush(testKey))

	rows := store.saved()
	require.Len(t, rows, 1, "flush writes synchronously")
	assert.JSONEq(t, `{"notes":"ab"}`, rows[0].payload)

	time.Sleep(90 * time.Millisecond)
	assert.Len(t, store.saved(), 1, "cancelled timer does not write again")

	// 没有挂起内容时 Flush 不做任何事
	require.NoError(t, s.Flush(testKey))
	require.NoError(t, s.Flush(SaveKey{UserID: "nobody", LessonID: "l1"}))
	assert.Len(t, store.saved(), 1)
	require.NoError(t, s.Close())
}

func TestAutosaveSaveNowSupersedesPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{}
	s := NewAutosaveScheduler(store, 30*time.Millisecond, time.Second)

	require.NoError(t, s.Schedule(testKey, json.RawMessage(`{"quiz":{"selected":null}}`)))
	require.NoError(t, s.SaveNow(testKey, json.RawMessage(`{"quiz":{"selected":"b"}}`)))
	time.Sleep(90 * time.Millisecond)

	rows := store.saved()
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"quiz":{"selected":"b"}}`, rows[0].payload)
	assert.Equal(t, int64(2), rows[0].version)
	require.NoError(t, s.Close())
}

func TestAutosaveDiscardsStaleCompletion(t *testing.T) {
	store := &memoryStore{}
	s := NewAutosaveScheduler(store, time.Hour, time.Second)

	s.mu.Lock()
	e := s.entry(testKey)
	s.mu.Unlock()

	require.NoError(t, s.write(testKey, e, 2, json.RawMessage(`{"v":"new"}`), "immediate"))
	require.NoError(t, s.write(testKey, e, 1, json.RawMessage(`{"v":"old"}`), "debounce"))

	rows := store.saved()
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"v":"new"}`, rows[0].payload)
	assert.Equal(t, int64(2), s.Status(testKey).Version)
	require.NoError(t, s.Close())
}

func TestAutosaveSerializesWritesPerKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{block: make(chan struct{})}
	s := NewAutosaveScheduler(store, time.Hour, time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.SaveNow(testKey, json.RawMessage(`{"v":1}`)))
	}()
	require.Eventually(t, func() bool { return s.Status(testKey).State == SaveSaving }, time.Second, time.Millisecond)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.SaveNow(testKey, json.RawMessage(`{"v":2}`)))
	}()
	time.Sleep(10 * time.Millisecond)
	close(store.block)
	wg.Wait()

	rows := store.saved()
	require.NotEmpty(t, rows)
	last := rows[len(rows)-1]
	assert.JSONEq(t, `{"v":2}`, last.payload, "newest state is the last write")
	assert.Equal(t, int64(2), s.Status(testKey).Version)
	require.NoError(t, s.Close())
}

func TestAutosaveFailureIsRetriedOnFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{}
	store.setFail(errors.New("db down"))
	s := NewAutosaveScheduler(store, time.Hour, time.Second)

	err := s.SaveNow(testKey, json.RawMessage(`{"notes":"x"}`))
	require.Error(t, err)
	st := s.Status(testKey)
	assert.Equal(t, SaveFailed, st.State)
	assert.Equal(t, "db down", st.LastError)

	store.setFail(nil)
	require.NoError(t, s.Flush(testKey))
	rows := store.saved()
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"notes":"x"}`, rows[0].payload)
	assert.Equal(t, SaveSaved, s.Status(testKey).State)
	require.NoError(t, s.Close())
}

func TestAutosaveCloseFlushesPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{}
	s := NewAutosaveScheduler(store, time.Hour, time.Second)

	other := SaveKey{UserID: "u2", LessonID: "l1"}
	require.NoError(t, s.Schedule(testKey, json.RawMessage(`{"a":1}`)))
	require.NoError(t, s.Schedule(other, json.RawMessage(`{"b":1}`)))
	require.NoError(t, s.Close())

	assert.Len(t, store.saved(), 2)
	assert.ErrorIs(t, s.Schedule(testKey, json.RawMessage(`{}`)), ErrSchedulerClosed)
	assert.ErrorIs(t, s.SaveNow(testKey, json.RawMessage(`{}`)), ErrSchedulerClosed)
}

func TestAutosaveCloseWritesFailedSave(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{}
	s := NewAutosaveScheduler(store, time.Hour, time.Second)

	require.NoError(t, s.Schedule(testKey, json.RawMessage(`{"n":1}`)))
	store.setFail(errors.New("db down"))
	require.Error(t, s.Flush(testKey))
	assert.Equal(t, SaveFailed, s.Status(testKey).State)

	store.setFail(nil)
	require.NoError(t, s.Close())
	rows := store.saved()
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"n":1}`, rows[0].payload)
	assert.Equal(t, SaveSaved, s.Status(testKey).State)
}

func TestAutosaveCloseRetriesDebouncedFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memoryStore{}
	store.setFail(errors.New("db down"))
	s := NewAutosaveScheduler(store, 10*time.Millisecond, time.Second)

	require.NoError(t, s.Schedule(testKey, json.RawMessage(`{"n":2}`)))
	require.Eventually(t, func() bool { return s.Status(testKey).State == SaveFailed }, time.Second, 5*time.Millisecond)

	store.setFail(nil)
	require.NoError(t, s.Close())
	rows := store.saved()
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"n":2}`, rows[0].payload)
}

func TestAutosaveQuietPeriodReload(t *testing.T) {
	s := NewAutosaveScheduler(&memoryStore{}, 0, time.Second)
	assert.Equal(t, 600*time.Millisecond, s.QuietPeriod())
	s.SetQuietPeriod(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, s.QuietPeriod())
	require.NoError(t, s.Close())
}
