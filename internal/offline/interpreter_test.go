package offline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merehq/mere-core/internal/database"
	"github.com/merehq/mere-core/internal/models"
	"github.com/merehq/mere-core/internal/repository"
)

const testOwner = "user-1"

func newTestInterpreter(t *testing.T) (*Interpreter, *repository.Store) {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	store := repository.NewStore(db)
	return New(store, testOwner, zap.NewNop()), store
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"장보기 할일 추가해줘", IntentCreateTodo},
		{"내일 우유 사는 거 기억해줘", IntentCreateMemo},
		{"팀 회의 잡아줘", IntentCreateEvent},
		{"할일 목록 보여줘", IntentQueryTodo},
		{"메모 뭐 있었지", IntentQueryMemo},
		{"이번주 일정 확인해줘", IntentQueryEvent},
		{"완료했어", IntentCompleteTodo},
		{"다 했어", IntentCompleteTodo},
		{"안녕하세요", IntentGreeting},
		{"오늘 날씨 어때", IntentUnknown},
		{"", IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.text))
		})
	}
}

func TestCompletionOutranksCreation(t *testing.T) {
	// "할일" alone is a creation keyword, but a completion keyword in the
	// same utterance must win.
	assert.Equal(t, IntentCompleteTodo, classify("보고서 할일 완료했어"))
}

func TestCreateTodoExtractsTitle(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	res, err := interp.Handle(ctx, "장보기 할일 추가해줘")
	require.NoError(t, err)
	require.Equal(t, IntentCreateTodo, res.Intent)
	require.NotEmpty(t, res.RecordID)
	assert.Equal(t, "할일을 추가했어요: 장보기", res.Reply)

	todo, err := store.Todos.GetByID(ctx, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "장보기", todo.Title)
	assert.False(t, todo.IsCompleted())
	assert.False(t, todo.IsSynced)
}

func TestCreateTodoWithDueDateAndPriority(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	res, err := interp.Handle(ctx, "내일까지 긴급 보고서 제출 할일 추가해줘")
	require.NoError(t, err)
	require.Equal(t, IntentCreateTodo, res.Intent)

	todo, err := store.Todos.GetByID(ctx, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, 5, todo.Priority)
	require.NotNil(t, todo.DueTime)
	tomorrow := time.Now().AddDate(0, 0, 1)
	assert.Equal(t, tomorrow.Day(), todo.DueTime.Day())
	assert.Equal(t, 23, todo.DueTime.Hour())
}

func TestCreateMemoKeepsSubject(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	res, err := interp.Handle(ctx, "내일 우유 사는 거 기억해줘")
	require.NoError(t, err)
	require.Equal(t, IntentCreateMemo, res.Intent)

	memo, err := store.Memos.GetByID(ctx, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "우유 사는 거", memo.Content)
}

func TestCreateMemoFallsBackToFullText(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	// Every token is a command word, so stripping leaves nothing and the
	// raw utterance is stored instead.
	res, err := interp.Handle(ctx, "메모 저장해줘")
	require.NoError(t, err)

	memo, err := store.Memos.GetByID(ctx, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "메모 저장해줘", memo.Content)
}

func TestCreateMemoExtractsCategory(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	res, err := interp.Handle(ctx, "업무 보고 내용 적어줘")
	require.NoError(t, err)

	memo, err := store.Memos.GetByID(ctx, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "업무", memo.Category)
}

func TestCreateEventDefaultsToNextHour(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	fixed := time.Date(2026, 3, 10, 14, 25, 0, 0, time.Local)
	interp.now = func() time.Time { return fixed }

	res, err := interp.Handle(ctx, "내일 팀 미팅 잡아줘")
	require.NoError(t, err)
	require.Equal(t, IntentCreateEvent, res.Intent)

	event, err := store.Events.GetByID(ctx, res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "팀", event.Title)
	want := time.Date(2026, 3, 11, 15, 0, 0, 0, time.Local)
	assert.True(t, event.StartsAt.Equal(want), "got %v", event.StartsAt)
}

func TestCompleteTodoPicksNewestOpen(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	older := &models.Todo{OwnerID: testOwner, Title: "빨래"}
	require.NoError(t, store.Todos.Create(ctx, older))
	time.Sleep(2 * time.Millisecond)
	newer := &models.Todo{OwnerID: testOwner, Title: "장보기"}
	require.NoError(t, store.Todos.Create(ctx, newer))

	res, err := interp.Handle(ctx, "완료했어")
	require.NoError(t, err)
	require.Equal(t, IntentCompleteTodo, res.Intent)
	assert.Equal(t, newer.ID, res.RecordID)
	assert.Equal(t, "'장보기' 할일을 완료했어요. 수고하셨어요!", res.Reply)

	done, err := store.Todos.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted())

	open, err := store.Todos.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.False(t, open.IsCompleted())
}

func TestCompleteTodoWithNothingOpen(t *testing.T) {
	interp, _ := newTestInterpreter(t)

	res, err := interp.Handle(context.Background(), "다 했어")
	require.NoError(t, err)
	assert.Equal(t, IntentCompleteTodo, res.Intent)
	assert.Equal(t, "완료할 할일이 없어요.", res.Reply)
	assert.Empty(t, res.RecordID)
}

func TestQueryTodosListsOpenOnes(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	require.NoError(t, store.Todos.Create(ctx, &models.Todo{OwnerID: testOwner, Title: "빨래"}))
	done := &models.Todo{OwnerID: testOwner, Title: "청소"}
	require.NoError(t, store.Todos.Create(ctx, done))
	require.NoError(t, store.Todos.Complete(ctx, done.ID))

	res, err := interp.Handle(ctx, "할일 목록 보여줘")
	require.NoError(t, err)
	require.Equal(t, IntentQueryTodo, res.Intent)
	assert.Contains(t, res.Reply, "할일이 1개 있어요")
	assert.Contains(t, res.Reply, "빨래")
	assert.NotContains(t, res.Reply, "청소")
}

func TestQueryWithEmptyStore(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	ctx := context.Background()

	res, err := interp.Handle(ctx, "메모 목록 보여줘")
	require.NoError(t, err)
	assert.Equal(t, "저장된 메모가 없어요.", res.Reply)

	res, err = interp.Handle(ctx, "일정 확인해줘")
	require.NoError(t, err)
	assert.Equal(t, "예정된 일정이 없어요.", res.Reply)
}

func TestQueryEventsAnnotatesRecurrence(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	require.NoError(t, store.Events.Create(ctx, &models.Event{
		OwnerID:        testOwner,
		Title:          "주간 회의",
		StartsAt:       time.Now().Add(24 * time.Hour),
		RecurrenceRule: "FREQ=WEEKLY;BYDAY=MO",
	}))

	res, err := interp.Handle(ctx, "일정 확인해줘")
	require.NoError(t, err)
	require.Equal(t, IntentQueryEvent, res.Intent)
	assert.Contains(t, res.Reply, "주간 회의")
	assert.Contains(t, res.Reply, "매주 월요일")
	assert.Contains(t, res.Reply, "다음:")
}

func TestQueryMemosWithKeyword(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	require.NoError(t, store.Memos.Create(ctx, &models.Memo{OwnerID: testOwner, Content: "회의실 예약 번호 301"}))
	require.NoError(t, store.Memos.Create(ctx, &models.Memo{OwnerID: testOwner, Content: "우유 사기"}))

	res, err := interp.Handle(ctx, "회의실 메모 찾아줘")
	require.NoError(t, err)
	require.Equal(t, IntentQueryMemo, res.Intent)
	assert.Contains(t, res.Reply, "회의실 예약 번호 301")
	assert.NotContains(t, res.Reply, "우유 사기")
}

func TestQueryTodosWithKeywordNoMatch(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	require.NoError(t, store.Todos.Create(ctx, &models.Todo{OwnerID: testOwner, Title: "빨래"}))

	res, err := interp.Handle(ctx, "운동 할일 확인해줘")
	require.NoError(t, err)
	require.Equal(t, IntentQueryTodo, res.Intent)
	assert.Equal(t, "'운동' 할일을 찾지 못했어요.", res.Reply)
}

func TestQueryWithoutKeywordListsAll(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"할일 목록 보여줘", ""},
		{"메모 뭐 있었지", ""},
		{"이번주 일정 확인해줘", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractKeyword(tt.text), tt.text)
	}
}

func TestUnknownCreatesNothing(t *testing.T) {
	interp, store := newTestInterpreter(t)
	ctx := context.Background()

	res, err := interp.Handle(ctx, "오늘 날씨 어때")
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, res.Intent)
	assert.Equal(t, unknownReply, res.Reply)
	assert.Empty(t, res.RecordID)

	count, err := store.UnsyncedCount(ctx, testOwner)
	require.NoError(t, err)
	assert.Zero(t, count)
}
