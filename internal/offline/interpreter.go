// Package offline is the rule-based fallback interpreter used when the
// remote NLU boundary is unreachable. It classifies raw Korean text against
// ordered keyword groups, mutates the local store directly, and answers with
// a confirmation string. It never talks to the network.
package offline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/merehq/mere-core/internal/models"
	"github.com/merehq/mere-core/internal/repository"
	"github.com/merehq/mere-core/internal/rrule"
)

type Intent string

const (
	IntentCreateMemo   Intent = "create_memo"
	IntentQueryMemo    Intent = "query_memo"
	IntentCreateTodo   Intent = "create_todo"
	IntentQueryTodo    Intent = "query_todo"
	IntentCompleteTodo Intent = "complete_todo"
	IntentCreateEvent  Intent = "create_event"
	IntentQueryEvent   Intent = "query_event"
	IntentGreeting     Intent = "greeting"
	IntentUnknown      Intent = "unknown"
)

// Result is what the presentation layer shows for an offline command.
type Result struct {
	Intent   Intent
	Reply    string
	RecordID string
}

// rule is one keyword-pattern group. Classification walks the rules in
// order and the first match wins, so the slice order encodes priority:
// completion outranks creation, queries outrank creation.
type rule struct {
	intent Intent
	// anyOf matches when the text contains at least one keyword.
	anyOf []string
	// with additionally requires one of these keywords, when non-empty.
	with []string
}

var rules = []rule{
	{intent: IntentCompleteTodo, anyOf: []string{"완료", "다 했", "다했", "끝났", "끝냈"}},
	{intent: IntentQueryMemo, anyOf: []string{"메모", "기록"}, with: []string{"보여", "찾아", "확인", "목록", "뭐"}},
	{intent: IntentQueryTodo, anyOf: []string{"할일", "할 일", "태스크"}, with: []string{"보여", "확인", "목록", "뭐"}},
	{intent: IntentQueryEvent, anyOf: []string{"일정", "스케줄", "약속"}, with: []string{"보여", "확인", "목록", "뭐", "언제"}},
	{intent: IntentCreateMemo, anyOf: []string{"메모", "기억", "기록", "적어", "저장"}},
	{intent: IntentCreateTodo, anyOf: []string{"할일", "할 일", "태스크", "해야"}},
	{intent: IntentCreateEvent, anyOf: []string{"회의", "약속", "미팅", "만남", "예약", "일정"}},
	{intent: IntentGreeting, anyOf: []string{"안녕", "하이", "좋은 아침"}},
}

// Small fixed entity vocabularies, matched as substrings.
var (
	priorityWords = map[string]int{
		"긴급": 5, "급한": 5, "급해": 5,
		"중요": 4, "높음": 4,
		"보통": 3,
		"낮음": 1, "천천히": 1,
	}
	categoryWords = []string{"업무", "개인", "쇼핑", "건강", "학습", "프로젝트"}
	dateWords     = []string{"오늘", "내일", "이번주", "이번 주"}
)

const unknownReply = "죄송해요, 아직 이해하지 못하는 말이에요. 메모, 할일, 일정에 대해 말씀해 주세요."

type Interpreter struct {
	store   *repository.Store
	ownerID string
	logger  *zap.Logger
	now     func() time.Time
}

func New(store *repository.Store, ownerID string, logger *zap.Logger) *Interpreter {
	return &Interpreter{
		store:   store,
		ownerID: ownerID,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle classifies the text and executes the resulting store mutation or
// query. The reply is always user-presentable Korean; Unknown classification
// creates nothing.
func (i *Interpreter) Handle(ctx context.Context, text string) (*Result, error) {
	intent := classify(text)
	i.logger.Debug("offline command classified",
		zap.String("intent", string(intent)), zap.String("text", text))

	switch intent {
	case IntentCreateMemo:
		return i.createMemo(ctx, text)
	case IntentCreateTodo:
		return i.createTodo(ctx, text)
	case IntentCreateEvent:
		return i.createEvent(ctx, text)
	case IntentQueryMemo:
		return i.queryMemos(ctx, text)
	case IntentQueryTodo:
		return i.queryTodos(ctx, text)
	case IntentQueryEvent:
		return i.queryEvents(ctx, text)
	case IntentCompleteTodo:
		return i.completeTodo(ctx)
	case IntentGreeting:
		return &Result{Intent: IntentGreeting, Reply: "안녕하세요! 무엇을 도와드릴까요?"}, nil
	default:
		return &Result{Intent: IntentUnknown, Reply: unknownReply}, nil
	}
}

func classify(text string) Intent {
	for _, r := range rules {
		if !containsAny(text, r.anyOf) {
			continue
		}
		if len(r.with) > 0 && !containsAny(text, r.with) {
			continue
		}
		return r.intent
	}
	return IntentUnknown
}

func (i *Interpreter) createMemo(ctx context.Context, text string) (*Result, error) {
	memo := &models.Memo{
		OwnerID:  i.ownerID,
		Content:  extractTitle(text),
		Category: extractCategory(text),
		Priority: extractPriority(text),
	}
	if memo.Content == "" {
		memo.Content = text
	}
	if err := i.store.Memos.Create(ctx, memo); err != nil {
		return nil, fmt.Errorf("failed to create memo: %w", err)
	}
	return &Result{
		Intent:   IntentCreateMemo,
		Reply:    fmt.Sprintf("메모를 저장했어요: %s", memo.Content),
		RecordID: memo.ID,
	}, nil
}

func (i *Interpreter) createTodo(ctx context.Context, text string) (*Result, error) {
	todo := &models.Todo{
		OwnerID:  i.ownerID,
		Title:    extractTitle(text),
		Category: extractCategory(text),
		Priority: extractPriority(text),
		DueTime:  i.extractDueTime(text),
	}
	if todo.Title == "" {
		todo.Title = text
	}
	if err := i.store.Todos.Create(ctx, todo); err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}
	return &Result{
		Intent:   IntentCreateTodo,
		Reply:    fmt.Sprintf("할일을 추가했어요: %s", todo.Title),
		RecordID: todo.ID,
	}, nil
}

func (i *Interpreter) createEvent(ctx context.Context, text string) (*Result, error) {
	startsAt := i.defaultEventTime(text)
	event := &models.Event{
		OwnerID:  i.ownerID,
		Title:    extractTitle(text),
		StartsAt: startsAt,
	}
	if event.Title == "" {
		event.Title = text
	}
	if err := i.store.Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return &Result{
		Intent:   IntentCreateEvent,
		Reply:    fmt.Sprintf("일정을 등록했어요: %s (%s)", event.Title, startsAt.Format("01/02 15:04")),
		RecordID: event.ID,
	}, nil
}

func (i *Interpreter) queryMemos(ctx context.Context, text string) (*Result, error) {
	var (
		memos []*models.Memo
		err   error
	)
	keyword := extractKeyword(text)
	if keyword != "" {
		memos, err = i.store.Memos.Search(ctx, i.ownerID, keyword)
	} else {
		memos, err = i.store.Memos.GetByOwnerID(ctx, i.ownerID, 10, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list memos: %w", err)
	}
	if len(memos) == 0 {
		if keyword != "" {
			return &Result{Intent: IntentQueryMemo, Reply: fmt.Sprintf("'%s' 메모를 찾지 못했어요.", keyword)}, nil
		}
		return &Result{Intent: IntentQueryMemo, Reply: "저장된 메모가 없어요."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "메모가 %d개 있어요:\n", len(memos))
	for n, memo := range memos {
		fmt.Fprintf(&b, "%d. %s\n", n+1, memo.Content)
	}
	return &Result{Intent: IntentQueryMemo, Reply: strings.TrimRight(b.String(), "\n")}, nil
}

func (i *Interpreter) queryTodos(ctx context.Context, text string) (*Result, error) {
	var (
		todos []*models.Todo
		err   error
	)
	keyword := extractKeyword(text)
	if keyword != "" {
		todos, err = i.store.Todos.Search(ctx, i.ownerID, keyword, false)
	} else {
		todos, err = i.store.Todos.GetByOwnerID(ctx, i.ownerID, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	if len(todos) == 0 {
		if keyword != "" {
			return &Result{Intent: IntentQueryTodo, Reply: fmt.Sprintf("'%s' 할일을 찾지 못했어요.", keyword)}, nil
		}
		return &Result{Intent: IntentQueryTodo, Reply: "남은 할일이 없어요."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "할일이 %d개 있어요:\n", len(todos))
	for n, todo := range todos {
		fmt.Fprintf(&b, "%d. %s\n", n+1, todo.Title)
	}
	return &Result{Intent: IntentQueryTodo, Reply: strings.TrimRight(b.String(), "\n")}, nil
}

func (i *Interpreter) queryEvents(ctx context.Context, text string) (*Result, error) {
	var (
		events []*models.Event
		err    error
	)
	keyword := extractKeyword(text)
	if keyword != "" {
		events, err = i.store.Events.Search(ctx, i.ownerID, keyword)
	} else {
		events, err = i.store.Events.GetUpcoming(ctx, i.ownerID, i.now())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if len(events) == 0 {
		if keyword != "" {
			return &Result{Intent: IntentQueryEvent, Reply: fmt.Sprintf("'%s' 일정을 찾지 못했어요.", keyword)}, nil
		}
		return &Result{Intent: IntentQueryEvent, Reply: "예정된 일정이 없어요."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "일정이 %d개 있어요:\n", len(events))
	for n, event := range events {
		fmt.Fprintf(&b, "%d. %s %s", n+1, event.StartsAt.Format("01/02 15:04"), event.Title)
		if event.IsRecurring() {
			fmt.Fprintf(&b, " (%s%s)", rrule.HumanReadableKorean(event.RecurrenceRule),
				i.upcomingDates(event))
		}
		b.WriteString("\n")
	}
	return &Result{Intent: IntentQueryEvent, Reply: strings.TrimRight(b.String(), "\n")}, nil
}

// completeTodo with no explicit target picks the most recently created open
// todo. Having none is a normal outcome, not an error.
func (i *Interpreter) completeTodo(ctx context.Context) (*Result, error) {
	todo, err := i.store.Todos.LatestOpen(ctx, i.ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return &Result{Intent: IntentCompleteTodo, Reply: "완료할 할일이 없어요."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open todo: %w", err)
	}
	if err := i.store.Todos.Complete(ctx, todo.ID); err != nil {
		return nil, fmt.Errorf("failed to complete todo: %w", err)
	}
	return &Result{
		Intent:   IntentCompleteTodo,
		Reply:    fmt.Sprintf("'%s' 할일을 완료했어요. 수고하셨어요!", todo.Title),
		RecordID: todo.ID,
	}, nil
}

// upcomingDates renders the next two dates a recurrence rule produces, so a
// recurring listing shows when it actually fires next.
func (i *Interpreter) upcomingDates(event *models.Event) string {
	nexts, err := rrule.NextOccurrences(event.RecurrenceRule, event.StartsAt, i.now(), 2)
	if err != nil || len(nexts) == 0 {
		return ""
	}
	dates := make([]string, len(nexts))
	for n, occ := range nexts {
		dates[n] = occ.Format("01/02")
	}
	return fmt.Sprintf(", 다음: %s", strings.Join(dates, " "))
}

var requestSuffixes = []string{"해줘", "해 줘", "해주세요", "할게", "해야지", "하자", "줘"}

// extractTitle strips command keywords, date words, and trailing request
// suffixes, leaving the content the user was talking about.
func extractTitle(text string) string {
	commandWords := []string{
		"메모", "기억", "기록", "저장", "적어",
		"할일", "할 일", "태스크", "해야",
		"일정", "회의", "약속", "미팅", "예약",
		"추가", "만들", "등록", "잡아", "보여",
	}

	var kept []string
	for _, token := range strings.Fields(text) {
		if containsAny(token, dateWords) {
			continue
		}
		if containsAny(token, commandWords) {
			continue
		}
		trimmed := token
		for _, s := range requestSuffixes {
			trimmed = strings.TrimSuffix(trimmed, s)
		}
		if trimmed == "" {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, " ")
}

// extractKeyword pulls a search term out of a query utterance. Everything
// that is query phrasing rather than subject matter is dropped; an empty
// result means "list everything".
func extractKeyword(text string) string {
	stopWords := []string{
		"메모", "기억", "기록",
		"할일", "할 일", "태스크",
		"일정", "스케줄", "약속",
		"보여", "찾아", "확인", "알려", "목록", "리스트",
		"뭐", "언제", "있",
	}

	var kept []string
	for _, token := range strings.Fields(text) {
		if containsAny(token, dateWords) || containsAny(token, stopWords) {
			continue
		}
		trimmed := token
		for _, s := range requestSuffixes {
			trimmed = strings.TrimSuffix(trimmed, s)
		}
		if trimmed == "" {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, " ")
}

func extractPriority(text string) int {
	for word, p := range priorityWords {
		if strings.Contains(text, word) {
			return p
		}
	}
	return 0
}

func extractCategory(text string) string {
	for _, word := range categoryWords {
		if strings.Contains(text, word) {
			return word
		}
	}
	return ""
}

// extractDueTime maps the fixed relative-date vocabulary to a concrete
// deadline: today and tomorrow end of day, this week ends on Sunday.
func (i *Interpreter) extractDueTime(text string) *time.Time {
	now := i.now()
	endOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 0, 0, t.Location())
	}

	switch {
	case strings.Contains(text, "오늘"):
		t := endOfDay(now)
		return &t
	case strings.Contains(text, "내일"):
		t := endOfDay(now.AddDate(0, 0, 1))
		return &t
	case strings.Contains(text, "이번주"), strings.Contains(text, "이번 주"):
		days := (7 - int(now.Weekday())) % 7
		t := endOfDay(now.AddDate(0, 0, days))
		return &t
	}
	return nil
}

// defaultEventTime places an offline-created event on the next hour of the
// referenced day; the user can adjust it once the service is reachable.
func (i *Interpreter) defaultEventTime(text string) time.Time {
	now := i.now()
	day := now
	if strings.Contains(text, "내일") {
		day = now.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), 0, 0, 0, day.Location()).
		Add(time.Hour)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
