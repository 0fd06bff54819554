package app

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"taskflow/api/internal/authpw"
	"taskflow/api/internal/config"
	"taskflow/api/internal/realtime"
	"taskflow/api/internal/session"
	"taskflow/api/internal/store"
)

// memStore is an in-memory dataStore with the same ordering and position
// semantics as the Postgres implementation.
type memStore struct {
	mu           sync.Mutex
	seq          int
	users        map[string]store.User
	usersByEmail map[string]string
	boards       map[string]store.Board
	members      map[string]map[string]bool
	lists        map[string]store.List
	listSeq      map[string]int
	tasks        map[string]store.Task
	taskSeq      map[string]int
	assignees    map[string]map[string]bool
	activities   []store.Activity
	nextActivity int64
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[string]store.User),
		usersByEmail: make(map[string]string),
		boards:       make(map[string]store.Board),
		members:      make(map[string]map[string]bool),
		lists:        make(map[string]store.List),
		listSeq:      make(map[string]int),
		tasks:        make(map[string]store.Task),
		taskSeq:      make(map[string]int),
		assignees:    make(map[string]map[string]bool),
		nextActivity: 1,
	}
}

func fold(s string) string { return strings.ToLower(s) }

func matches(search, title, description string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(fold(title), fold(search)) || strings.Contains(fold(description), fold(search))
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersByEmail[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return m.users[id], nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) InsertUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *memStore) UpdateUserProfile(_ context.Context, id, name, avatar string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[id]
	user.Name = name
	user.Avatar = avatar
	m.users[id] = user
	return nil
}

func (m *memStore) ListUsersByIDs(_ context.Context, ids []string) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			items = append(items, user)
		}
	}
	return items, nil
}

func (m *memStore) InsertBoard(_ context.Context, board store.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[board.ID] = board
	m.members[board.ID] = map[string]bool{board.OwnerID: true}
	return nil
}

func (m *memStore) GetBoard(_ context.Context, id string) (store.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	board, ok := m.boards[id]
	if !ok {
		return store.Board{}, sql.ErrNoRows
	}
	return board, nil
}

func (m *memStore) boardsForUser(userID, search string) []store.Board {
	var items []store.Board
	for boardID, members := range m.members {
		if !members[userID] {
			continue
		}
		board := m.boards[boardID]
		if matches(search, board.Title, board.Description) {
			items = append(items, board)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (m *memStore) ListBoardsForUser(_ context.Context, userID, search string, limit, offset int) ([]store.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.boardsForUser(userID, search)
	if offset >= len(items) {
		return []store.Board{}, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memStore) CountBoardsForUser(_ context.Context, userID, search string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boardsForUser(userID, search)), nil
}

func (m *memStore) UpdateBoard(_ context.Context, id, title, description, background string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	board := m.boards[id]
	board.Title = title
	board.Description = description
	board.Background = background
	m.boards[id] = board
	return nil
}

func (m *memStore) DeleteBoardCascade(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for taskID, task := range m.tasks {
		if task.BoardID == id {
			delete(m.tasks, taskID)
			delete(m.assignees, taskID)
		}
	}
	for listID, list := range m.lists {
		if list.BoardID == id {
			delete(m.lists, listID)
		}
	}
	var kept []store.Activity
	for _, activity := range m.activities {
		if activity.BoardID != id {
			kept = append(kept, activity)
		}
	}
	m.activities = kept
	delete(m.members, id)
	delete(m.boards, id)
	return nil
}

func (m *memStore) IsBoardMember(_ context.Context, boardID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[boardID][userID], nil
}

func (m *memStore) ListBoardMembers(_ context.Context, boardID string) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []store.User
	for userID := range m.members[boardID] {
		items = append(items, m.users[userID])
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memStore) AddBoardMember(_ context.Context, boardID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[boardID][userID] = true
	return nil
}

func (m *memStore) RemoveBoardMember(_ context.Context, boardID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[boardID], userID)
	return nil
}

func (m *memStore) RemoveAssigneeFromBoardTasks(_ context.Context, boardID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for taskID, task := range m.tasks {
		if task.BoardID == boardID {
			delete(m.assignees[taskID], userID)
		}
	}
	return nil
}

func (m *memStore) InsertList(_ context.Context, list store.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.listSeq[list.ID] = m.seq
	m.lists[list.ID] = list
	return nil
}

func (m *memStore) GetList(_ context.Context, id string) (store.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[id]
	if !ok {
		return store.List{}, sql.ErrNoRows
	}
	return list, nil
}

func (m *memStore) ListLists(_ context.Context, boardID string) ([]store.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []store.List
	for _, list := range m.lists {
		if list.BoardID == boardID {
			items = append(items, list)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return m.listSeq[items[i].ID] < m.listSeq[items[j].ID]
	})
	return items, nil
}

func (m *memStore) NextListPosition(_ context.Context, boardID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 0
	for _, list := range m.lists {
		if list.BoardID == boardID && list.Position+1 > next {
			next = list.Position + 1
		}
	}
	return next, nil
}

func (m *memStore) UpdateList(_ context.Context, id, title string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[id]
	list.Title = title
	list.Position = position
	m.lists[id] = list
	return nil
}

func (m *memStore) SetListPosition(_ context.Context, id string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[id]
	list.Position = position
	m.lists[id] = list
	return nil
}

func (m *memStore) DeleteListCascade(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for taskID, task := range m.tasks {
		if task.ListID == id {
			delete(m.tasks, taskID)
			delete(m.assignees, taskID)
		}
	}
	delete(m.lists, id)
	return nil
}

func (m *memStore) InsertTask(_ context.Context, task store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.taskSeq[task.ID] = m.seq
	m.tasks[task.ID] = task
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return task, nil
}

func (m *memStore) sortTasks(items []store.Task) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return m.taskSeq[items[i].ID] < m.taskSeq[items[j].ID]
	})
}

func (m *memStore) ListTasksByBoard(_ context.Context, boardID string) ([]store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []store.Task
	for _, task := range m.tasks {
		if task.BoardID == boardID {
			items = append(items, task)
		}
	}
	m.sortTasks(items)
	return items, nil
}

func (m *memStore) tasksByList(listID, search string) []store.Task {
	var items []store.Task
	for _, task := range m.tasks {
		if task.ListID == listID && matches(search, task.Title, task.Description) {
			items = append(items, task)
		}
	}
	m.sortTasks(items)
	return items
}

func (m *memStore) ListTasksByList(_ context.Context, listID, search string, limit, offset int) ([]store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.tasksByList(listID, search)
	if offset >= len(items) {
		return []store.Task{}, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memStore) CountTasksByList(_ context.Context, listID, search string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasksByList(listID, search)), nil
}

func (m *memStore) NextTaskPosition(_ context.Context, listID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 0
	for _, task := range m.tasks {
		if task.ListID == listID && task.Position+1 > next {
			next = task.Position + 1
		}
	}
	return next, nil
}

func (m *memStore) UpdateTask(_ context.Context, task store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.tasks[task.ID]
	existing.Title = task.Title
	existing.Description = task.Description
	existing.Position = task.Position
	existing.Priority = task.Priority
	existing.DueDate = task.DueDate
	existing.Labels = task.Labels
	m.tasks[task.ID] = existing
	return nil
}

func (m *memStore) MoveTask(_ context.Context, id, listID string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[id]
	task.ListID = listID
	task.Position = position
	m.tasks[id] = task
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	delete(m.assignees, id)
	return nil
}

func (m *memStore) ListTaskAssignees(_ context.Context, taskID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []string
	for userID := range m.assignees[taskID] {
		items = append(items, userID)
	}
	sort.Strings(items)
	return items, nil
}

func (m *memStore) ListAssigneesByBoard(_ context.Context, boardID string) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make(map[string][]string)
	for taskID, users := range m.assignees {
		task, ok := m.tasks[taskID]
		if !ok || task.BoardID != boardID {
			continue
		}
		for userID := range users {
			items[taskID] = append(items[taskID], userID)
		}
		sort.Strings(items[taskID])
	}
	return items, nil
}

func (m *memStore) AddTaskAssignee(_ context.Context, taskID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignees[taskID] == nil {
		m.assignees[taskID] = make(map[string]bool)
	}
	if m.assignees[taskID][userID] {
		return false, nil
	}
	m.assignees[taskID][userID] = true
	return true, nil
}

func (m *memStore) RemoveTaskAssignee(_ context.Context, taskID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignees[taskID], userID)
	return nil
}

func (m *memStore) InsertActivity(_ context.Context, activity store.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	activity.ID = m.nextActivity
	activity.CreatedAt = time.Now()
	m.nextActivity++
	m.activities = append(m.activities, activity)
	return nil
}

func (m *memStore) ListActivities(_ context.Context, boardID, action string, limit, offset int) ([]store.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []store.Activity
	for i := len(m.activities) - 1; i >= 0; i-- {
		activity := m.activities[i]
		if activity.BoardID != boardID {
			continue
		}
		if action != "" && activity.Action != action {
			continue
		}
		items = append(items, activity)
	}
	if offset >= len(items) {
		return []store.Activity{}, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memStore) CountActivities(_ context.Context, boardID, action string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, activity := range m.activities {
		if activity.BoardID == boardID && (action == "" || activity.Action == action) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

// fakeSessions is an in-memory session store.
type fakeSessions struct {
	mu    sync.Mutex
	items map[string]session.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{items: make(map[string]session.Session)}
}

func (f *fakeSessions) Save(_ context.Context, hash string, sess session.Session, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[hash] = sess
	return nil
}

func (f *fakeSessions) Lookup(_ context.Context, hash string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.items[hash]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (f *fakeSessions) Revoke(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, hash)
	return nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

// capturePublisher records published events in order.
type capturePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (c *capturePublisher) Publish(event realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturePublisher) all() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Event(nil), c.events...)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
}

func newTestService() (*Service, *memStore, *capturePublisher) {
	ms := newMemStore()
	pub := &capturePublisher{}
	svc := &Service{
		cfg:      testConfig(),
		store:    ms,
		sessions: newFakeSessions(),
		authpw:   authpw.NewService(ms),
		realtime: pub,
	}
	return svc, ms, pub
}

func mustRegister(t *testing.T, svc *Service, name, email string) (Session, AuthResult) {
	t.Helper()
	result, err := svc.Register(context.Background(), name, email, "secret1")
	if err != nil {
		t.Fatalf("Register %s failed: %v", email, err)
	}
	sess, err := svc.SessionFromToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	return sess, result
}

func mustCreateBoard(t *testing.T, svc *Service, sess Session, title string) BoardView {
	t.Helper()
	board, err := svc.CreateBoard(context.Background(), sess, CreateBoardInput{Title: title})
	if err != nil {
		t.Fatalf("CreateBoard failed: %v", err)
	}
	return board
}

func mustCreateList(t *testing.T, svc *Service, sess Session, boardID, title string) ListView {
	t.Helper()
	list, err := svc.CreateList(context.Background(), sess, CreateListInput{Title: title, BoardID: boardID})
	if err != nil {
		t.Fatalf("CreateList failed: %v", err)
	}
	return list
}

func mustCreateTask(t *testing.T, svc *Service, sess Session, listID, title string) TaskView {
	t.Helper()
	task, err := svc.CreateTask(context.Background(), sess, CreateTaskInput{Title: title, ListID: listID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Code
}

// --- auth ---

func TestRegisterLoginRefresh(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, result := mustRegister(t, svc, "Ada", "ada@example.com")
	if result.User.Email != "ada@example.com" || result.Token == "" || result.RefreshToken == "" {
		t.Fatalf("unexpected auth result: %+v", result)
	}

	login, err := svc.Login(ctx, "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.User.ID != result.User.ID {
		t.Errorf("login returned wrong user")
	}

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.User.ID != result.User.ID {
		t.Errorf("refresh returned wrong user")
	}

	// Rotation: the used refresh token must be dead.
	if _, err := svc.Refresh(ctx, login.RefreshToken); err == nil {
		t.Error("expected second refresh with same token to fail")
	}
}

func TestLoginBadPassword(t *testing.T) {
	svc, _, _ := newTestService()
	mustRegister(t, svc, "Ada", "ada@example.com")

	_, err := svc.Login(context.Background(), "ada@example.com", "wrong")
	if code := domainCode(t, err); code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", code)
	}
}

// --- boards and the access gate ---

func TestCreateBoardOwnerIsMember(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")

	board := mustCreateBoard(t, svc, owner, "Launch Plan")
	if board.Owner != owner.UserID {
		t.Errorf("expected owner %s, got %s", owner.UserID, board.Owner)
	}
	if len(board.Members) != 1 || board.Members[0].ID != owner.UserID {
		t.Errorf("expected owner as sole member, got %+v", board.Members)
	}
}

func TestBoardAccessGate(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	outsider, _ := mustRegister(t, svc, "Eve", "eve@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Private")

	_, err := svc.GetBoardDetail(ctx, outsider, board.ID)
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN for non-member, got %s", code)
	}

	_, err = svc.GetBoardDetail(ctx, owner, "brd_missing")
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND for unknown board, got %s", code)
	}

	// The gate also covers entities reached through lists and tasks.
	list := mustCreateList(t, svc, owner, board.ID, "Todo")
	if _, err := svc.UpdateList(ctx, outsider, list.ID, UpdateListInput{}); domainCode(t, err) != "FORBIDDEN" {
		t.Error("expected FORBIDDEN for non-member list update")
	}
}

func TestDeleteBoardOwnerOnly(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	member, memberAuth := mustRegister(t, svc, "Bob", "bob@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Shared")
	if _, err := svc.AddBoardMember(ctx, owner, board.ID, AddMemberInput{UserID: memberAuth.User.ID}); err != nil {
		t.Fatalf("AddBoardMember failed: %v", err)
	}

	if err := svc.DeleteBoard(ctx, member, board.ID); domainCode(t, err) != "FORBIDDEN" {
		t.Error("expected FORBIDDEN for member delete")
	}
	if err := svc.DeleteBoard(ctx, owner, board.ID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	svc, ms, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Doomed")
	list := mustCreateList(t, svc, owner, board.ID, "Todo")
	task := mustCreateTask(t, svc, owner, list.ID, "Work")
	if _, err := svc.AssignTask(ctx, owner, task.ID, AssignTaskInput{UserID: owner.UserID}); err != nil {
		t.Fatalf("AssignTask failed: %v", err)
	}

	if err := svc.DeleteBoard(ctx, owner, board.ID); err != nil {
		t.Fatalf("DeleteBoard failed: %v", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.lists) != 0 || len(ms.tasks) != 0 || len(ms.activities) != 0 {
		t.Errorf("cascade left children: lists=%d tasks=%d activities=%d", len(ms.lists), len(ms.tasks), len(ms.activities))
	}
	if len(ms.assignees[task.ID]) != 0 {
		t.Error("cascade left task assignments")
	}
	if _, ok := ms.members[board.ID]; ok {
		t.Error("cascade left board members")
	}
}

// --- members ---

func TestRemoveMemberStripsAssignments(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	_, memberAuth := mustRegister(t, svc, "Bob", "bob@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Team")
	if _, err := svc.AddBoardMember(ctx, owner, board.ID, AddMemberInput{Email: "bob@example.com"}); err != nil {
		t.Fatalf("AddBoardMember failed: %v", err)
	}

	listA := mustCreateList(t, svc, owner, board.ID, "A")
	listB := mustCreateList(t, svc, owner, board.ID, "B")
	taskA := mustCreateTask(t, svc, owner, listA.ID, "first")
	taskB := mustCreateTask(t, svc, owner, listB.ID, "second")
	for _, taskID := range []string{taskA.ID, taskB.ID} {
		if _, err := svc.AssignTask(ctx, owner, taskID, AssignTaskInput{UserID: memberAuth.User.ID}); err != nil {
			t.Fatalf("AssignTask failed: %v", err)
		}
	}

	if _, err := svc.RemoveBoardMember(ctx, owner, board.ID, memberAuth.User.ID); err != nil {
		t.Fatalf("RemoveBoardMember failed: %v", err)
	}

	for _, taskID := range []string{taskA.ID, taskB.ID} {
		view, err := svc.GetTask(ctx, owner, taskID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		for _, assignee := range view.Assignees {
			if assignee == memberAuth.User.ID {
				t.Errorf("task %s still assigned to removed member", taskID)
			}
		}
	}
}

func TestRemoveOwnerRejected(t *testing.T) {
	svc, _, _ := newTestService()
	owner, ownerAuth := mustRegister(t, svc, "Ada", "ada@example.com")

	board := mustCreateBoard(t, svc, owner, "Team")
	_, err := svc.RemoveBoardMember(context.Background(), owner, board.ID, ownerAuth.User.ID)
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestAddMemberTwiceConflicts(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	_, memberAuth := mustRegister(t, svc, "Bob", "bob@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Team")
	if _, err := svc.AddBoardMember(ctx, owner, board.ID, AddMemberInput{UserID: memberAuth.User.ID}); err != nil {
		t.Fatalf("AddBoardMember failed: %v", err)
	}
	_, err := svc.AddBoardMember(ctx, owner, board.ID, AddMemberInput{UserID: memberAuth.User.ID})
	if code := domainCode(t, err); code != "CONFLICT" {
		t.Errorf("expected CONFLICT, got %s", code)
	}
}

// --- positions ---

func TestPositionsAppendAndNeverRenumber(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Positions")
	var lists []ListView
	for _, title := range []string{"a", "b", "c"} {
		lists = append(lists, mustCreateList(t, svc, owner, board.ID, title))
	}
	for i, list := range lists {
		if list.Position != i {
			t.Errorf("list %d has position %d", i, list.Position)
		}
	}

	tasks := make([]TaskView, 0, 3)
	for _, title := range []string{"t1", "t2", "t3"} {
		tasks = append(tasks, mustCreateTask(t, svc, owner, lists[0].ID, title))
	}
	for i, task := range tasks {
		if task.Position != i {
			t.Errorf("task %d has position %d", i, task.Position)
		}
	}

	// Deleting the middle task leaves a gap, the next append goes past the max.
	if err := svc.DeleteTask(ctx, owner, tasks[1].ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	appended := mustCreateTask(t, svc, owner, lists[0].ID, "t4")
	if appended.Position != 3 {
		t.Errorf("expected appended position 3, got %d", appended.Position)
	}
}

func TestReorderListsWritesGivenPositions(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Reorder")
	a := mustCreateList(t, svc, owner, board.ID, "a")
	b := mustCreateList(t, svc, owner, board.ID, "b")
	c := mustCreateList(t, svc, owner, board.ID, "c")

	input := ReorderListsInput{BoardID: board.ID}
	for i, id := range []string{c.ID, a.ID, b.ID} {
		input.Lists = append(input.Lists, struct {
			ID       string `json:"id"`
			Position int    `json:"position"`
		}{ID: id, Position: i})
	}
	views, err := svc.ReorderLists(ctx, owner, input)
	if err != nil {
		t.Fatalf("ReorderLists failed: %v", err)
	}
	got := []string{views[0].ID, views[1].ID, views[2].ID}
	want := []string{c.ID, a.ID, b.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReorderRejectsForeignList(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")

	boardA := mustCreateBoard(t, svc, owner, "A")
	boardB := mustCreateBoard(t, svc, owner, "B")
	foreign := mustCreateList(t, svc, owner, boardB.ID, "other")

	input := ReorderListsInput{BoardID: boardA.ID}
	input.Lists = append(input.Lists, struct {
		ID       string `json:"id"`
		Position int    `json:"position"`
	}{ID: foreign.ID, Position: 0})

	_, err := svc.ReorderLists(context.Background(), owner, input)
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

// --- task moves ---

func TestMoveTaskWithinBoard(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Move")
	src := mustCreateList(t, svc, owner, board.ID, "src")
	dst := mustCreateList(t, svc, owner, board.ID, "dst")
	stay := mustCreateTask(t, svc, owner, src.ID, "stays")
	task := mustCreateTask(t, svc, owner, src.ID, "moves")

	moved, err := svc.MoveTask(ctx, owner, task.ID, MoveTaskInput{ListID: dst.ID})
	if err != nil {
		t.Fatalf("MoveTask failed: %v", err)
	}
	if moved.List != dst.ID || moved.Position != 0 {
		t.Errorf("unexpected move result: list=%s position=%d", moved.List, moved.Position)
	}

	// The source list keeps its remaining positions untouched.
	kept, err := svc.GetTask(ctx, owner, stay.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if kept.Position != 0 || kept.List != src.ID {
		t.Errorf("source task disturbed: %+v", kept)
	}
}

func TestMoveTaskAcrossBoardsRejected(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")

	boardA := mustCreateBoard(t, svc, owner, "A")
	boardB := mustCreateBoard(t, svc, owner, "B")
	listA := mustCreateList(t, svc, owner, boardA.ID, "a")
	listB := mustCreateList(t, svc, owner, boardB.ID, "b")
	task := mustCreateTask(t, svc, owner, listA.ID, "stuck")

	_, err := svc.MoveTask(context.Background(), owner, task.ID, MoveTaskInput{ListID: listB.ID})
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

// --- assignment ---

func TestAssignSemantics(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	_, outsiderAuth := mustRegister(t, svc, "Eve", "eve@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Assign")
	list := mustCreateList(t, svc, owner, board.ID, "Todo")
	task := mustCreateTask(t, svc, owner, list.ID, "Work")

	view, err := svc.AssignTask(ctx, owner, task.ID, AssignTaskInput{UserID: owner.UserID})
	if err != nil {
		t.Fatalf("AssignTask failed: %v", err)
	}
	if len(view.Assignees) != 1 || view.Assignees[0] != owner.UserID {
		t.Errorf("unexpected assignees: %v", view.Assignees)
	}

	// Double assignment is a conflict.
	_, err = svc.AssignTask(ctx, owner, task.ID, AssignTaskInput{UserID: owner.UserID})
	if code := domainCode(t, err); code != "CONFLICT" {
		t.Errorf("expected CONFLICT, got %s", code)
	}

	// Assigning a non-member is invalid.
	_, err = svc.AssignTask(ctx, owner, task.ID, AssignTaskInput{UserID: outsiderAuth.User.ID})
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}

	// Unassigning someone who is not assigned succeeds silently.
	view, err = svc.UnassignTask(ctx, owner, task.ID, outsiderAuth.User.ID)
	if err != nil {
		t.Fatalf("UnassignTask no-op failed: %v", err)
	}
	if len(view.Assignees) != 1 {
		t.Errorf("no-op unassign changed assignees: %v", view.Assignees)
	}

	view, err = svc.UnassignTask(ctx, owner, task.ID, owner.UserID)
	if err != nil {
		t.Fatalf("UnassignTask failed: %v", err)
	}
	if len(view.Assignees) != 0 {
		t.Errorf("expected empty assignees, got %v", view.Assignees)
	}
}

// --- activity log ---

func TestActivityLogRecordsMutations(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Audit")
	list := mustCreateList(t, svc, owner, board.ID, "Todo")
	task := mustCreateTask(t, svc, owner, list.ID, "Work")
	if _, err := svc.MoveTask(ctx, owner, task.ID, MoveTaskInput{ListID: list.ID}); err != nil {
		t.Fatalf("MoveTask failed: %v", err)
	}

	activities, total, err := svc.ListActivities(ctx, owner, board.ID, "", 1, 50)
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 activities, got %d", total)
	}
	// Newest first.
	wantActions := []string{"moved", "created", "created", "created"}
	for i, want := range wantActions {
		if activities[i].Action != want {
			t.Errorf("activity[%d].Action = %s, want %s", i, activities[i].Action, want)
		}
		if activities[i].Actor.ID != owner.UserID || activities[i].Actor.Name != "Ada" {
			t.Errorf("activity[%d] actor snapshot wrong: %+v", i, activities[i].Actor)
		}
	}

	// Filter by action.
	moved, total, err := svc.ListActivities(ctx, owner, board.ID, "moved", 1, 50)
	if err != nil {
		t.Fatalf("filtered ListActivities failed: %v", err)
	}
	if total != 1 || len(moved) != 1 || moved[0].EntityID != task.ID {
		t.Errorf("unexpected filtered activities: total=%d %+v", total, moved)
	}

	// Deleted entities keep their title snapshot.
	if err := svc.DeleteTask(ctx, owner, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	deleted, _, err := svc.ListActivities(ctx, owner, board.ID, "deleted", 1, 10)
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	if len(deleted) != 1 || deleted[0].EntityTitle != "Work" {
		t.Errorf("expected deleted activity with title snapshot, got %+v", deleted)
	}
}

func TestActivitiesStayOnCanonicalEnums(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	_, memberAuth := mustRegister(t, svc, "Bob", "bob@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Enums")
	if _, err := svc.AddBoardMember(ctx, owner, board.ID, AddMemberInput{UserID: memberAuth.User.ID}); err != nil {
		t.Fatalf("AddBoardMember failed: %v", err)
	}
	a := mustCreateList(t, svc, owner, board.ID, "a")
	b := mustCreateList(t, svc, owner, board.ID, "b")
	if _, err := svc.ReorderLists(ctx, owner, ReorderListsInput{BoardID: board.ID, ListIDs: []string{b.ID, a.ID}}); err != nil {
		t.Fatalf("ReorderLists failed: %v", err)
	}
	task := mustCreateTask(t, svc, owner, a.ID, "work")
	if _, err := svc.AssignTask(ctx, owner, task.ID, AssignTaskInput{UserID: memberAuth.User.ID}); err != nil {
		t.Fatalf("AssignTask failed: %v", err)
	}
	if _, err := svc.UnassignTask(ctx, owner, task.ID, memberAuth.User.ID); err != nil {
		t.Fatalf("UnassignTask failed: %v", err)
	}
	if _, err := svc.RemoveBoardMember(ctx, owner, board.ID, memberAuth.User.ID); err != nil {
		t.Fatalf("RemoveBoardMember failed: %v", err)
	}

	allowedActions := map[string]bool{
		"created": true, "updated": true, "moved": true, "deleted": true,
		"assigned": true, "unassigned": true, "archived": true,
	}
	allowedEntities := map[string]bool{"board": true, "list": true, "task": true}

	activities, _, err := svc.ListActivities(ctx, owner, board.ID, "", 1, 100)
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	var sawMemberAdded, sawMemberRemoved bool
	for _, activity := range activities {
		if !allowedActions[activity.Action] {
			t.Errorf("off-enum action %q on activity %+v", activity.Action, activity)
		}
		if !allowedEntities[activity.EntityType] {
			t.Errorf("off-enum entity type %q on activity %+v", activity.EntityType, activity)
		}
		if activity.Action == "assigned" && activity.EntityType == "board" {
			sawMemberAdded = true
			if got := activity.Details["memberAdded"]; got != memberAuth.User.ID {
				t.Errorf("memberAdded detail = %v, want %s", got, memberAuth.User.ID)
			}
		}
		if activity.Action == "unassigned" && activity.EntityType == "board" {
			sawMemberRemoved = true
			if got := activity.Details["memberRemoved"]; got != memberAuth.User.ID {
				t.Errorf("memberRemoved detail = %v, want %s", got, memberAuth.User.ID)
			}
		}
	}
	if !sawMemberAdded {
		t.Error("member addition was not recorded as assigned/board")
	}
	if !sawMemberRemoved {
		t.Error("member removal was not recorded as unassigned/board")
	}
}

func TestReorderListsLastCallWins(t *testing.T) {
	svc, _, pub := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Overlap")
	a := mustCreateList(t, svc, owner, board.ID, "a")
	b := mustCreateList(t, svc, owner, board.ID, "b")
	c := mustCreateList(t, svc, owner, board.ID, "c")

	if _, err := svc.ReorderLists(ctx, owner, ReorderListsInput{BoardID: board.ID, ListIDs: []string{c.ID, a.ID, b.ID}}); err != nil {
		t.Fatalf("first ReorderLists failed: %v", err)
	}
	views, err := svc.ReorderLists(ctx, owner, ReorderListsInput{BoardID: board.ID, ListIDs: []string{b.ID, c.ID, a.ID}})
	if err != nil {
		t.Fatalf("second ReorderLists failed: %v", err)
	}

	// The second call's explicit ordering supersedes the first entirely.
	want := []string{b.ID, c.ID, a.ID}
	if len(views) != len(want) {
		t.Fatalf("expected %d lists, got %d", len(want), len(views))
	}
	for i := range want {
		if views[i].ID != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, views[i].ID, want[i])
		}
		if views[i].Position != i {
			t.Errorf("position[%d] = %d, want %d", i, views[i].Position, i)
		}
	}

	// Each reorder emits exactly one board:updated event, never per-list
	// list:updated spam.
	var boardUpdated, listUpdated int
	for _, event := range pub.all() {
		switch event.Type {
		case realtime.EventBoardUpdated:
			boardUpdated++
		case realtime.EventListUpdated:
			listUpdated++
		}
	}
	if boardUpdated != 2 {
		t.Errorf("expected 2 board:updated events, got %d", boardUpdated)
	}
	if listUpdated != 0 {
		t.Errorf("expected no list:updated events from reorder, got %d", listUpdated)
	}
}

// --- realtime events ---

func TestMutationsPublishEventsInOrder(t *testing.T) {
	svc, _, pub := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Events")
	list := mustCreateList(t, svc, owner, board.ID, "Todo")
	task := mustCreateTask(t, svc, owner, list.ID, "Work")
	if _, err := svc.MoveTask(ctx, owner, task.ID, MoveTaskInput{ListID: list.ID}); err != nil {
		t.Fatalf("MoveTask failed: %v", err)
	}
	if err := svc.DeleteTask(ctx, owner, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	events := pub.all()
	want := []string{
		realtime.EventListCreated,
		realtime.EventTaskCreated,
		realtime.EventTaskMoved,
		realtime.EventTaskDeleted,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("event[%d].Type = %s, want %s", i, events[i].Type, typ)
		}
		if events[i].BoardID != board.ID {
			t.Errorf("event[%d] scoped to %s, want %s", i, events[i].BoardID, board.ID)
		}
	}

	// The move event names both ends of the move.
	moved, ok := events[2].Payload.(map[string]any)
	if !ok {
		t.Fatalf("task:moved payload is %T, want map", events[2].Payload)
	}
	if moved["fromList"] != list.ID || moved["toList"] != list.ID {
		t.Errorf("task:moved payload lists = %v/%v, want %s", moved["fromList"], moved["toList"], list.ID)
	}
	if _, ok := moved["task"]; !ok {
		t.Error("task:moved payload is missing the task view")
	}
}

// --- board snapshot ---

func TestBoardDetailSnapshot(t *testing.T) {
	svc, _, _ := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Snapshot")
	todo := mustCreateList(t, svc, owner, board.ID, "Todo")
	done := mustCreateList(t, svc, owner, board.ID, "Done")
	first := mustCreateTask(t, svc, owner, todo.ID, "first")
	mustCreateTask(t, svc, owner, todo.ID, "second")
	if _, err := svc.AssignTask(ctx, owner, first.ID, AssignTaskInput{UserID: owner.UserID}); err != nil {
		t.Fatalf("AssignTask failed: %v", err)
	}

	detail, err := svc.GetBoardDetail(ctx, owner, board.ID)
	if err != nil {
		t.Fatalf("GetBoardDetail failed: %v", err)
	}
	if len(detail.Lists) != 2 {
		t.Fatalf("expected 2 lists, got %d", len(detail.Lists))
	}
	if detail.Lists[0].ID != todo.ID || detail.Lists[1].ID != done.ID {
		t.Errorf("lists out of order: %+v", detail.Lists)
	}
	if len(detail.Lists[0].Tasks) != 2 {
		t.Fatalf("expected 2 tasks in first list, got %d", len(detail.Lists[0].Tasks))
	}
	if detail.Lists[0].Tasks[0].Title != "first" || detail.Lists[0].Tasks[1].Title != "second" {
		t.Errorf("tasks out of order: %+v", detail.Lists[0].Tasks)
	}
	if got := detail.Lists[0].Tasks[0].Assignees; len(got) != 1 || got[0] != owner.UserID {
		t.Errorf("assignees missing from snapshot: %v", got)
	}
	if len(detail.Lists[1].Tasks) != 0 {
		t.Errorf("expected empty task slice for second list, got %+v", detail.Lists[1].Tasks)
	}
}

// Two users collaborate on one board end to end.
func TestCollaborationScenario(t *testing.T) {
	svc, _, pub := newTestService()
	owner, _ := mustRegister(t, svc, "Ada", "ada@example.com")
	member, memberAuth := mustRegister(t, svc, "Bob", "bob@example.com")
	ctx := context.Background()

	board := mustCreateBoard(t, svc, owner, "Release 1.0")
	if _, err := svc.AddBoardMember(ctx, owner, board.ID, AddMemberInput{Email: "bob@example.com"}); err != nil {
		t.Fatalf("AddBoardMember failed: %v", err)
	}

	todo := mustCreateList(t, svc, owner, board.ID, "Todo")
	doing := mustCreateList(t, svc, owner, board.ID, "Doing")

	// The member can mutate the shared board.
	task, err := svc.CreateTask(ctx, member, CreateTaskInput{Title: "Ship docs", ListID: todo.ID, Priority: "high"})
	if err != nil {
		t.Fatalf("member CreateTask failed: %v", err)
	}
	if _, err := svc.AssignTask(ctx, member, task.ID, AssignTaskInput{UserID: memberAuth.User.ID}); err != nil {
		t.Fatalf("member AssignTask failed: %v", err)
	}
	if _, err := svc.MoveTask(ctx, member, task.ID, MoveTaskInput{ListID: doing.ID}); err != nil {
		t.Fatalf("member MoveTask failed: %v", err)
	}

	// Removing the member strips their assignment board-wide.
	if _, err := svc.RemoveBoardMember(ctx, owner, board.ID, memberAuth.User.ID); err != nil {
		t.Fatalf("RemoveBoardMember failed: %v", err)
	}
	view, err := svc.GetTask(ctx, owner, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(view.Assignees) != 0 {
		t.Errorf("removed member still assigned: %v", view.Assignees)
	}

	// The removed member is locked out.
	if _, err := svc.GetBoardDetail(ctx, member, board.ID); domainCode(t, err) != "FORBIDDEN" {
		t.Error("expected FORBIDDEN after removal")
	}

	// Every mutation reached the realtime pipeline for this board.
	for _, event := range pub.all() {
		if event.BoardID != board.ID {
			t.Errorf("event leaked to board %s", event.BoardID)
		}
	}
}
