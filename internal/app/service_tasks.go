package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"taskflow/api/internal/realtime"
	"taskflow/api/internal/search"
	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

var allowedPriorities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
	"urgent": {},
}

type TaskView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	List        string   `json:"list"`
	Board       string   `json:"board"`
	Position    int      `json:"position"`
	Priority    string   `json:"priority"`
	DueDate     string   `json:"dueDate,omitempty"`
	Labels      []string `json:"labels"`
	Assignees   []string `json:"assignees"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

func taskView(task store.Task, assignees []string) TaskView {
	view := TaskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		List:        task.ListID,
		Board:       task.BoardID,
		Position:    task.Position,
		Priority:    task.Priority,
		Labels:      task.Labels,
		Assignees:   assignees,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if view.Labels == nil {
		view.Labels = []string{}
	}
	if view.Assignees == nil {
		view.Assignees = []string{}
	}
	if task.DueDate != nil {
		view.DueDate = task.DueDate.UTC().Format(time.RFC3339)
	}
	return view
}

func (s *Service) taskViewWithAssignees(ctx context.Context, task store.Task) (TaskView, error) {
	assignees, err := s.store.ListTaskAssignees(ctx, task.ID)
	if err != nil {
		return TaskView{}, err
	}
	return taskView(task, assignees), nil
}

// requireTaskAccess resolves a task and gates on its board's membership.
func (s *Service) requireTaskAccess(ctx context.Context, sess Session, taskID string) (store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Task{}, notFoundError("Task not found")
		}
		return store.Task{}, err
	}
	if _, err := s.requireBoardAccess(ctx, sess, task.BoardID); err != nil {
		return store.Task{}, err
	}
	return task, nil
}

func (s *Service) indexTask(task store.Task) {
	if s.search == nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		BoardID:     task.BoardID,
		ListID:      task.ListID,
		Priority:    task.Priority,
	})
}

func (s *Service) ListTasks(ctx context.Context, sess Session, listID, searchText string, page, limit int) ([]TaskView, int, error) {
	list, err := s.requireListAccess(ctx, sess, listID)
	if err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	tasks, err := s.store.ListTasksByList(ctx, listID, searchText, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountTasksByList(ctx, listID, searchText)
	if err != nil {
		return nil, 0, err
	}
	assignees, err := s.store.ListAssigneesByBoard(ctx, list.BoardID)
	if err != nil {
		return nil, 0, err
	}

	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, taskView(task, assignees[task.ID]))
	}
	return views, total, nil
}

func (s *Service) GetTask(ctx context.Context, sess Session, taskID string) (TaskView, error) {
	task, err := s.requireTaskAccess(ctx, sess, taskID)
	if err != nil {
		return TaskView{}, err
	}
	return s.taskViewWithAssignees(ctx, task)
}

type CreateTaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ListID      string   `json:"listId"`
	Priority    string   `json:"priority"`
	DueDate     string   `json:"dueDate"`
	Labels      []string `json:"labels"`
}

// CreateTask appends a task at the end of its list.
func (s *Service) CreateTask(ctx context.Context, sess Session, input CreateTaskInput) (TaskView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 200 {
		return TaskView{}, validationError("title must be between 1 and 200 characters")
	}
	if input.ListID == "" {
		return TaskView{}, validationError("listId is required")
	}
	if len(input.Description) > 2000 {
		return TaskView{}, validationError("description must be at most 2000 characters")
	}
	priority := input.Priority
	if priority == "" {
		priority = "medium"
	}
	if _, ok := allowedPriorities[priority]; !ok {
		return TaskView{}, validationError("priority must be one of low, medium, high, urgent")
	}
	dueDate, err := parseDueDate(input.DueDate)
	if err != nil {
		return TaskView{}, err
	}

	list, err := s.requireListAccess(ctx, sess, input.ListID)
	if err != nil {
		return TaskView{}, err
	}
	position, err := s.store.NextTaskPosition(ctx, list.ID)
	if err != nil {
		return TaskView{}, err
	}

	task := store.Task{
		ID:          util.NewID("tsk"),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		ListID:      list.ID,
		BoardID:     list.BoardID,
		Position:    position,
		Priority:    priority,
		DueDate:     dueDate,
		Labels:      input.Labels,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return TaskView{}, err
	}

	s.logActivity(ctx, sess, task.BoardID, "created", "task", task.ID, task.Title, nil)
	s.indexTask(task)
	view := taskView(task, nil)
	s.publish(realtime.Event{Type: realtime.EventTaskCreated, BoardID: task.BoardID, Payload: view})
	return view, nil
}

type UpdateTaskInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *string   `json:"priority"`
	DueDate     *string   `json:"dueDate"`
	Labels      *[]string `json:"labels"`
}

func (s *Service) UpdateTask(ctx context.Context, sess Session, taskID string, input UpdateTaskInput) (TaskView, error) {
	task, err := s.requireTaskAccess(ctx, sess, taskID)
	if err != nil {
		return TaskView{}, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > 200 {
			return TaskView{}, validationError("title must be between 1 and 200 characters")
		}
		task.Title = title
	}
	if input.Description != nil {
		if len(*input.Description) > 2000 {
			return TaskView{}, validationError("description must be at most 2000 characters")
		}
		task.Description = strings.TrimSpace(*input.Description)
	}
	if input.Priority != nil {
		if _, ok := allowedPriorities[*input.Priority]; !ok {
			return TaskView{}, validationError("priority must be one of low, medium, high, urgent")
		}
		task.Priority = *input.Priority
	}
	if input.DueDate != nil {
		if *input.DueDate == "" {
			task.DueDate = nil
		} else {
			dueDate, err := parseDueDate(*input.DueDate)
			if err != nil {
				return TaskView{}, err
			}
			task.DueDate = dueDate
		}
	}
	if input.Labels != nil {
		task.Labels = *input.Labels
	}
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return TaskView{}, err
	}
	task.UpdatedAt = time.Now()

	s.logActivity(ctx, sess, task.BoardID, "updated", "task", task.ID, task.Title, nil)
	s.indexTask(task)
	view, err := s.taskViewWithAssignees(ctx, task)
	if err != nil {
		return TaskView{}, err
	}
	s.publish(realtime.Event{Type: realtime.EventTaskUpdated, BoardID: task.BoardID, Payload: view})
	return view, nil
}

func (s *Service) DeleteTask(ctx context.Context, sess Session, taskID string) error {
	task, err := s.requireTaskAccess(ctx, sess, taskID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteTask(taskID)
	}

	s.logActivity(ctx, sess, task.BoardID, "deleted", "task", task.ID, task.Title, nil)
	s.publish(realtime.Event{Type: realtime.EventTaskDeleted, BoardID: task.BoardID, Payload: map[string]any{"id": task.ID, "list": task.ListID}})
	return nil
}

type MoveTaskInput struct {
	ListID   string `json:"targetListId"`
	Position *int   `json:"position"`
}

// MoveTask places a task in a target list on the same board. Tasks never move
// across boards; move the work by recreating it on the other board.
func (s *Service) MoveTask(ctx context.Context, sess Session, taskID string, input MoveTaskInput) (TaskView, error) {
	task, err := s.requireTaskAccess(ctx, sess, taskID)
	if err != nil {
		return TaskView{}, err
	}
	if input.ListID == "" {
		return TaskView{}, validationError("targetListId is required")
	}

	target, err := s.store.GetList(ctx, input.ListID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TaskView{}, notFoundError("List not found")
		}
		return TaskView{}, err
	}
	if target.BoardID != task.BoardID {
		return TaskView{}, validationError("cannot move a task to a list on another board")
	}

	var position int
	if input.Position != nil {
		if *input.Position < 0 {
			return TaskView{}, validationError("position must not be negative")
		}
		position = *input.Position
	} else {
		position, err = s.store.NextTaskPosition(ctx, target.ID)
		if err != nil {
			return TaskView{}, err
		}
	}

	if err := s.store.MoveTask(ctx, taskID, target.ID, position); err != nil {
		return TaskView{}, err
	}
	fromList := task.ListID
	task.ListID = target.ID
	task.Position = position
	task.UpdatedAt = time.Now()

	s.logActivity(ctx, sess, task.BoardID, "moved", "task", task.ID, task.Title, map[string]any{
		"fromList": fromList,
		"toList":   target.ID,
	})
	s.indexTask(task)
	view, err := s.taskViewWithAssignees(ctx, task)
	if err != nil {
		return TaskView{}, err
	}
	// Movers need both ends to update the source and target columns.
	s.publish(realtime.Event{Type: realtime.EventTaskMoved, BoardID: task.BoardID, Payload: map[string]any{
		"task":     view,
		"fromList": fromList,
		"toList":   target.ID,
	}})
	return view, nil
}

type AssignTaskInput struct {
	UserID string `json:"userId"`
}

// AssignTask adds a board member to the task. Assigning someone twice is a
// conflict; assigning a non-member is a validation error.
func (s *Service) AssignTask(ctx context.Context, sess Session, taskID string, input AssignTaskInput) (TaskView, error) {
	task, err := s.requireTaskAccess(ctx, sess, taskID)
	if err != nil {
		return TaskView{}, err
	}
	if input.UserID == "" {
		return TaskView{}, validationError("userId is required")
	}

	member, err := s.store.IsBoardMember(ctx, task.BoardID, input.UserID)
	if err != nil {
		return TaskView{}, err
	}
	if !member {
		return TaskView{}, validationError("user is not a member of this board")
	}

	added, err := s.store.AddTaskAssignee(ctx, taskID, input.UserID)
	if err != nil {
		return TaskView{}, err
	}
	if !added {
		return TaskView{}, conflictError("User is already assigned to this task")
	}

	s.logActivity(ctx, sess, task.BoardID, "assigned", "task", task.ID, task.Title, map[string]any{"userId": input.UserID})
	view, err := s.taskViewWithAssignees(ctx, task)
	if err != nil {
		return TaskView{}, err
	}
	s.publish(realtime.Event{Type: realtime.EventTaskUpdated, BoardID: task.BoardID, Payload: view})
	return view, nil
}

// UnassignTask removes a user from the task. Removing someone who is not
// assigned is a no-op, the call still succeeds.
func (s *Service) UnassignTask(ctx context.Context, sess Session, taskID, userID string) (TaskView, error) {
	task, err := s.requireTaskAccess(ctx, sess, taskID)
	if err != nil {
		return TaskView{}, err
	}
	if userID == "" {
		return TaskView{}, validationError("userId is required")
	}
	if err := s.store.RemoveTaskAssignee(ctx, taskID, userID); err != nil {
		return TaskView{}, err
	}

	s.logActivity(ctx, sess, task.BoardID, "unassigned", "task", task.ID, task.Title, map[string]any{"userId": userID})
	view, err := s.taskViewWithAssignees(ctx, task)
	if err != nil {
		return TaskView{}, err
	}
	s.publish(realtime.Event{Type: realtime.EventTaskUpdated, BoardID: task.BoardID, Payload: view})
	return view, nil
}

func parseDueDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, validationError("dueDate must be an RFC 3339 timestamp")
	}
	return &parsed, nil
}
