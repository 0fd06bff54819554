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

type BoardView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Background  string     `json:"background"`
	Owner       string     `json:"owner"`
	Members     []UserView `json:"members"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
}

// BoardDetailView is the full board snapshot: lists in order, each with its
// tasks in order.
type BoardDetailView struct {
	BoardView
	Lists []ListWithTasksView `json:"lists"`
}

type ListWithTasksView struct {
	ListView
	Tasks []TaskView `json:"tasks"`
}

type ActivityView struct {
	ID          int64          `json:"id"`
	Actor       UserRef        `json:"actor"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId"`
	EntityTitle string         `json:"entityTitle"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

// UserRef is the short form used where a full profile is overkill.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func boardView(board store.Board, members []store.User) BoardView {
	views := make([]UserView, 0, len(members))
	for _, member := range members {
		views = append(views, userView(member))
	}
	return BoardView{
		ID:          board.ID,
		Title:       board.Title,
		Description: board.Description,
		Background:  board.Background,
		Owner:       board.OwnerID,
		Members:     views,
		CreatedAt:   board.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   board.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func activityView(activity store.Activity) ActivityView {
	return ActivityView{
		ID:          activity.ID,
		Actor:       UserRef{ID: activity.ActorID, Name: activity.ActorName},
		Action:      activity.Action,
		EntityType:  activity.EntityType,
		EntityID:    activity.EntityID,
		EntityTitle: activity.EntityTitle,
		Details:     activity.Details,
		CreatedAt:   activity.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// requireBoardAccess is the access gate for everything scoped to a board: the
// board must exist and the caller must be a member.
func (s *Service) requireBoardAccess(ctx context.Context, sess Session, boardID string) (store.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Board{}, notFoundError("Board not found")
		}
		return store.Board{}, err
	}
	member, err := s.store.IsBoardMember(ctx, boardID, sess.UserID)
	if err != nil {
		return store.Board{}, err
	}
	if !member {
		return store.Board{}, forbiddenError("You are not a member of this board")
	}
	return board, nil
}

func (s *Service) ListBoards(ctx context.Context, sess Session, searchText string, page, limit int) ([]BoardView, int, error) {
	offset := (page - 1) * limit
	boards, err := s.store.ListBoardsForUser(ctx, sess.UserID, searchText, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountBoardsForUser(ctx, sess.UserID, searchText)
	if err != nil {
		return nil, 0, err
	}

	views := make([]BoardView, 0, len(boards))
	for _, board := range boards {
		members, err := s.store.ListBoardMembers(ctx, board.ID)
		if err != nil {
			return nil, 0, err
		}
		views = append(views, boardView(board, members))
	}
	return views, total, nil
}

type CreateBoardInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Background  string `json:"background"`
}

func (s *Service) CreateBoard(ctx context.Context, sess Session, input CreateBoardInput) (BoardView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 100 {
		return BoardView{}, validationError("title must be between 1 and 100 characters")
	}
	if len(input.Description) > 500 {
		return BoardView{}, validationError("description must be at most 500 characters")
	}
	background := strings.TrimSpace(input.Background)
	if background == "" {
		background = "#0079bf"
	}

	board := store.Board{
		ID:          util.NewID("brd"),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Background:  background,
		OwnerID:     sess.UserID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.store.InsertBoard(ctx, board); err != nil {
		return BoardView{}, err
	}

	s.logActivity(ctx, sess, board.ID, "created", "board", board.ID, board.Title, nil)
	if s.search != nil {
		s.search.IndexBoard(search.BoardRecord{ID: board.ID, Title: board.Title, Description: board.Description})
	}

	members, err := s.store.ListBoardMembers(ctx, board.ID)
	if err != nil {
		return BoardView{}, err
	}
	return boardView(board, members), nil
}

func (s *Service) GetBoardDetail(ctx context.Context, sess Session, boardID string) (BoardDetailView, error) {
	board, err := s.requireBoardAccess(ctx, sess, boardID)
	if err != nil {
		return BoardDetailView{}, err
	}
	members, err := s.store.ListBoardMembers(ctx, boardID)
	if err != nil {
		return BoardDetailView{}, err
	}
	lists, err := s.store.ListLists(ctx, boardID)
	if err != nil {
		return BoardDetailView{}, err
	}
	tasks, err := s.store.ListTasksByBoard(ctx, boardID)
	if err != nil {
		return BoardDetailView{}, err
	}
	assignees, err := s.store.ListAssigneesByBoard(ctx, boardID)
	if err != nil {
		return BoardDetailView{}, err
	}

	tasksByList := make(map[string][]TaskView)
	for _, task := range tasks {
		tasksByList[task.ListID] = append(tasksByList[task.ListID], taskView(task, assignees[task.ID]))
	}

	detail := BoardDetailView{
		BoardView: boardView(board, members),
		Lists:     make([]ListWithTasksView, 0, len(lists)),
	}
	for _, list := range lists {
		entry := ListWithTasksView{ListView: listView(list), Tasks: tasksByList[list.ID]}
		if entry.Tasks == nil {
			entry.Tasks = []TaskView{}
		}
		detail.Lists = append(detail.Lists, entry)
	}
	return detail, nil
}

type UpdateBoardInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Background  *string `json:"background"`
}

func (s *Service) UpdateBoard(ctx context.Context, sess Session, boardID string, input UpdateBoardInput) (BoardView, error) {
	board, err := s.requireBoardAccess(ctx, sess, boardID)
	if err != nil {
		return BoardView{}, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > 100 {
			return BoardView{}, validationError("title must be between 1 and 100 characters")
		}
		board.Title = title
	}
	if input.Description != nil {
		if len(*input.Description) > 500 {
			return BoardView{}, validationError("description must be at most 500 characters")
		}
		board.Description = strings.TrimSpace(*input.Description)
	}
	if input.Background != nil {
		board.Background = strings.TrimSpace(*input.Background)
	}
	if err := s.store.UpdateBoard(ctx, boardID, board.Title, board.Description, board.Background); err != nil {
		return BoardView{}, err
	}
	board.UpdatedAt = time.Now()

	s.logActivity(ctx, sess, boardID, "updated", "board", boardID, board.Title, nil)
	if s.search != nil {
		s.search.IndexBoard(search.BoardRecord{ID: board.ID, Title: board.Title, Description: board.Description})
	}

	members, err := s.store.ListBoardMembers(ctx, boardID)
	if err != nil {
		return BoardView{}, err
	}
	view := boardView(board, members)
	s.publish(realtime.Event{Type: realtime.EventBoardUpdated, BoardID: boardID, Payload: view})
	return view, nil
}

// DeleteBoard removes the board and everything under it. Owner only.
func (s *Service) DeleteBoard(ctx context.Context, sess Session, boardID string) error {
	board, err := s.requireBoardAccess(ctx, sess, boardID)
	if err != nil {
		return err
	}
	if board.OwnerID != sess.UserID {
		return forbiddenError("Only the board owner can delete the board")
	}

	tasks, err := s.store.ListTasksByBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBoardCascade(ctx, boardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteBoard(boardID)
		for _, task := range tasks {
			s.search.DeleteTask(task.ID)
		}
	}
	return nil
}

type AddMemberInput struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

func (s *Service) AddBoardMember(ctx context.Context, sess Session, boardID string, input AddMemberInput) (BoardView, error) {
	board, err := s.requireBoardAccess(ctx, sess, boardID)
	if err != nil {
		return BoardView{}, err
	}

	var target store.User
	switch {
	case input.UserID != "":
		target, err = s.store.GetUserByID(ctx, input.UserID)
	case strings.TrimSpace(input.Email) != "":
		target, err = s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	default:
		return BoardView{}, validationError("userId or email is required")
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BoardView{}, notFoundError("User not found")
		}
		return BoardView{}, err
	}

	alreadyMember, err := s.store.IsBoardMember(ctx, boardID, target.ID)
	if err != nil {
		return BoardView{}, err
	}
	if alreadyMember {
		return BoardView{}, conflictError("User is already a member of this board")
	}
	if err := s.store.AddBoardMember(ctx, boardID, target.ID); err != nil {
		return BoardView{}, err
	}

	s.logActivity(ctx, sess, boardID, "assigned", "board", board.ID, board.Title, map[string]any{"memberAdded": target.ID})
	s.publish(realtime.Event{Type: realtime.EventMemberAdded, BoardID: boardID, Payload: userView(target)})
	s.sendBoardInvite(target, sess, board)

	members, err := s.store.ListBoardMembers(ctx, boardID)
	if err != nil {
		return BoardView{}, err
	}
	return boardView(board, members), nil
}

// RemoveBoardMember drops a member and strips them from every task assignment
// on the board. The owner cannot be removed.
func (s *Service) RemoveBoardMember(ctx context.Context, sess Session, boardID, userID string) (BoardView, error) {
	board, err := s.requireBoardAccess(ctx, sess, boardID)
	if err != nil {
		return BoardView{}, err
	}
	if board.OwnerID != sess.UserID && sess.UserID != userID {
		return BoardView{}, forbiddenError("Only the board owner can remove other members")
	}
	if userID == board.OwnerID {
		return BoardView{}, validationError("The board owner cannot be removed")
	}

	member, err := s.store.IsBoardMember(ctx, boardID, userID)
	if err != nil {
		return BoardView{}, err
	}
	if !member {
		return BoardView{}, notFoundError("User is not a member of this board")
	}

	if err := s.store.RemoveBoardMember(ctx, boardID, userID); err != nil {
		return BoardView{}, err
	}
	if err := s.store.RemoveAssigneeFromBoardTasks(ctx, boardID, userID); err != nil {
		return BoardView{}, err
	}

	s.logActivity(ctx, sess, boardID, "unassigned", "board", board.ID, board.Title, map[string]any{"memberRemoved": userID})
	s.publish(realtime.Event{Type: realtime.EventMemberRemoved, BoardID: boardID, Payload: map[string]any{"userId": userID}})

	members, err := s.store.ListBoardMembers(ctx, boardID)
	if err != nil {
		return BoardView{}, err
	}
	return boardView(board, members), nil
}

func (s *Service) ListActivities(ctx context.Context, sess Session, boardID, action string, page, limit int) ([]ActivityView, int, error) {
	if _, err := s.requireBoardAccess(ctx, sess, boardID); err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	activities, err := s.store.ListActivities(ctx, boardID, action, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountActivities(ctx, boardID, action)
	if err != nil {
		return nil, 0, err
	}
	views := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		views = append(views, activityView(activity))
	}
	return views, total, nil
}
