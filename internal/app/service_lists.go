package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"taskflow/api/internal/realtime"
	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

type ListView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Board     string `json:"board"`
	Position  int    `json:"position"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func listView(list store.List) ListView {
	return ListView{
		ID:        list.ID,
		Title:     list.Title,
		Board:     list.BoardID,
		Position:  list.Position,
		CreatedAt: list.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: list.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// requireListAccess resolves a list and gates on its board's membership.
func (s *Service) requireListAccess(ctx context.Context, sess Session, listID string) (store.List, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.List{}, notFoundError("List not found")
		}
		return store.List{}, err
	}
	if _, err := s.requireBoardAccess(ctx, sess, list.BoardID); err != nil {
		return store.List{}, err
	}
	return list, nil
}

func (s *Service) ListLists(ctx context.Context, sess Session, boardID string) ([]ListView, error) {
	if _, err := s.requireBoardAccess(ctx, sess, boardID); err != nil {
		return nil, err
	}
	lists, err := s.store.ListLists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	views := make([]ListView, 0, len(lists))
	for _, list := range lists {
		views = append(views, listView(list))
	}
	return views, nil
}

type CreateListInput struct {
	Title   string `json:"title"`
	BoardID string `json:"boardId"`
}

// CreateList appends a list at the end of the board: position is one past the
// current maximum, or 0 on an empty board.
func (s *Service) CreateList(ctx context.Context, sess Session, input CreateListInput) (ListView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 100 {
		return ListView{}, validationError("title must be between 1 and 100 characters")
	}
	if input.BoardID == "" {
		return ListView{}, validationError("boardId is required")
	}
	if _, err := s.requireBoardAccess(ctx, sess, input.BoardID); err != nil {
		return ListView{}, err
	}

	position, err := s.store.NextListPosition(ctx, input.BoardID)
	if err != nil {
		return ListView{}, err
	}
	list := store.List{
		ID:        util.NewID("lst"),
		Title:     title,
		BoardID:   input.BoardID,
		Position:  position,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.store.InsertList(ctx, list); err != nil {
		return ListView{}, err
	}

	s.logActivity(ctx, sess, list.BoardID, "created", "list", list.ID, list.Title, nil)
	view := listView(list)
	s.publish(realtime.Event{Type: realtime.EventListCreated, BoardID: list.BoardID, Payload: view})
	return view, nil
}

type UpdateListInput struct {
	Title    *string `json:"title"`
	Position *int    `json:"position"`
}

func (s *Service) UpdateList(ctx context.Context, sess Session, listID string, input UpdateListInput) (ListView, error) {
	list, err := s.requireListAccess(ctx, sess, listID)
	if err != nil {
		return ListView{}, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > 100 {
			return ListView{}, validationError("title must be between 1 and 100 characters")
		}
		list.Title = title
	}
	if input.Position != nil {
		if *input.Position < 0 {
			return ListView{}, validationError("position must not be negative")
		}
		list.Position = *input.Position
	}
	if err := s.store.UpdateList(ctx, listID, list.Title, list.Position); err != nil {
		return ListView{}, err
	}
	list.UpdatedAt = time.Now()

	s.logActivity(ctx, sess, list.BoardID, "updated", "list", list.ID, list.Title, nil)
	view := listView(list)
	s.publish(realtime.Event{Type: realtime.EventListUpdated, BoardID: list.BoardID, Payload: view})
	return view, nil
}

// DeleteList removes the list and its tasks in one transaction.
func (s *Service) DeleteList(ctx context.Context, sess Session, listID string) error {
	list, err := s.requireListAccess(ctx, sess, listID)
	if err != nil {
		return err
	}

	tasks, err := s.store.ListTasksByList(ctx, listID, "", 10000, 0)
	if err != nil {
		return err
	}
	if err := s.store.DeleteListCascade(ctx, listID); err != nil {
		return err
	}
	if s.search != nil {
		for _, task := range tasks {
			s.search.DeleteTask(task.ID)
		}
	}

	s.logActivity(ctx, sess, list.BoardID, "deleted", "list", list.ID, list.Title, nil)
	s.publish(realtime.Event{Type: realtime.EventListDeleted, BoardID: list.BoardID, Payload: map[string]any{"id": list.ID}})
	return nil
}

type ReorderListsInput struct {
	BoardID string `json:"boardId"`
	// ListIDs is the short form: each id gets its index as position.
	ListIDs []string `json:"listIds"`
	Lists   []struct {
		ID       string `json:"id"`
		Position int    `json:"position"`
	} `json:"lists"`
}

func (input ReorderListsInput) entries() []listPosition {
	entries := make([]listPosition, 0, len(input.ListIDs)+len(input.Lists))
	for i, id := range input.ListIDs {
		entries = append(entries, listPosition{ID: id, Position: i})
	}
	for _, entry := range input.Lists {
		entries = append(entries, listPosition(entry))
	}
	return entries
}

type listPosition struct {
	ID       string
	Position int
}

// ReorderLists writes the given position for each list. Concurrent reorders
// are last-write-wins per list; the board view sorts by position with
// creation time as tiebreaker, so duplicates render stably.
func (s *Service) ReorderLists(ctx context.Context, sess Session, input ReorderListsInput) ([]ListView, error) {
	if input.BoardID == "" {
		return nil, validationError("boardId is required")
	}
	entries := input.entries()
	if len(entries) == 0 {
		return nil, validationError("lists must not be empty")
	}
	if _, err := s.requireBoardAccess(ctx, sess, input.BoardID); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Position < 0 {
			return nil, validationError("position must not be negative")
		}
		list, err := s.store.GetList(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFoundError("List not found")
			}
			return nil, err
		}
		if list.BoardID != input.BoardID {
			return nil, validationError("list does not belong to this board")
		}
		if err := s.store.SetListPosition(ctx, entry.ID, entry.Position); err != nil {
			return nil, err
		}
	}

	lists, err := s.store.ListLists(ctx, input.BoardID)
	if err != nil {
		return nil, err
	}
	views := make([]ListView, 0, len(lists))
	for _, list := range lists {
		views = append(views, listView(list))
	}
	// One event for the whole reorder, not one per list.
	s.publish(realtime.Event{Type: realtime.EventBoardUpdated, BoardID: input.BoardID, Payload: map[string]any{"lists": views}})
	return views, nil
}
