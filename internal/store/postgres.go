package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) InsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, avatar)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Avatar)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, avatar, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Avatar, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, avatar, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Avatar, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID, name, avatar string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name=$2, avatar=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, name, avatar)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal user ids: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, avatar, created_at, updated_at
		FROM users
		WHERE id IN (SELECT value FROM jsonb_array_elements_text($1::jsonb) AS t(value))
		ORDER BY name ASC
	`, encoded)
	if err != nil {
		return nil, fmt.Errorf("list users by ids: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Avatar, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// --- boards ---

func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert board: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO boards (id, title, description, background, owner_id)
		VALUES ($1, $2, $3, $4, $5)
	`, board.ID, board.Title, board.Description, board.Background, board.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert board: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id)
		VALUES ($1, $2)
	`, board.ID, board.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert board: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, background, owner_id, created_at, updated_at
		FROM boards
		WHERE id=$1
	`, boardID).Scan(&board.ID, &board.Title, &board.Description, &board.Background, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *PostgresStore) ListBoardsForUser(ctx context.Context, userID, search string, limit, offset int) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.description, b.background, b.owner_id, b.created_at, b.updated_at
		FROM boards b
		JOIN board_members bm ON bm.board_id = b.id
		WHERE bm.user_id=$1
		  AND ($2 = '' OR b.title ILIKE '%' || $2 || '%' OR b.description ILIKE '%' || $2 || '%')
		ORDER BY b.updated_at DESC
		LIMIT $3 OFFSET $4
	`, userID, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var board Board
		if err := rows.Scan(&board.ID, &board.Title, &board.Description, &board.Background, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, board)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountBoardsForUser(ctx context.Context, userID, search string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM boards b
		JOIN board_members bm ON bm.board_id = b.id
		WHERE bm.user_id=$1
		  AND ($2 = '' OR b.title ILIKE '%' || $2 || '%' OR b.description ILIKE '%' || $2 || '%')
	`, userID, search).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count boards: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) UpdateBoard(ctx context.Context, boardID, title, description, background string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE boards
		SET title=$2, description=$3, background=$4, updated_at=NOW()
		WHERE id=$1
	`, boardID, title, description, background)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return nil
}

// DeleteBoardCascade removes the board and everything under it in one
// transaction. Activities go too, the log does not outlive its board.
func (s *PostgresStore) DeleteBoardCascade(ctx context.Context, boardID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete board: %w", err)
	}
	statements := []string{
		`DELETE FROM task_assignees WHERE task_id IN (SELECT id FROM tasks WHERE board_id=$1)`,
		`DELETE FROM tasks WHERE board_id=$1`,
		`DELETE FROM lists WHERE board_id=$1`,
		`DELETE FROM activities WHERE board_id=$1`,
		`DELETE FROM board_members WHERE board_id=$1`,
		`DELETE FROM boards WHERE id=$1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, boardID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete board cascade: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete board: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsBoardMember(ctx context.Context, boardID, userID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM board_members WHERE board_id=$1 AND user_id=$2)
	`, boardID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check board member: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) ListBoardMembers(ctx context.Context, boardID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.password_hash, u.avatar, u.created_at, u.updated_at
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id=$1
		ORDER BY bm.added_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board members: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Avatar, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board member: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddBoardMember(ctx context.Context, boardID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (board_id, user_id) DO NOTHING
	`, boardID, userID)
	if err != nil {
		return fmt.Errorf("add board member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveBoardMember(ctx context.Context, boardID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM board_members WHERE board_id=$1 AND user_id=$2
	`, boardID, userID)
	if err != nil {
		return fmt.Errorf("remove board member: %w", err)
	}
	return nil
}

// RemoveAssigneeFromBoardTasks strips a user from every task assignment on
// the board. Used when a member is removed so tasks never point at outsiders.
func (s *PostgresStore) RemoveAssigneeFromBoardTasks(ctx context.Context, boardID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM task_assignees
		WHERE user_id=$2
		  AND task_id IN (SELECT id FROM tasks WHERE board_id=$1)
	`, boardID, userID)
	if err != nil {
		return fmt.Errorf("remove board assignee: %w", err)
	}
	return nil
}

// --- lists ---

func (s *PostgresStore) InsertList(ctx context.Context, list List) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (id, title, board_id, position)
		VALUES ($1, $2, $3, $4)
	`, list.ID, list.Title, list.BoardID, list.Position)
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetList(ctx context.Context, listID string) (List, error) {
	var list List
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, board_id, position, created_at, updated_at
		FROM lists
		WHERE id=$1
	`, listID).Scan(&list.ID, &list.Title, &list.BoardID, &list.Position, &list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return List{}, err
	}
	return list, nil
}

func (s *PostgresStore) ListLists(ctx context.Context, boardID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, board_id, position, created_at, updated_at
		FROM lists
		WHERE board_id=$1
		ORDER BY position ASC, created_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	items := make([]List, 0)
	for rows.Next() {
		var list List
		if err := rows.Scan(&list.ID, &list.Title, &list.BoardID, &list.Position, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) NextListPosition(ctx context.Context, boardID string) (int, error) {
	var position int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position)+1, 0) FROM lists WHERE board_id=$1
	`, boardID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("next list position: %w", err)
	}
	return position, nil
}

func (s *PostgresStore) UpdateList(ctx context.Context, listID, title string, position int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE lists
		SET title=$2, position=$3, updated_at=NOW()
		WHERE id=$1
	`, listID, title, position)
	if err != nil {
		return fmt.Errorf("update list: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetListPosition(ctx context.Context, listID string, position int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE lists SET position=$2, updated_at=NOW() WHERE id=$1
	`, listID, position)
	if err != nil {
		return fmt.Errorf("set list position: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteListCascade(ctx context.Context, listID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete list: %w", err)
	}
	statements := []string{
		`DELETE FROM task_assignees WHERE task_id IN (SELECT id FROM tasks WHERE list_id=$1)`,
		`DELETE FROM tasks WHERE list_id=$1`,
		`DELETE FROM lists WHERE id=$1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, listID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete list cascade: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete list: %w", err)
	}
	return nil
}

// --- tasks ---

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	labels := task.Labels
	if labels == nil {
		labels = []string{}
	}
	encoded, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal task labels: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, list_id, board_id, position, priority, due_date, labels)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
	`, task.ID, task.Title, task.Description, task.ListID, task.BoardID, task.Position, task.Priority, task.DueDate, encoded)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

const taskColumns = `id, title, description, list_id, board_id, position, priority, due_date, labels, created_at, updated_at`

func scanTask(row interface {
	Scan(dest ...any) error
}) (Task, error) {
	var task Task
	var labelsRaw []byte
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.ListID,
		&task.BoardID,
		&task.Position,
		&task.Priority,
		&task.DueDate,
		&labelsRaw,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	_ = json.Unmarshal(labelsRaw, &task.Labels)
	return task, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID)
	return scanTask(row)
}

func (s *PostgresStore) ListTasksByBoard(ctx context.Context, boardID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE board_id=$1
		ORDER BY position ASC, created_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListTasksByList(ctx context.Context, listID, search string, limit, offset int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE list_id=$1
		  AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		ORDER BY position ASC, created_at ASC
		LIMIT $3 OFFSET $4
	`, listID, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountTasksByList(ctx context.Context, listID, search string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE list_id=$1
		  AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
	`, listID, search).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) NextTaskPosition(ctx context.Context, listID string) (int, error) {
	var position int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position)+1, 0) FROM tasks WHERE list_id=$1
	`, listID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("next task position: %w", err)
	}
	return position, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) error {
	labels := task.Labels
	if labels == nil {
		labels = []string{}
	}
	encoded, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal task labels: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, position=$4, priority=$5, due_date=$6, labels=$7::jsonb, updated_at=NOW()
		WHERE id=$1
	`, task.ID, task.Title, task.Description, task.Position, task.Priority, task.DueDate, encoded)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *PostgresStore) MoveTask(ctx context.Context, taskID, listID string, position int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET list_id=$2, position=$3, updated_at=NOW()
		WHERE id=$1
	`, taskID, listID, position)
	if err != nil {
		return fmt.Errorf("move task: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete task: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=$1`, taskID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete task assignees: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete task: %w", err)
	}
	return nil
}

// --- assignees ---

func (s *PostgresStore) ListTaskAssignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM task_assignees WHERE task_id=$1 ORDER BY assigned_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task assignees: %w", err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan task assignee: %w", err)
		}
		items = append(items, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task assignees: %w", err)
	}
	return items, nil
}

// ListAssigneesByBoard returns task id to assignee ids for a whole board, so
// the board snapshot does not query per task.
func (s *PostgresStore) ListAssigneesByBoard(ctx context.Context, boardID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ta.task_id, ta.user_id
		FROM task_assignees ta
		JOIN tasks t ON t.id = ta.task_id
		WHERE t.board_id=$1
		ORDER BY ta.assigned_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board assignees: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]string)
	for rows.Next() {
		var taskID, userID string
		if err := rows.Scan(&taskID, &userID); err != nil {
			return nil, fmt.Errorf("scan board assignee: %w", err)
		}
		items[taskID] = append(items[taskID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board assignees: %w", err)
	}
	return items, nil
}

// AddTaskAssignee reports whether a new assignment row was created. False
// means the user was already assigned.
func (s *PostgresStore) AddTaskAssignee(ctx context.Context, taskID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO task_assignees (task_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, user_id) DO NOTHING
	`, taskID, userID)
	if err != nil {
		return false, fmt.Errorf("add task assignee: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add task assignee rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RemoveTaskAssignee(ctx context.Context, taskID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM task_assignees WHERE task_id=$1 AND user_id=$2
	`, taskID, userID)
	if err != nil {
		return fmt.Errorf("remove task assignee: %w", err)
	}
	return nil
}

// --- activities ---

func (s *PostgresStore) InsertActivity(ctx context.Context, activity Activity) error {
	details := activity.Details
	if details == nil {
		details = map[string]any{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities (actor_id, actor_name, board_id, action, entity_type, entity_id, entity_title, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`, activity.ActorID, activity.ActorName, activity.BoardID, activity.Action, activity.EntityType, activity.EntityID, activity.EntityTitle, encoded)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, boardID, action string, limit, offset int) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_name, board_id, action, entity_type, entity_id, entity_title, details, created_at
		FROM activities
		WHERE board_id=$1
		  AND ($2 = '' OR action=$2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`, boardID, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var item Activity
		var detailsRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.ActorID,
			&item.ActorName,
			&item.BoardID,
			&item.Action,
			&item.EntityType,
			&item.EntityID,
			&item.EntityTitle,
			&detailsRaw,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		_ = json.Unmarshal(detailsRaw, &item.Details)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountActivities(ctx context.Context, boardID, action string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM activities WHERE board_id=$1 AND ($2 = '' OR action=$2)
	`, boardID, action).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return total, nil
}
