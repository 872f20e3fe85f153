package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studyroom/backend/internal/model"
)

type RoomRepository struct {
	db *sql.DB
}

func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// FocusCompletion describes one finished focus phase for a room.
type FocusCompletion struct {
	RoomID          string
	UserIDs         []string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	TaskRef         *model.TaskRef
}

type FocusCompletionResult struct {
	CreditedUserIDs []string
	TotalCycles     int
}

// PartialFocus describes a focus phase that was stopped by hand.
type PartialFocus struct {
	RoomID          string
	UserIDs         []string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	TaskRef         *model.TaskRef
}

func (r *RoomRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// CreateRoom inserts the room row and the host's membership history entry
// atomically. It returns ErrAlreadyExists when the id is taken.
func (r *RoomRepository) CreateRoom(ctx context.Context, room *model.Room) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var secret interface{}
	if room.Secret != nil {
		secret = *room.Secret
	}
	var hostUserID interface{}
	if room.HostUserID != nil {
		hostUserID = *room.HostUserID
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO study_rooms (
			id, host_user_id, name, secret, focus_minutes, short_break_minutes,
			long_break_minutes, total_focus_cycles, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID,
		hostUserID,
		room.Name,
		secret,
		room.FocusMinutes,
		room.ShortBreakMinutes,
		room.LongBreakMinutes,
		room.TotalFocusCycles,
		formatTime(room.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert room: %w", err)
	}

	if room.HostUserID != nil {
		if err := touchHistoryTx(ctx, tx, *room.HostUserID, room.ID, room.CreatedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create room: %w", err)
	}
	return nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, host_user_id, name, secret, current_task_kind, current_task_id,
		        focus_minutes, short_break_minutes, long_break_minutes,
		        total_focus_cycles, created_at, updated_at
		 FROM study_rooms WHERE id = ?`,
		roomID,
	)
	return scanRoom(row)
}

// DeleteRoom removes the room and, through cascades, its task pointers and
// membership history. Deleting a missing room is not an error.
func (r *RoomRepository) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM study_rooms WHERE id = ?`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (r *RoomRepository) TouchHistory(ctx context.Context, userID, roomID string, at time.Time) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := touchHistoryTx(ctx, tx, userID, roomID, at); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

func (r *RoomRepository) SetHost(ctx context.Context, roomID, userID string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE study_rooms SET host_user_id = ?, updated_at = ? WHERE id = ?`,
		userID,
		formatTime(now),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("set host: %w", err)
	}
	return expectOneRow(res)
}

// SetCurrentTask stores the task pointer on the room and appends it to the
// room's task list.
func (r *RoomRepository) SetCurrentTask(ctx context.Context, roomID string, ref model.TaskRef, addedBy string) error {
	now := time.Now().UTC()
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE study_rooms SET current_task_kind = ?, current_task_id = ?, updated_at = ? WHERE id = ?`,
		string(ref.Kind),
		ref.ID,
		formatTime(now),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("set current task: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	var addedByValue interface{}
	if addedBy != "" {
		addedByValue = addedBy
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO study_room_tasks (room_id, task_kind, task_id, added_by_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		roomID,
		string(ref.Kind),
		ref.ID,
		addedByValue,
		formatTime(now),
	); err != nil {
		return fmt.Errorf("insert room task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit current task: %w", err)
	}
	return nil
}

func (r *RoomRepository) UpdateSettings(ctx context.Context, roomID string, settings model.Settings) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE study_rooms
		 SET focus_minutes = ?,
		     short_break_minutes = ?,
		     long_break_minutes = ?,
		     updated_at = ?
		 WHERE id = ?`,
		settings.Focus,
		settings.ShortBreak,
		settings.LongBreak,
		formatTime(now),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return expectOneRow(res)
}

// RecordFocusCompletion credits one reward unit and writes one completed
// focus session per resolvable user, then bumps the room's cycle counter.
// A room that no longer exists still gets its sessions recorded; only the
// counter update is skipped.
func (r *RoomRepository) RecordFocusCompletion(ctx context.Context, in FocusCompletion) (*FocusCompletionResult, error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	userIDs, err := existingUserIDsTx(ctx, tx, in.UserIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE users SET tomatoes = tomatoes + 1, updated_at = ? WHERE id = ?`,
			formatTime(now),
			userID,
		); err != nil {
			return nil, fmt.Errorf("credit reward: %w", err)
		}

		session := model.FocusSession{
			ID:              uuid.NewString(),
			UserID:          userID,
			RoomID:          in.RoomID,
			StartTime:       in.StartTime,
			EndTime:         in.EndTime,
			DurationMinutes: in.DurationMinutes,
			Type:            model.SessionTypeFocus,
			Status:          model.SessionStatusCompleted,
			TaskRef:         in.TaskRef,
			CreatedAt:       now,
		}
		if err := insertFocusSessionTx(ctx, tx, &session); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE study_rooms SET total_focus_cycles = total_focus_cycles + 1, updated_at = ? WHERE id = ?`,
		formatTime(now),
		in.RoomID,
	); err != nil {
		return nil, fmt.Errorf("increment cycles: %w", err)
	}

	var total int
	err = tx.QueryRowContext(ctx, `SELECT total_focus_cycles FROM study_rooms WHERE id = ?`, in.RoomID).Scan(&total)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read cycles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit focus completion: %w", err)
	}

	return &FocusCompletionResult{CreditedUserIDs: userIDs, TotalCycles: total}, nil
}

// RecordPartialFocus writes one interrupted focus session per resolvable
// user and returns the users that were recorded.
func (r *RoomRepository) RecordPartialFocus(ctx context.Context, in PartialFocus) ([]string, error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	userIDs, err := existingUserIDsTx(ctx, tx, in.UserIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, userID := range userIDs {
		session := model.FocusSession{
			ID:              uuid.NewString(),
			UserID:          userID,
			RoomID:          in.RoomID,
			StartTime:       in.StartTime,
			EndTime:         in.EndTime,
			DurationMinutes: in.DurationMinutes,
			Type:            model.SessionTypeFocus,
			Status:          model.SessionStatusInterrupted,
			TaskRef:         in.TaskRef,
			CreatedAt:       now,
		}
		if err := insertFocusSessionTx(ctx, tx, &session); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit partial focus: %w", err)
	}
	return userIDs, nil
}

func (r *RoomRepository) ListHistory(ctx context.Context, userID string, limit int) ([]model.RoomHistoryEntry, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT h.user_id, h.room_id, r.name, h.last_joined_at
		 FROM room_history h
		 JOIN study_rooms r ON r.id = h.room_id
		 WHERE h.user_id = ?
		 ORDER BY h.last_joined_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := make([]model.RoomHistoryEntry, 0, limit)
	for rows.Next() {
		var entry model.RoomHistoryEntry
		var lastJoinedAt string
		if err := rows.Scan(&entry.UserID, &entry.RoomID, &entry.RoomName, &lastJoinedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		parsed, err := parseTime(lastJoinedAt)
		if err != nil {
			return nil, fmt.Errorf("parse history last_joined_at: %w", err)
		}
		entry.LastJoinedAt = parsed
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func (r *RoomRepository) ListFocusSessions(ctx context.Context, userID string, limit int) ([]model.FocusSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, room_id, start_time, end_time, duration_minutes,
		        type, status, task_kind, task_id, created_at
		 FROM focus_sessions
		 WHERE user_id = ?
		 ORDER BY start_time DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list focus sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.FocusSession, 0, limit)
	for rows.Next() {
		session, scanErr := scanFocusSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate focus sessions: %w", err)
	}
	return sessions, nil
}

func touchHistoryTx(ctx context.Context, tx *sql.Tx, userID, roomID string, at time.Time) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO room_history (user_id, room_id, last_joined_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, room_id) DO UPDATE SET last_joined_at = excluded.last_joined_at`,
		userID,
		roomID,
		formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("touch history: %w", err)
	}
	return nil
}

func insertFocusSessionTx(ctx context.Context, tx *sql.Tx, session *model.FocusSession) error {
	var taskKind, taskID interface{}
	if session.TaskRef != nil {
		taskKind = string(session.TaskRef.Kind)
		taskID = session.TaskRef.ID
	}
	var roomID interface{}
	if session.RoomID != "" {
		roomID = session.RoomID
	}

	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO focus_sessions (
			id, user_id, room_id, start_time, end_time, duration_minutes,
			type, status, task_kind, task_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		roomID,
		formatTime(session.StartTime),
		formatTime(session.EndTime),
		session.DurationMinutes,
		session.Type,
		session.Status,
		taskKind,
		taskID,
		formatTime(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert focus session: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRoom(s scanner) (*model.Room, error) {
	room := model.Room{}
	var hostUserID sql.NullString
	var secret sql.NullString
	var taskKind sql.NullString
	var taskID sql.NullInt64
	var createdAt string
	var updatedAt sql.NullString
	err := s.Scan(
		&room.ID,
		&hostUserID,
		&room.Name,
		&secret,
		&taskKind,
		&taskID,
		&room.FocusMinutes,
		&room.ShortBreakMinutes,
		&room.LongBreakMinutes,
		&room.TotalFocusCycles,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}

	if hostUserID.Valid {
		value := hostUserID.String
		room.HostUserID = &value
	}
	if secret.Valid {
		value := secret.String
		room.Secret = &value
	}
	if taskKind.Valid && taskID.Valid {
		room.CurrentTask = &model.TaskRef{Kind: model.TaskKind(taskKind.String), ID: taskID.Int64}
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse room created_at: %w", err)
	}
	room.CreatedAt = parsedCreatedAt

	if room.UpdatedAt, err = parseNullTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse room updated_at: %w", err)
	}
	return &room, nil
}

func scanFocusSession(s scanner) (*model.FocusSession, error) {
	session := model.FocusSession{}
	var roomID sql.NullString
	var startTime, endTime, createdAt string
	var taskKind sql.NullString
	var taskID sql.NullInt64
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&roomID,
		&startTime,
		&endTime,
		&session.DurationMinutes,
		&session.Type,
		&session.Status,
		&taskKind,
		&taskID,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan focus session: %w", err)
	}

	session.RoomID = roomID.String
	if taskKind.Valid && taskID.Valid {
		session.TaskRef = &model.TaskRef{Kind: model.TaskKind(taskKind.String), ID: taskID.Int64}
	}

	if session.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("parse session start_time: %w", err)
	}
	if session.EndTime, err = parseTime(endTime); err != nil {
		return nil, fmt.Errorf("parse session end_time: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	return &session, nil
}
