package repository

import (
	"context"
	"database/sql"
	"fmt"

	"studyroom/backend/internal/model"
)

// TaskRepository reads the personal task and workspace card tables that the
// study rooms point at. It owns none of them.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ResolveTaskDisplay returns the title of the referenced task and, for a
// workspace card, its checklist items ordered by checklist then item position.
func (r *TaskRepository) ResolveTaskDisplay(ctx context.Context, ref model.TaskRef) (*model.TaskDisplay, error) {
	display := &model.TaskDisplay{Ref: ref, Subtasks: []model.Subtask{}}

	switch ref.Kind {
	case model.TaskKindPersonal:
		err := r.db.QueryRowContext(ctx, `SELECT title FROM tasks WHERE id = ?`, ref.ID).Scan(&display.Title)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get task: %w", err)
		}
		return display, nil

	case model.TaskKindCard:
		err := r.db.QueryRowContext(ctx, `SELECT title FROM board_cards WHERE id = ?`, ref.ID).Scan(&display.Title)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get card: %w", err)
		}

		rows, err := r.db.QueryContext(
			ctx,
			`SELECT i.id, i.title, i.is_checked, c.title
			 FROM checklist_items i
			 JOIN card_checklists c ON c.id = i.checklist_id
			 WHERE c.card_id = ?
			 ORDER BY c.position, c.id, i.position, i.id`,
			ref.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("list checklist items: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var item model.Subtask
			if err := rows.Scan(&item.ID, &item.Title, &item.Checked, &item.ChecklistTitle); err != nil {
				return nil, fmt.Errorf("scan checklist item: %w", err)
			}
			display.Subtasks = append(display.Subtasks, item)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate checklist items: %w", err)
		}
		return display, nil
	}

	return nil, ErrNotFound
}

func (r *TaskRepository) SetSubtaskChecked(ctx context.Context, subtaskID int64, checked bool) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE checklist_items SET is_checked = ? WHERE id = ?`,
		checked,
		subtaskID,
	)
	if err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	return expectOneRow(res)
}
