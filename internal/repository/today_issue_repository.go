package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dayplanner/internal/model"
)

// TodayIssueRepo keeps each user's ordered list of Jira issues for today.
type TodayIssueRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewTodayIssueRepo returns a TodayIssueRepo bound to db.
func NewTodayIssueRepo(db *sql.DB) *TodayIssueRepo {
	return &TodayIssueRepo{db: db, now: time.Now}
}

const todayIssueColumns = "id, user_id, issue_key, order_index, notes, created_at, updated_at"

// List returns the user's issues in list order.
func (r *TodayIssueRepo) List(ctx context.Context, userID string) ([]model.TodayIssue, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+todayIssueColumns+" FROM today_issues WHERE user_id = ? ORDER BY order_index ASC, created_at ASC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TodayIssue{}
	for rows.Next() {
		ti, err := scanTodayIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ti)
	}
	return out, rows.Err()
}

// Get fetches one issue of the list.
func (r *TodayIssueRepo) Get(ctx context.Context, userID, issueKey string) (*model.TodayIssue, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+todayIssueColumns+" FROM today_issues WHERE user_id = ? AND issue_key = ?",
		userID, issueKey)
	ti, err := scanTodayIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTodayIssueNotFound
	}
	return ti, err
}

// Add appends issueKey to the end of the list.  An issue already on the
// list keeps its position; only notes are replaced, and a nil notes
// leaves them as they are.
func (r *TodayIssueRepo) Add(ctx context.Context, userID, issueKey string, notes *string) (*model.TodayIssue, error) {
	now := toMs(r.now())
	update := func() (int64, error) {
		res, err := r.db.ExecContext(ctx,
			"UPDATE today_issues SET notes = COALESCE(?, notes), updated_at = ? WHERE user_id = ? AND issue_key = ?",
			nullString(notes), now, userID, issueKey)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	n, err := update()
	if err != nil {
		return nil, fmt.Errorf("update today issue: %w", err)
	}
	if n == 0 {
		var maxIndex int
		err = r.db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(order_index), 0) FROM today_issues WHERE user_id = ?", userID).Scan(&maxIndex)
		if err != nil {
			return nil, fmt.Errorf("read max order: %w", err)
		}
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO today_issues ("+todayIssueColumns+") VALUES (?,?,?,?,?,?,?)",
			uuid.NewString(), userID, issueKey, maxIndex+1, nullString(notes), now, now)
		if isDuplicate(err) {
			// added concurrently; fall back to the notes update
			_, err = update()
		}
		if err != nil {
			return nil, fmt.Errorf("insert today issue: %w", err)
		}
	}
	return r.Get(ctx, userID, issueKey)
}

// Remove takes issueKey off the list.  The other issues keep their
// indexes.
func (r *TodayIssueRepo) Remove(ctx context.Context, userID, issueKey string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM today_issues WHERE user_id = ? AND issue_key = ?", userID, issueKey)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTodayIssueNotFound
	}
	return nil
}

// Reorder sets order_index to the 1-based position of each key in order.
// It runs in one transaction: when any key is not on the list nothing
// changes and ErrTodayIssueNotFound is returned.  Issues missing from
// order keep their index.
func (r *TodayIssueRepo) Reorder(ctx context.Context, userID string, order []string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE today_issues SET order_index = ?, updated_at = ? WHERE user_id = ? AND issue_key = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := toMs(r.now())
	for i, key := range order {
		res, err := stmt.ExecContext(ctx, i+1, now, userID, key)
		if err != nil {
			return fmt.Errorf("reorder %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("reorder %s: %w", key, ErrTodayIssueNotFound)
		}
	}
	return tx.Commit()
}

func scanTodayIssue(s rowScanner) (*model.TodayIssue, error) {
	var ti model.TodayIssue
	var notes sql.NullString
	var created, updated int64
	if err := s.Scan(&ti.ID, &ti.UserID, &ti.IssueKey, &ti.OrderIndex, &notes, &created, &updated); err != nil {
		return nil, err
	}
	ti.Notes = stringPtr(notes)
	ti.CreatedAt, ti.UpdatedAt = fromMs(created), fromMs(updated)
	return &ti, nil
}
