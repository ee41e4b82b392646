package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dayplanner/internal/model"
)

// ScheduleRepo persists locally owned schedule blocks together with the
// outcome of their last mirror attempt.
type ScheduleRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewScheduleRepo returns a ScheduleRepo bound to db.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db, now: time.Now} }

const blockColumns = "id, user_id, title, start_at, end_at, source_type, source_id, provider, provider_event_id, mirror_state, mirror_error, created_at, updated_at"

// Create inserts b, assigning its ID and timestamps.
func (r *ScheduleRepo) Create(ctx context.Context, b *model.ScheduleBlock) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.SourceType == "" {
		b.SourceType = model.SourceCustom
	}
	if b.Mirror.State == "" {
		b.Mirror = model.NotRequested()
	}
	now := r.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO schedule_blocks ("+blockColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		b.ID, b.UserID, b.Title, toMs(b.Start), toMs(b.End), b.SourceType, nullString(b.SourceID),
		providerArg(b.Provider), nullString(b.ProviderEventID), string(b.Mirror.State),
		sql.NullString{String: b.Mirror.Reason, Valid: b.Mirror.Reason != ""}, toMs(now), toMs(now))
	return err
}

// Get returns the block id owned by userID.
func (r *ScheduleRepo) Get(ctx context.Context, userID, id string) (*model.ScheduleBlock, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+blockColumns+" FROM schedule_blocks WHERE id = ? AND user_id = ? LIMIT 1", id, userID)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlockNotFound
	}
	return b, err
}

// ListBetween returns the user's blocks overlapping [from, to], ordered by start.
func (r *ScheduleRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]model.ScheduleBlock, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+blockColumns+" FROM schedule_blocks WHERE user_id = ? AND start_at <= ? AND end_at >= ? ORDER BY start_at ASC",
		userID, toMs(to), toMs(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ScheduleBlock{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of p and returns the updated row.
func (r *ScheduleRepo) Update(ctx context.Context, userID, id string, p model.ScheduleBlockPatch) (*model.ScheduleBlock, error) {
	sets := []string{"updated_at = ?"}
	args := []any{toMs(r.now())}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Start != nil {
		sets = append(sets, "start_at = ?")
		args = append(args, toMs(*p.Start))
	}
	if p.End != nil {
		sets = append(sets, "end_at = ?")
		args = append(args, toMs(*p.End))
	}
	args = append(args, id, userID)
	res, err := r.db.ExecContext(ctx,
		"UPDATE schedule_blocks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrBlockNotFound
	}
	return r.Get(ctx, userID, id)
}

// SetMirror records the outcome of a mirror attempt.  A Mirrored result
// links the block to provider/remote id.  A failed result keeps whatever
// link already exists so later updates can still reach the remote event.
func (r *ScheduleRepo) SetMirror(ctx context.Context, id string, provider model.Provider, res model.MirrorResult) error {
	var err error
	switch res.State {
	case model.MirrorMirrored:
		_, err = r.db.ExecContext(ctx,
			`UPDATE schedule_blocks SET provider = ?, provider_event_id = ?, mirror_state = ?, mirror_error = NULL, updated_at = ? WHERE id = ?`,
			string(provider), res.RemoteID, string(res.State), toMs(r.now()), id)
	default:
		_, err = r.db.ExecContext(ctx,
			`UPDATE schedule_blocks SET mirror_state = ?, mirror_error = ?, updated_at = ? WHERE id = ?`,
			string(res.State), sql.NullString{String: res.Reason, Valid: res.Reason != ""}, toMs(r.now()), id)
	}
	return err
}

// Delete removes the block.  It returns ErrBlockNotFound when nothing matched.
func (r *ScheduleRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM schedule_blocks WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func providerArg(p *model.Provider) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

func scanBlock(s rowScanner) (*model.ScheduleBlock, error) {
	var b model.ScheduleBlock
	var start, end, created, updated int64
	var sourceID, provider, eventID, mirrorErr sql.NullString
	var mirrorState string
	if err := s.Scan(&b.ID, &b.UserID, &b.Title, &start, &end, &b.SourceType, &sourceID,
		&provider, &eventID, &mirrorState, &mirrorErr, &created, &updated); err != nil {
		return nil, err
	}
	b.Start, b.End = fromMs(start), fromMs(end)
	b.SourceID = stringPtr(sourceID)
	if provider.Valid {
		p := model.Provider(provider.String)
		b.Provider = &p
	}
	b.ProviderEventID = stringPtr(eventID)
	b.Mirror = model.MirrorResult{State: model.MirrorState(mirrorState), Reason: mirrorErr.String}
	if b.ProviderEventID != nil {
		b.Mirror.RemoteID = *b.ProviderEventID
	}
	b.CreatedAt, b.UpdatedAt = fromMs(created), fromMs(updated)
	return &b, nil
}
