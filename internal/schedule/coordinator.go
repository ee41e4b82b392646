// Package schedule owns locally created schedule blocks and keeps their
// optional copies on an external calendar in step.
//
// The local row is authoritative.  A failed remote write never fails the
// local operation; the outcome is recorded on the block as a MirrorResult
// and reported as a MirrorFailedEvent.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/dayplanner/internal/calendar"
	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/queue"
)

// Store is the persistence the coordinator writes through.
type Store interface {
	Create(ctx context.Context, b *model.ScheduleBlock) error
	Get(ctx context.Context, userID, id string) (*model.ScheduleBlock, error)
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]model.ScheduleBlock, error)
	Update(ctx context.Context, userID, id string, p model.ScheduleBlockPatch) (*model.ScheduleBlock, error)
	SetMirror(ctx context.Context, id string, provider model.Provider, res model.MirrorResult) error
	Delete(ctx context.Context, userID, id string) error
}

// Publisher receives drift events.  It may be nil.
type Publisher interface {
	PublishMirrorFailed(ctx context.Context, ev queue.MirrorFailedEvent) error
}

// ErrUnsupportedMirror is the failure reason for providers without a
// calendar adapter.
var ErrUnsupportedMirror = errors.New("provider has no calendar")

// Coordinator implements create/update/delete of schedule blocks with
// best-effort mirroring.
type Coordinator struct {
	store     Store
	calendars calendar.Registry
	events    Publisher
	now       func() time.Time

	// publishTimeout bounds the background publish of a drift event.
	publishTimeout time.Duration
}

// NewCoordinator wires a Coordinator.  events may be nil.
func NewCoordinator(store Store, calendars calendar.Registry, events Publisher) *Coordinator {
	return &Coordinator{
		store:          store,
		calendars:      calendars,
		events:         events,
		now:            time.Now,
		publishTimeout: 10 * time.Second,
	}
}

// CreateInput describes a new block.  MirrorTo asks for a remote copy.
type CreateInput struct {
	Title      string
	Start      time.Time
	End        time.Time
	SourceType string
	SourceID   *string
	MirrorTo   *model.Provider
}

// Create stores the block and, when requested, creates the remote copy.
// A failed remote create leaves the block unlinked with a failed mirror.
func (c *Coordinator) Create(ctx context.Context, userID string, in CreateInput) (*model.ScheduleBlock, error) {
	b := &model.ScheduleBlock{
		UserID:     userID,
		Title:      in.Title,
		Start:      in.Start.UTC(),
		End:        in.End.UTC(),
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
	}
	if err := c.store.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	if in.MirrorTo == nil {
		return b, nil
	}

	provider := *in.MirrorTo
	var res model.MirrorResult
	if a, ok := c.calendars[provider]; !ok {
		res = model.MirrorFailedWith(ErrUnsupportedMirror.Error())
	} else if remoteID, err := a.Create(ctx, userID, b.Title, b.Start, b.End); err != nil {
		res = model.MirrorFailedWith(err.Error())
	} else {
		res = model.Mirrored(remoteID)
	}
	c.record(ctx, b, provider, queue.OpCreate, res)
	return b, nil
}

// Update applies p locally and forwards the same fields to the remote
// copy when the block is linked.  Unspecified fields are left alone on
// both sides.
func (c *Coordinator) Update(ctx context.Context, userID, id string, p model.ScheduleBlockPatch) (*model.ScheduleBlock, error) {
	b, err := c.store.Update(ctx, userID, id, p)
	if err != nil {
		return nil, err
	}
	patch := calendar.EventPatch{Title: p.Title, Start: p.Start, End: p.End}
	if !b.IsLinked() || patch.Empty() {
		return b, nil
	}

	provider, remoteID := *b.Provider, *b.ProviderEventID
	res := model.Mirrored(remoteID)
	if a, ok := c.calendars[provider]; !ok {
		res = model.MirrorFailedWith(ErrUnsupportedMirror.Error())
	} else if err := a.Update(ctx, userID, remoteID, patch); err != nil {
		res = model.MirrorFailedWith(err.Error())
	}
	c.record(ctx, b, provider, queue.OpUpdate, res)
	return b, nil
}

// Delete removes the remote copy (best effort) and then the local row.
// The returned result describes the remote delete; NotRequested for
// unlinked blocks.
func (c *Coordinator) Delete(ctx context.Context, userID, id string) (model.MirrorResult, error) {
	b, err := c.store.Get(ctx, userID, id)
	if err != nil {
		return model.MirrorResult{}, err
	}

	res := model.NotRequested()
	if b.IsLinked() {
		provider, remoteID := *b.Provider, *b.ProviderEventID
		res = model.Mirrored(remoteID)
		if a, ok := c.calendars[provider]; !ok {
			res = model.MirrorFailedWith(ErrUnsupportedMirror.Error())
		} else if err := a.Delete(ctx, userID, remoteID); err != nil {
			res = model.MirrorFailedWith(err.Error())
		}
		if res.State == model.MirrorFailed {
			log.Printf("schedule: remote delete failed block=%s provider=%s: %s", b.ID, provider, res.Reason)
			c.publish(b, provider, queue.OpDelete, res)
		}
	}

	if err := c.store.Delete(ctx, userID, id); err != nil {
		return res, err
	}
	return res, nil
}

// ListForDay returns the user's blocks overlapping the UTC day dateISO.
func (c *Coordinator) ListForDay(ctx context.Context, userID, dateISO string) ([]model.ScheduleBlock, error) {
	start, err := time.ParseInLocation("2006-01-02", dateISO, time.UTC)
	if err != nil {
		return nil, calendar.ErrBadDate
	}
	return c.store.ListBetween(ctx, userID, start, start.Add(24*time.Hour-time.Millisecond))
}

// record persists res on b and reports failures.  A store error here is
// logged only: the block itself is already saved.
func (c *Coordinator) record(ctx context.Context, b *model.ScheduleBlock, provider model.Provider, op string, res model.MirrorResult) {
	if err := c.store.SetMirror(ctx, b.ID, provider, res); err != nil {
		log.Printf("schedule: store mirror result block=%s: %v", b.ID, err)
	}
	b.Mirror = res
	if res.State == model.MirrorMirrored {
		p, id := provider, res.RemoteID
		b.Provider, b.ProviderEventID = &p, &id
		return
	}
	log.Printf("schedule: mirror %s failed block=%s provider=%s: %s", op, b.ID, provider, res.Reason)
	c.publish(b, provider, op, res)
}

func (c *Coordinator) publish(b *model.ScheduleBlock, provider model.Provider, op string, res model.MirrorResult) {
	if c.events == nil {
		return
	}
	ev := queue.MirrorFailedEvent{
		BlockID:    b.ID,
		UserID:     b.UserID,
		Provider:   string(provider),
		Op:         op,
		Title:      b.Title,
		StartsAt:   b.Start.UTC().Format(time.RFC3339),
		EndsAt:     b.End.UTC().Format(time.RFC3339),
		Reason:     res.Reason,
		OccurredAt: c.now().UTC().Format(time.RFC3339),
	}
	if b.ProviderEventID != nil {
		ev.RemoteID = *b.ProviderEventID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.publishTimeout)
		defer cancel()
		_ = c.events.PublishMirrorFailed(ctx, ev)
	}()
}
