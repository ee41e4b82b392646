package model

import "time"

// Source types for schedule blocks and time entries.
const (
	SourceCustom = "custom"
	SourceJira   = "jira"
	SourceOther  = "other"
)

// MirrorState is the tag of a MirrorResult.
type MirrorState string

const (
	MirrorNotRequested MirrorState = "not_requested" // block is local-only by choice
	MirrorMirrored     MirrorState = "mirrored"      // remote copy exists and was last written successfully
	MirrorFailed       MirrorState = "failed"        // last remote write failed; local and remote may differ
)

// MirrorResult records the outcome of the last attempt to write a schedule
// block to an external calendar.  Exactly one of the constructors below
// should be used to build it.
type MirrorResult struct {
	State    MirrorState `json:"state"`
	RemoteID string      `json:"remote_id,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// NotRequested is the result for blocks that were never mirrored.
func NotRequested() MirrorResult { return MirrorResult{State: MirrorNotRequested} }

// Mirrored is the result of a successful remote write.
func Mirrored(remoteID string) MirrorResult {
	return MirrorResult{State: MirrorMirrored, RemoteID: remoteID}
}

// MirrorFailedWith is the result of a failed remote write.
func MirrorFailedWith(reason string) MirrorResult {
	return MirrorResult{State: MirrorFailed, Reason: reason}
}

// ScheduleBlock is a locally owned calendar entry.  Provider and
// ProviderEventID are set only while the block is linked to a remote event.
type ScheduleBlock struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	Title           string       `json:"title"`
	Start           time.Time    `json:"start"`
	End             time.Time    `json:"end"`
	SourceType      string       `json:"source_type"`
	SourceID        *string      `json:"source_id,omitempty"`
	Provider        *Provider    `json:"provider,omitempty"`
	ProviderEventID *string      `json:"provider_event_id,omitempty"`
	Mirror          MirrorResult `json:"mirror"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsLinked reports whether the block points at a remote event.
func (b *ScheduleBlock) IsLinked() bool {
	return b.Provider != nil && b.ProviderEventID != nil && *b.ProviderEventID != ""
}

// ScheduleBlockPatch carries the optional fields of a partial update.
type ScheduleBlockPatch struct {
	Title *string
	Start *time.Time
	End   *time.Time
}
