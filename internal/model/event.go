package model

// Event is the provider-neutral view of a remote calendar event.  Start
// and End are RFC 3339 instants (or plain dates for all-day events).
type Event struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Provider Provider `json:"provider"`
}
