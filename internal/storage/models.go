package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoSlots is returned by ClaimSlot when no slot exists at all for the
// requested (date, time) pair.
var ErrNoSlots = errors.New("no slots for that date and time")

// ErrSlotTaken is returned by ClaimSlot when slots exist for the requested
// (date, time) pair but every one of them is already booked. Distinct from
// ErrNoSlots so callers can tell contention from absence.
var ErrSlotTaken = errors.New("all slots at this time are already booked")

// Message is one persisted turn of a conversation thread. Messages are
// append-only; Seq defines the order the supervisor and agents reason over.
type Message struct {
	ThreadID  string
	Seq       int
	Role      string // user, assistant, tool, system
	Actor     string // emitting actor name (supervisor, research_agent, ...)
	Content   string
	Payload   string // optional JSON (tool calls, observations)
	CreatedAt time.Time
}

// ServiceProvider is a bookable appointment provider.
type ServiceProvider struct {
	ID      string
	Name    string
	Contact string
}

// Customer identifies a support customer.
type Customer struct {
	ID      string
	Name    string
	Contact string
}

// AppointmentSlot is one half-hour bookable window owned by a provider.
// (ProviderID, Date, TimeSlot) is unique; once Booked is true the slot
// belongs to exactly one customer.
type AppointmentSlot struct {
	ID         string
	ProviderID string
	CustomerID string // empty until booked
	Date       string // YYYY-MM-DD
	TimeSlot   string // HH:MM
	Booked     bool
	Mode       string // empty until booked; virtual, telephonic, in-person
	CreatedAt  time.Time
}

// BookedSlot is the result of a successful claim, carrying the provider
// name for the confirmation message.
type BookedSlot struct {
	SlotID       string
	ProviderName string
	Date         string
	TimeSlot     string
	Mode         string
}

// Document is an ingested source document.
type Document struct {
	ID        string
	Title     string
	Source    string
	CreatedAt time.Time
}

// DocumentChunk is one heading-delimited fragment of an ingested document.
// VectorID is set once the ingest worker has embedded the chunk.
type DocumentChunk struct {
	ID         string
	DocumentID string
	Heading    string
	Content    string
	VectorID   string
	CreatedAt  time.Time
}

// Job is one unit of background work in the SQLite job queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
