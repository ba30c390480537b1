package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/concierge/internal/storage"
)

// Appointment modes a customer can book.
var validModes = []string{"virtual", "telephonic", "in-person"}

// NewCurrentTime returns the clock tool. now is injectable for tests;
// pass nil for the system clock.
func NewCurrentTime(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Name:        "current_time",
		Description: "Returns the current date and time. Use this to resolve relative expressions like 'tomorrow' or 'next Monday' before working with dates.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		Run: func(ctx context.Context, cc CallContext, args json.RawMessage) (string, error) {
			return now().Format("Monday, January 2, 2006 at 15:04 MST"), nil
		},
	}
}

type listSlotsArgs struct {
	Date string `json:"date"`
}

// NewListAvailableSlots returns the tool listing unbooked half-hour slots
// for a date. Slots are aggregated across all providers; which provider
// owns a slot is revealed only by the booking confirmation.
func NewListAvailableSlots(store *storage.Store) Tool {
	return Tool{
		Name:        "list_available_slots",
		Description: "Lists available appointment time slots for a given date. The date must be in YYYY-MM-DD format.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {"type": "string", "description": "Date in YYYY-MM-DD format"}
			},
			"required": ["date"]
		}`),
		Run: func(ctx context.Context, cc CallContext, args json.RawMessage) (string, error) {
			var in listSlotsArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			if _, err := time.Parse("2006-01-02", in.Date); err != nil {
				return fmt.Sprintf("Invalid date %q: expected YYYY-MM-DD format.", in.Date), nil
			}

			slots, err := store.ListAvailableSlots(ctx, in.Date)
			if err != nil {
				return "", fmt.Errorf("listing slots: %w", err)
			}
			if len(slots) == 0 {
				return fmt.Sprintf("No slots found for %s.", in.Date), nil
			}
			return fmt.Sprintf("Available slots on %s: %s", in.Date, strings.Join(slots, ", ")), nil
		},
	}
}

type bookSlotArgs struct {
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
	Mode     string `json:"mode"`
}

// NewBookSlot returns the booking tool. Customer identity comes from the
// call context only. Claiming is atomic at the database level, so racing
// bookings for the last slot at a time resolve to exactly one winner.
func NewBookSlot(store *storage.Store) Tool {
	return Tool{
		Name:        "book_slot",
		Description: "Books an appointment slot for the customer. Requires the date (YYYY-MM-DD), the time slot (HH:MM), and the mode of the appointment. Only call this after the customer has confirmed all three.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {"type": "string", "description": "Date in YYYY-MM-DD format"},
				"time_slot": {"type": "string", "description": "Time slot in HH:MM format, on the half hour"},
				"mode": {"type": "string", "enum": ["virtual", "telephonic", "in-person"], "description": "How the appointment is held"}
			},
			"required": ["date", "time_slot", "mode"]
		}`),
		Run: func(ctx context.Context, cc CallContext, args json.RawMessage) (string, error) {
			var in bookSlotArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}

			// Validation failures return before any state is touched.
			if !isValidMode(in.Mode) {
				return fmt.Sprintf("Invalid mode %q: must be one of virtual, telephonic, or in-person.", in.Mode), nil
			}
			if _, err := time.Parse("2006-01-02", in.Date); err != nil {
				return fmt.Sprintf("Invalid date %q: expected YYYY-MM-DD format.", in.Date), nil
			}
			if _, err := time.Parse("15:04", in.TimeSlot); err != nil {
				return fmt.Sprintf("Invalid time slot %q: expected HH:MM format.", in.TimeSlot), nil
			}
			if cc.CustomerID == "" {
				return "", fmt.Errorf("booking requires a customer identity in the call context")
			}

			booked, err := store.ClaimSlot(ctx, in.Date, in.TimeSlot, in.Mode, cc.CustomerID)
			switch {
			case errors.Is(err, storage.ErrSlotTaken):
				return fmt.Sprintf("The %s slot on %s is no longer available. Please choose another time.", in.TimeSlot, in.Date), nil
			case errors.Is(err, storage.ErrNoSlots):
				return fmt.Sprintf("No slot was found at %s on %s. Use the available slot listing to see open times.", in.TimeSlot, in.Date), nil
			case err != nil:
				return "", fmt.Errorf("booking slot: %w", err)
			}

			return fmt.Sprintf("Your %s appointment is confirmed with %s on %s at %s.",
				booked.Mode, booked.ProviderName, booked.Date, booked.TimeSlot), nil
		},
	}
}

func isValidMode(mode string) bool {
	for _, m := range validModes {
		if mode == m {
			return true
		}
	}
	return false
}
