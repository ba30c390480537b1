package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/concierge/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedBookable(t *testing.T, store *storage.Store, date string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateProvider(ctx, storage.ServiceProvider{ID: "p1", Name: "Dr. Reyes"}); err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	if err := store.CreateCustomer(ctx, storage.Customer{ID: "c1", Name: "Sam"}); err != nil {
		t.Fatalf("creating customer: %v", err)
	}
	if _, err := store.ProvisionSlots(ctx, "p1", date, 1); err != nil {
		t.Fatalf("provisioning slots: %v", err)
	}
}

func runTool(t *testing.T, tool Tool, cc CallContext, args string) string {
	t.Helper()
	out, err := tool.Run(context.Background(), cc, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s: %v", tool.Name, err)
	}
	return out
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	tool := NewCurrentTime(func() time.Time { return fixed })

	out := runTool(t, tool, CallContext{}, `{}`)
	if !strings.Contains(out, "Saturday, August 29, 2026") || !strings.Contains(out, "14:30") {
		t.Errorf("unexpected timestamp: %q", out)
	}
}

func TestListAvailableSlots(t *testing.T) {
	store := openTestStore(t)
	seedBookable(t, store, "2026-09-01")
	tool := NewListAvailableSlots(store)

	out := runTool(t, tool, CallContext{}, `{"date":"2026-09-01"}`)
	if !strings.HasPrefix(out, "Available slots on 2026-09-01:") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "00:00") || !strings.Contains(out, "23:30") {
		t.Errorf("expected full day of slots, got %q", out)
	}
}

func TestListAvailableSlotsEmptyDate(t *testing.T) {
	store := openTestStore(t)
	tool := NewListAvailableSlots(store)

	out := runTool(t, tool, CallContext{}, `{"date":"2026-12-25"}`)
	if out != "No slots found for 2026-12-25." {
		t.Errorf("unexpected sentinel: %q", out)
	}
}

func TestListAvailableSlotsBadDate(t *testing.T) {
	store := openTestStore(t)
	tool := NewListAvailableSlots(store)

	out := runTool(t, tool, CallContext{}, `{"date":"tomorrow"}`)
	if !strings.Contains(out, "Invalid date") {
		t.Errorf("expected validation message, got %q", out)
	}
}

func TestBookSlotSuccess(t *testing.T) {
	store := openTestStore(t)
	seedBookable(t, store, "2026-09-01")
	tool := NewBookSlot(store)

	out := runTool(t, tool, CallContext{CustomerID: "c1"}, `{"date":"2026-09-01","time_slot":"15:00","mode":"virtual"}`)
	for _, want := range []string{"Dr. Reyes", "2026-09-01", "15:00", "virtual"} {
		if !strings.Contains(out, want) {
			t.Errorf("confirmation missing %q: %q", want, out)
		}
	}

	// The same slot is gone from the listing.
	listOut := runTool(t, NewListAvailableSlots(store), CallContext{}, `{"date":"2026-09-01"}`)
	if strings.Contains(listOut, "15:00") {
		t.Errorf("booked slot still listed: %q", listOut)
	}
}

func TestBookSlotInvalidModeDoesNotMutate(t *testing.T) {
	store := openTestStore(t)
	seedBookable(t, store, "2026-09-01")
	tool := NewBookSlot(store)

	out := runTool(t, tool, CallContext{CustomerID: "c1"}, `{"date":"2026-09-01","time_slot":"15:00","mode":"carrier-pigeon"}`)
	if !strings.Contains(out, "Invalid mode") {
		t.Fatalf("expected validation message, got %q", out)
	}

	// Slot stays available.
	listOut := runTool(t, NewListAvailableSlots(store), CallContext{}, `{"date":"2026-09-01"}`)
	if !strings.Contains(listOut, "15:00") {
		t.Errorf("slot was mutated by a rejected booking: %q", listOut)
	}
}

func TestBookSlotValidationMessages(t *testing.T) {
	store := openTestStore(t)
	seedBookable(t, store, "2026-09-01")
	tool := NewBookSlot(store)

	tests := []struct {
		name string
		args string
		want string
	}{
		{"bad date", `{"date":"Sept 1","time_slot":"15:00","mode":"virtual"}`, "Invalid date"},
		{"bad time", `{"date":"2026-09-01","time_slot":"3pm","mode":"virtual"}`, "Invalid time slot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runTool(t, tool, CallContext{CustomerID: "c1"}, tt.args)
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected %q in output, got %q", tt.want, out)
			}
		})
	}
}

func TestBookSlotTakenVersusAbsent(t *testing.T) {
	store := openTestStore(t)
	seedBookable(t, store, "2026-09-01")
	tool := NewBookSlot(store)

	// First claim wins.
	runTool(t, tool, CallContext{CustomerID: "c1"}, `{"date":"2026-09-01","time_slot":"10:00","mode":"virtual"}`)

	// Second claim for the same pair: slots exist but all are booked.
	out := runTool(t, tool, CallContext{CustomerID: "c1"}, `{"date":"2026-09-01","time_slot":"10:00","mode":"telephonic"}`)
	if !strings.Contains(out, "no longer available") {
		t.Errorf("expected taken message, got %q", out)
	}

	// A date with no slots at all: absence, not contention.
	out = runTool(t, tool, CallContext{CustomerID: "c1"}, `{"date":"2027-01-01","time_slot":"10:00","mode":"virtual"}`)
	if !strings.Contains(out, "No slot was found") {
		t.Errorf("expected not-found message, got %q", out)
	}
}

func TestBookSlotRequiresCustomerContext(t *testing.T) {
	store := openTestStore(t)
	seedBookable(t, store, "2026-09-01")
	tool := NewBookSlot(store)

	_, err := tool.Run(context.Background(), CallContext{}, json.RawMessage(`{"date":"2026-09-01","time_slot":"15:00","mode":"virtual"}`))
	if err == nil {
		t.Fatal("expected error without customer identity")
	}
	if !strings.Contains(err.Error(), "customer identity") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBookSlotConcurrentClaims(t *testing.T) {
	store := openTestStore(t)
	seedBookable(t, store, "2026-09-01")
	tool := NewBookSlot(store)

	const racers = 8
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			out, err := tool.Run(context.Background(), CallContext{CustomerID: fmt.Sprintf("c%d", i)},
				json.RawMessage(`{"date":"2026-09-01","time_slot":"11:00","mode":"virtual"}`))
			wins <- err == nil && strings.Contains(out, "confirmed")
		}(i)
	}

	var won int
	for i := 0; i < racers; i++ {
		if <-wins {
			won++
		}
	}
	if won != 1 {
		t.Errorf("expected exactly 1 winning booking, got %d", won)
	}
}
