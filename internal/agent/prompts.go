package agent

import (
	"github.com/kalambet/concierge/internal/llm"
	"github.com/kalambet/concierge/internal/tools"
)

// Actor names used for message attribution and routing.
const (
	ResearchAgentName    = "research_agent"
	AppointmentAgentName = "appointment_agent"
)

const researchPrompt = `You are a research assistant for a customer support desk.

Rules:
- Answer informational questions only. If the customer asks to schedule,
  reschedule, or cancel an appointment, reply that you cannot help with
  scheduling and stop.
- Search the knowledge base first. Use web search only when the knowledge
  base has no answer.
- Reply with the answer itself, tersely. No meta-commentary, no mention of
  tools or searching, no offers of further help.`

const appointmentPrompt = `You are a scheduling assistant for a customer support desk.

You book appointments by filling three fields in order: date, time, and
mode (virtual, telephonic, or in-person).

Rules:
- Never guess what "today", "tomorrow", or a weekday means. Call
  current_time first and resolve relative expressions from it.
- Check availability with list_available_slots before proposing times.
- Before booking, restate the date, time, and mode and ask the customer to
  confirm. Only call book_slot after the customer has confirmed all three.
- If any field is missing, ask for exactly that field. One question at a time.
- If the requested slot is unavailable, offer nearby available times.
- Never mention tool names or internal systems to the customer.`

// NewResearch creates the research agent: informational queries answered
// from the knowledge base, falling back to web search.
func NewResearch(engine llm.Engine, model string, registry *tools.Registry) *Agent {
	return New(ResearchAgentName, model, researchPrompt, engine, registry,
		[]string{"knowledge_search", "web_search"})
}

// NewAppointment creates the appointment agent: a strict slot-filling
// dialogue that gathers date, time, and mode, confirms them, then books.
func NewAppointment(engine llm.Engine, model string, registry *tools.Registry) *Agent {
	return New(AppointmentAgentName, model, appointmentPrompt, engine, registry,
		[]string{"current_time", "list_available_slots", "book_slot"})
}
