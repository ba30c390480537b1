package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/concierge/internal/agent"
	"github.com/kalambet/concierge/internal/llm"
)

// Actor identifies who acts next in the conversation state machine.
type Actor string

const (
	ActorResearch    Actor = Actor(agent.ResearchAgentName)
	ActorAppointment Actor = Actor(agent.AppointmentAgentName)
	ActorFinish      Actor = "finish"
)

// Decision is the router's structured verdict for one dispatch step.
// Response is only consulted when Next is ActorFinish and carries the
// reply to relay to the customer.
type Decision struct {
	Next     Actor  `json:"next"`
	Response string `json:"response"`
}

const routerPrompt = `You are the supervisor of a customer support assistant with two
specialist agents:

- research_agent: answers informational questions about the company, its
  policies, and services.
- appointment_agent: books appointments. Handles dates, times, and
  availability.

Given the conversation so far, decide who acts next:

- Route to research_agent for informational questions.
- Route to appointment_agent for anything about scheduling, including
  follow-up answers the customer gives mid-booking (a date, a time, a
  mode, or a confirmation).
- Choose finish when the last specialist message already answers the
  customer. Set response to that answer, rephrased as a single helpful
  reply. Never mention agents, tools, or internal systems.
- Choose finish with your own short response for greetings and small talk.

Consider the whole conversation, not just the latest message. Do not ask
for information the customer already provided.`

// Router classifies the conversation and picks the next actor. It is the
// only component that calls the supervisor model.
type Router struct {
	engine llm.Engine
	model  string
}

// NewRouter creates a Router using the given engine and supervisor model.
func NewRouter(engine llm.Engine, model string) *Router {
	return &Router{engine: engine, model: model}
}

// Decide returns the next actor for the current conversation state.
func (r *Router) Decide(ctx context.Context, history []llm.Message) (Decision, error) {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: routerPrompt})
	msgs = append(msgs, history...)

	raw, err := r.engine.ChatJSON(ctx, r.model, msgs, routingSchema())
	if err != nil {
		return Decision{}, fmt.Errorf("routing decision: %w", err)
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Decision{}, fmt.Errorf("unmarshaling routing decision %q: %w", raw, err)
	}

	switch d.Next {
	case ActorResearch, ActorAppointment, ActorFinish:
		return d, nil
	default:
		return Decision{}, fmt.Errorf("routing decision picked unknown actor %q", d.Next)
	}
}

func routingSchema() *llm.Schema {
	return &llm.Schema{
		Name: "routing_decision",
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"next": {
				Type:        "string",
				Description: "Who acts next",
				Enum:        []string{string(ActorResearch), string(ActorAppointment), string(ActorFinish)},
			},
			"response": {
				Type:        "string",
				Description: "Reply to the customer; only used when next is finish",
			},
		},
		Required: []string{"next", "response"},
	}
}

// sanitize strips internal actor names from customer-facing text. The
// router prompt forbids them, but the reply is the one surface where a
// leak would reach the customer.
func sanitize(s string) string {
	replacer := strings.NewReplacer(
		agent.ResearchAgentName, "our team",
		agent.AppointmentAgentName, "our team",
	)
	return replacer.Replace(s)
}
