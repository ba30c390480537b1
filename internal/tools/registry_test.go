package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func stubTool(name, reply string) Tool {
	return Tool{
		Name:        name,
		Description: "stub",
		Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		Run: func(ctx context.Context, cc CallContext, args json.RawMessage) (string, error) {
			return reply, nil
		},
	}
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubTool("echo", "hello")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := r.Execute(context.Background(), CallContext{}, "echo", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected hello, got %q", out)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubTool("echo", "a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(stubTool("echo", "b")); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), CallContext{}, "missing", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestRegistrySpecsOrderAndPanic(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubTool("a", ""))
	r.MustRegister(stubTool("b", ""))

	specs := r.Specs("b", "a")
	if len(specs) != 2 || specs[0].Name != "b" || specs[1].Name != "a" {
		t.Errorf("unexpected specs: %+v", specs)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown tool name")
		}
	}()
	r.Specs("missing")
}
