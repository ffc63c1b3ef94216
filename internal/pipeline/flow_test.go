package pipeline

import (
	"errors"
	"testing"

	"flow-node/internal/decision"
)

func TestFlowSetAgentState(t *testing.T) {
	flow := NewFlow(nil)

	if err := flow.SetAgentState("technical_analyst", AgentInProgress); err != nil {
		t.Fatalf("SetAgentState returned error: %v", err)
	}
	if err := flow.SetAgentState("technical_analyst", AgentComplete); err != nil {
		t.Fatalf("SetAgentState returned error: %v", err)
	}

	statuses := flow.AgentStatuses()
	if statuses["technical_analyst"] != AgentComplete {
		t.Fatalf("unexpected state: %s", statuses["technical_analyst"])
	}

	if err := flow.SetAgentState("", AgentIdle); err == nil {
		t.Fatalf("expected error for empty agent id")
	}
	if err := flow.SetAgentState("x", AgentState("launching")); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestFlowAgentStatuses_ReturnsCopy(t *testing.T) {
	flow := NewFlow(nil)
	_ = flow.SetAgentState("a", AgentIdle)

	statuses := flow.AgentStatuses()
	statuses["a"] = AgentError

	if flow.AgentStatuses()["a"] != AgentIdle {
		t.Fatalf("mutating the returned map must not affect shared state")
	}
}

func TestFlowOutputImmutable(t *testing.T) {
	flow := NewFlow(nil)

	if flow.Output() != nil {
		t.Fatalf("expected nil output before upstream completes")
	}

	env := &decision.Envelope{Decisions: decision.NewSet()}
	if err := flow.SetOutput(env); err != nil {
		t.Fatalf("SetOutput returned error: %v", err)
	}
	if flow.Output() != env {
		t.Fatalf("expected stored envelope returned")
	}

	err := flow.SetOutput(&decision.Envelope{Decisions: decision.NewSet()})
	if !errors.Is(err, ErrOutputAlreadySet) {
		t.Fatalf("expected ErrOutputAlreadySet, got %v", err)
	}
	if flow.Output() != env {
		t.Fatalf("second SetOutput must not replace the envelope")
	}
}

func TestFlowOnChange(t *testing.T) {
	flow := NewFlow(nil)

	fired := 0
	flow.OnChange(func() { fired++ })

	_ = flow.SetAgentState("a", AgentInProgress)
	_ = flow.SetOutput(&decision.Envelope{Decisions: decision.NewSet()})
	flow.Notify()

	if fired != 3 {
		t.Fatalf("expected 3 change notifications, got %d", fired)
	}
}
