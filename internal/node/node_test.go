package node

import (
	"context"
	"errors"
	"testing"

	"flow-node/internal/broker"
	"flow-node/internal/decision"
	"flow-node/internal/dispatch"
	"flow-node/internal/pipeline"
)

type submitCall struct {
	side     broker.OrderSide
	symbol   string
	quantity int64
}

type mockSubmitter struct {
	calls []submitCall
}

func (m *mockSubmitter) Submit(ctx context.Context, side broker.OrderSide, symbol string, quantity int64) *broker.Handle {
	m.calls = append(m.calls, submitCall{side: side, symbol: symbol, quantity: quantity})
	return broker.NewHandle(symbol, side, nil)
}

func newTestNode(view StateView) (*Node, *mockSubmitter, *broker.BatchTracker) {
	submitter := &mockSubmitter{}
	tracker := broker.NewBatchTracker()
	dispatcher := dispatch.NewDispatcher(submitter, tracker, nil)
	return New(view, dispatcher, nil, nil, nil), submitter, tracker
}

func TestExecute_ReadyScenario(t *testing.T) {
	set := decision.NewSet()
	set.Put("GOOG", decision.Decision{Action: decision.ActionBuy, Quantity: 3})

	view := &fakeView{
		agents: map[string]pipeline.AgentState{"agent1": pipeline.AgentComplete},
		env:    &decision.Envelope{Decisions: set},
		batch:  pipeline.BatchNotStarted,
	}
	n, submitter, _ := newTestNode(view)

	r := n.Readiness()
	want := Readiness{IsProcessing: false, IsOutputAvailable: true, IsOrderComplete: false, IsOrderError: false}
	if r != want {
		t.Fatalf("readiness = %+v, want %+v", r, want)
	}

	if err := n.Execute(context.Background()); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if len(submitter.calls) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submitter.calls))
	}
	got := submitter.calls[0]
	if got.side != broker.OrderSideBuy || got.symbol != "GOOG" || got.quantity != 3 {
		t.Errorf("unexpected submission: %+v", got)
	}

	if phase := n.Phase(); phase != PhaseDispatching && phase != PhaseComplete {
		t.Errorf("expected dispatching or complete phase after execute, got %s", phase)
	}
}

func TestExecute_GuardRejections(t *testing.T) {
	set := decision.NewSet()
	set.Put("AAPL", decision.Decision{Action: decision.ActionBuy, Quantity: 1})
	env := &decision.Envelope{Decisions: set}

	cases := []struct {
		name    string
		view    *fakeView
		wantErr error
	}{
		{
			"upstream busy",
			&fakeView{
				agents: map[string]pipeline.AgentState{"a": pipeline.AgentInProgress},
				env:    env,
				batch:  pipeline.BatchNotStarted,
			},
			ErrUpstreamBusy,
		},
		{
			"no output",
			&fakeView{
				agents: map[string]pipeline.AgentState{"a": pipeline.AgentComplete},
				batch:  pipeline.BatchNotStarted,
			},
			ErrNoOutput,
		},
		{
			"batch complete",
			&fakeView{
				agents: map[string]pipeline.AgentState{"a": pipeline.AgentComplete},
				env:    env,
				batch:  pipeline.BatchComplete,
			},
			ErrBatchTerminal,
		},
		{
			"batch error",
			&fakeView{
				agents: map[string]pipeline.AgentState{"a": pipeline.AgentComplete},
				env:    env,
				batch:  pipeline.BatchError,
			},
			ErrBatchTerminal,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, submitter, _ := newTestNode(tc.view)
			err := n.Execute(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Execute error = %v, want %v", err, tc.wantErr)
			}
			if len(submitter.calls) != 0 {
				t.Fatalf("rejected execute must not submit, got %d calls", len(submitter.calls))
			}
		})
	}
}

func TestExecute_SecondTriggerRejected(t *testing.T) {
	set := decision.NewSet()
	set.Put("TSLA", decision.Decision{Action: decision.ActionSell, Quantity: 2})

	view := &fakeView{
		agents: map[string]pipeline.AgentState{"a": pipeline.AgentComplete},
		env:    &decision.Envelope{Decisions: set},
		batch:  pipeline.BatchNotStarted,
	}
	n, submitter, _ := newTestNode(view)

	if err := n.Execute(context.Background()); err != nil {
		t.Fatalf("first Execute returned error: %v", err)
	}
	if err := n.Execute(context.Background()); !errors.Is(err, ErrAlreadyDispatched) {
		t.Fatalf("second Execute error = %v, want ErrAlreadyDispatched", err)
	}
	if len(submitter.calls) != 1 {
		t.Fatalf("expected single submission across both triggers, got %d", len(submitter.calls))
	}
}

func TestExecute_EmptyDecisionSet(t *testing.T) {
	view := &fakeView{
		agents: map[string]pipeline.AgentState{"a": pipeline.AgentComplete},
		env:    &decision.Envelope{Decisions: decision.NewSet()},
		batch:  pipeline.BatchNotStarted,
	}
	n, submitter, tracker := newTestNode(view)

	if err := n.Execute(context.Background()); err != nil {
		t.Fatalf("Execute returned error for empty set: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Fatalf("expected no submissions for empty set, got %d", len(submitter.calls))
	}
	// 空批次封口后立即视为完成
	if got := tracker.Status(); got != pipeline.BatchComplete {
		t.Fatalf("expected complete batch, got %s", got)
	}
}

func TestCancelLast_DelegatesToDispatcher(t *testing.T) {
	set := decision.NewSet()
	set.Put("A", decision.Decision{Action: decision.ActionBuy, Quantity: 1})
	set.Put("B", decision.Decision{Action: decision.ActionBuy, Quantity: 2})

	view := &fakeView{
		agents: map[string]pipeline.AgentState{"a": pipeline.AgentComplete},
		env:    &decision.Envelope{Decisions: set},
		batch:  pipeline.BatchNotStarted,
	}
	n, submitter, _ := newTestNode(view)

	if err := n.Execute(context.Background()); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	// 只保留最后一笔句柄，撤销只作用于 B
	n.CancelLast()
	if len(submitter.calls) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(submitter.calls))
	}
}
