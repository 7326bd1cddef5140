package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chanops/contentflow/graph/emit"
	"github.com/chanops/contentflow/graph/store"
)

// TestState is the state document used across the engine tests.
type TestState struct {
	Value   string   `json:"value,omitempty"`
	Counter int      `json:"counter,omitempty"`
	Visited []string `json:"visited,omitempty"`
	Label   string   `json:"label,omitempty"`
}

func (s TestState) StepLabel() string { return s.Label }

func testReducer(prev, delta TestState) TestState {
	if delta.Value != "" {
		prev.Value = delta.Value
	}
	if delta.Label != "" {
		prev.Label = delta.Label
	}
	prev.Counter += delta.Counter
	prev.Visited = append(append([]string{}, prev.Visited...), delta.Visited...)
	return prev
}

// visitNode records its own ID in the state.
func visitNode(id string) NodeFunc[TestState] {
	return func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Delta: TestState{Visited: []string{id}, Counter: 1}}
	}
}

type mockEmitter struct {
	mu     sync.Mutex
	events []emit.Event
}

func (m *mockEmitter) Emit(event emit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockEmitter) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Msg
	}
	return out
}

func buildLinear(t *testing.T, st store.Store[TestState], emitter emit.Emitter, ids ...string) *Engine[TestState] {
	t.Helper()
	e := New(testReducer, st, emitter, Options{MaxSteps: 50, WorkflowType: "test"})
	for _, id := range ids {
		if err := e.Add(id, visitNode(id)); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	if err := e.StartAt(ids[0]); err != nil {
		t.Fatalf("StartAt: %v", err)
	}
	for i, id := range ids {
		to := End
		if i+1 < len(ids) {
			to = ids[i+1]
		}
		if err := e.Connect(id, to, nil); err != nil {
			t.Fatalf("Connect(%s): %v", id, err)
		}
	}
	return e
}

func TestEngine_Run_Linear(t *testing.T) {
	st := store.NewMemStore[TestState]()
	emitter := &mockEmitter{}
	e := buildLinear(t, st, emitter, "a", "b", "c")

	final, err := e.Run(context.Background(), "run-1", TestState{Value: "start"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := len(final.Visited), 3; got != want {
		t.Fatalf("visited %d nodes, want %d: %v", got, want, final.Visited)
	}
	for i, want := range []string{"a", "b", "c"} {
		if final.Visited[i] != want {
			t.Errorf("visited[%d] = %s, want %s", i, final.Visited[i], want)
		}
	}
	if final.Value != "start" {
		t.Errorf("untouched field changed: Value = %q", final.Value)
	}

	snap, err := st.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Meta.Status != store.StatusCompleted {
		t.Errorf("status = %s, want %s", snap.Meta.Status, store.StatusCompleted)
	}
	if snap.Meta.WorkflowType != "test" {
		t.Errorf("workflow_type = %s, want test", snap.Meta.WorkflowType)
	}
	if snap.State.Counter != 3 {
		t.Errorf("checkpointed counter = %d, want 3", snap.State.Counter)
	}
}

func TestEngine_Run_ValidationErrors(t *testing.T) {
	st := store.NewMemStore[TestState]()

	t.Run("missing reducer", func(t *testing.T) {
		e := New[TestState](nil, st, nil, Options{})
		_, err := e.Run(context.Background(), "r", TestState{})
		if !IsEngineCode(err, CodeMissingReducer) {
			t.Errorf("expected MISSING_REDUCER, got %v", err)
		}
	})

	t.Run("missing store", func(t *testing.T) {
		e := New(testReducer, nil, nil, Options{})
		_, err := e.Run(context.Background(), "r", TestState{})
		if !IsEngineCode(err, CodeMissingStore) {
			t.Errorf("expected MISSING_STORE, got %v", err)
		}
	})

	t.Run("no start node", func(t *testing.T) {
		e := New(testReducer, st, nil, Options{})
		_, err := e.Run(context.Background(), "r", TestState{})
		if !IsEngineCode(err, CodeNoStartNode) {
			t.Errorf("expected NO_START_NODE, got %v", err)
		}
	})

	t.Run("duplicate node", func(t *testing.T) {
		e := New(testReducer, st, nil, Options{})
		if err := e.Add("a", visitNode("a")); err != nil {
			t.Fatalf("Add: %v", err)
		}
		err := e.Add("a", visitNode("a"))
		if !IsEngineCode(err, CodeDuplicateNode) {
			t.Errorf("expected DUPLICATE_NODE, got %v", err)
		}
	})
}

func TestEngine_Run_ConditionalRouting(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := New(testReducer, st, nil, Options{MaxSteps: 20})

	for _, id := range []string{"start", "high", "low"} {
		if err := e.Add(id, visitNode(id)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := e.StartAt("start"); err != nil {
		t.Fatalf("StartAt: %v", err)
	}

	// First matching edge wins: the conditional sits before the fallback.
	highCounter := func(s TestState) bool { return s.Counter >= 5 }
	if err := e.Connect("start", "high", highCounter); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect("start", "low", nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect("high", End, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect("low", End, nil); err != nil {
		t.Fatal(err)
	}

	t.Run("predicate matches", func(t *testing.T) {
		final, err := e.Run(context.Background(), "route-high", TestState{Counter: 10})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := final.Visited[len(final.Visited)-1]; got != "high" {
			t.Errorf("routed to %s, want high", got)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		final, err := e.Run(context.Background(), "route-low", TestState{Counter: 0})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := final.Visited[len(final.Visited)-1]; got != "low" {
			t.Errorf("routed to %s, want low", got)
		}
	})

	t.Run("evaluation is deterministic", func(t *testing.T) {
		s := TestState{Counter: 7}
		first := e.evaluateEdges("start", s)
		for i := 0; i < 10; i++ {
			if got := e.evaluateEdges("start", s); got != first {
				t.Fatalf("routing changed between evaluations: %s vs %s", got, first)
			}
		}
	})
}

func TestEngine_Run_NoRoute(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := New(testReducer, st, nil, Options{MaxSteps: 10})
	if err := e.Add("lonely", visitNode("lonely")); err != nil {
		t.Fatal(err)
	}
	if err := e.StartAt("lonely"); err != nil {
		t.Fatal(err)
	}

	_, err := e.Run(context.Background(), "r", TestState{})
	if !IsEngineCode(err, CodeNoRoute) {
		t.Errorf("expected NO_ROUTE, got %v", err)
	}
}

func TestEngine_Run_MaxSteps(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := New(testReducer, st, nil, Options{MaxSteps: 5})
	if err := e.Add("loop", visitNode("loop")); err != nil {
		t.Fatal(err)
	}
	if err := e.StartAt("loop"); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect("loop", "loop", nil); err != nil {
		t.Fatal(err)
	}

	_, err := e.Run(context.Background(), "r", TestState{})
	if !IsEngineCode(err, CodeMaxStepsExceeded) {
		t.Errorf("expected MAX_STEPS_EXCEEDED, got %v", err)
	}
}

func TestEngine_Run_NodeError(t *testing.T) {
	st := store.NewMemStore[TestState]()
	boom := errors.New("boom")
	e := New(testReducer, st, nil, Options{MaxSteps: 10})
	if err := e.Add("fail", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Err: boom}
	})); err != nil {
		t.Fatal(err)
	}
	if err := e.StartAt("fail"); err != nil {
		t.Fatal(err)
	}

	_, err := e.Run(context.Background(), "r", TestState{})
	if !errors.Is(err, boom) {
		t.Errorf("node error not propagated: %v", err)
	}
}

func TestEngine_Run_ExplicitRoute(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := New(testReducer, st, nil, Options{MaxSteps: 10})

	if err := e.Add("jump", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Delta: TestState{Visited: []string{"jump"}}, Route: Goto("target")}
	})); err != nil {
		t.Fatal(err)
	}
	if err := e.Add("target", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Delta: TestState{Visited: []string{"target"}}, Route: Stop()}
	})); err != nil {
		t.Fatal(err)
	}
	if err := e.StartAt("jump"); err != nil {
		t.Fatal(err)
	}
	// Deliberately no edges: explicit routes bypass edge evaluation.

	final, err := e.Run(context.Background(), "r", TestState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(final.Visited) != 2 || final.Visited[1] != "target" {
		t.Errorf("visited = %v, want [jump target]", final.Visited)
	}
}

func TestEngine_Run_CheckpointPerNode(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := buildLinear(t, st, nil, "a", "b")

	if _, err := e.Run(context.Background(), "r", TestState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap, err := st.Get(context.Background(), "r")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Last checkpoint reflects both node executions.
	if snap.State.Counter != 2 {
		t.Errorf("counter = %d, want 2", snap.State.Counter)
	}
	if snap.Meta.CurrentStep != "b" {
		t.Errorf("current_step = %s, want node ID fallback b", snap.Meta.CurrentStep)
	}
}

func TestEngine_Run_ContextCancelled(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := buildLinear(t, st, nil, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, "r", TestState{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEngine_Run_CancelPreservesExternalStatus(t *testing.T) {
	st := store.NewMemStore[TestState]()
	ctx, cancel := context.WithCancel(context.Background())

	e := New(testReducer, st, nil, Options{MaxSteps: 10, WorkflowType: "test"})
	// The node simulates an external pause landing while it is in
	// flight: status goes to paused and the run context is cancelled
	// before the node returns.
	if err := e.Add("slow", NodeFunc[TestState](func(nodeCtx context.Context, s TestState) NodeResult[TestState] {
		if err := st.SetStatus(context.Background(), "r", store.StatusPaused); err != nil {
			t.Errorf("SetStatus: %v", err)
		}
		cancel()
		return NodeResult[TestState]{Delta: TestState{Visited: []string{"slow"}}}
	})); err != nil {
		t.Fatal(err)
	}
	if err := e.Add("next", visitNode("next")); err != nil {
		t.Fatal(err)
	}
	if err := e.StartAt("slow"); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect("slow", "next", nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect("next", End, nil); err != nil {
		t.Fatal(err)
	}

	if err := st.Put(context.Background(), "r", TestState{}, store.Metadata{
		WorkflowType: "test", Status: store.StatusRunning,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := e.Run(ctx, "r", TestState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	snap, err := st.Get(context.Background(), "r")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Meta.Status != store.StatusPaused {
		t.Errorf("status = %s, want paused (external status must not be resurrected)", snap.Meta.Status)
	}
	if len(snap.State.Visited) != 1 || snap.State.Visited[0] != "slow" {
		t.Errorf("in-flight node's work missing from checkpoint: %v", snap.State.Visited)
	}
}

func TestEngine_Resume(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := buildLinear(t, st, nil, "a", "b", "c")
	e.OnResume(func(s TestState) string {
		switch len(s.Visited) {
		case 0:
			return "a"
		case 1:
			return "b"
		case 2:
			return "c"
		}
		return End
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := e.Resume(context.Background(), "missing")
		if !IsEngineCode(err, CodeRunNotFound) {
			t.Errorf("expected RUN_NOT_FOUND, got %v", err)
		}
	})

	t.Run("continues from checkpointed state", func(t *testing.T) {
		// Checkpoint as if "a" already ran.
		mid := TestState{Visited: []string{"a"}, Counter: 1}
		if err := st.Put(context.Background(), "resume-1", mid, store.Metadata{
			WorkflowType: "test", Status: store.StatusPaused,
		}); err != nil {
			t.Fatal(err)
		}

		final, err := e.Resume(context.Background(), "resume-1")
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
		want := []string{"a", "b", "c"}
		if len(final.Visited) != len(want) {
			t.Fatalf("visited = %v, want %v", final.Visited, want)
		}
		for i := range want {
			if final.Visited[i] != want[i] {
				t.Errorf("visited[%d] = %s, want %s", i, final.Visited[i], want[i])
			}
		}
	})

	t.Run("already finished", func(t *testing.T) {
		done := TestState{Visited: []string{"a", "b", "c"}, Counter: 3}
		if err := st.Put(context.Background(), "resume-2", done, store.Metadata{
			WorkflowType: "test", Status: store.StatusPaused,
		}); err != nil {
			t.Fatal(err)
		}

		final, err := e.Resume(context.Background(), "resume-2")
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if len(final.Visited) != 3 {
			t.Errorf("finished run re-executed nodes: %v", final.Visited)
		}

		snap, _ := st.Get(context.Background(), "resume-2")
		if snap.Meta.Status != store.StatusCompleted {
			t.Errorf("status = %s, want completed", snap.Meta.Status)
		}
	})
}

func TestEngine_StepLabel(t *testing.T) {
	st := store.NewMemStore[TestState]()
	e := New(testReducer, st, nil, Options{MaxSteps: 10, WorkflowType: "test"})

	if err := e.Add("work", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Delta: TestState{Label: "work_completed"}, Route: Stop()}
	})); err != nil {
		t.Fatal(err)
	}
	if err := e.StartAt("work"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Run(context.Background(), "r", TestState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap, err := st.Get(context.Background(), "r")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Meta.CurrentStep != "work_completed" {
		t.Errorf("current_step = %s, want work_completed", snap.Meta.CurrentStep)
	}
}

func TestEngine_Events(t *testing.T) {
	st := store.NewMemStore[TestState]()
	emitter := &mockEmitter{}
	e := buildLinear(t, st, emitter, "a", "b")

	if _, err := e.Run(context.Background(), "r", TestState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := emitter.messages()
	completed := 0
	finished := false
	for _, m := range msgs {
		if m == "node_completed" {
			completed++
		}
		if m == "run_completed" {
			finished = true
		}
	}
	if completed != 2 {
		t.Errorf("node_completed events = %d, want 2", completed)
	}
	if !finished {
		t.Errorf("run_completed event missing: %v", msgs)
	}
}
