package statemachine

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type testEnv struct {
	panicAction bool
}

type counterState struct {
	Name  string
	Count int
	Err   string
}

func (s counterState) Type() string { return s.Name }

type startEvent struct{}

func (startEvent) Type() string { return "start" }

type tickEvent struct{ By int }

func (tickEvent) Type() string { return "tick" }

type stopEvent struct{}

func (stopEvent) Type() string { return "stop" }

type boomEvent struct{}

func (boomEvent) Type() string { return "boom" }

type failEvent struct{ Cause error }

func (failEvent) Type() string { return "fail" }
func (e failEvent) Err() error { return e.Cause }

type counterResolver struct{}

func (counterResolver) DefaultState() counterState { return counterState{Name: "idle"} }

func (counterResolver) Resolve(old counterState, event Event) Resolution[counterState, *testEnv] {
	switch ev := event.(type) {
	case boomEvent:
		panic("boom")
	case failEvent:
		return Stay[counterState, *testEnv](counterState{Name: "failed", Count: old.Count, Err: ev.Cause.Error()})
	}

	switch old.Name {
	case "idle":
		if _, ok := event.(startEvent); ok {
			tick := NewAction("tick", func(ctx context.Context, id string, d EventDispatcher, env *testEnv) {
				if env.panicAction {
					panic("action exploded")
				}
				d.Send(tickEvent{By: 1})
			})
			return Move(counterState{Name: "running"}, tick)
		}
	case "running":
		switch ev := event.(type) {
		case tickEvent:
			return Move[counterState, *testEnv](counterState{Name: "running", Count: old.Count + ev.By})
		case stopEvent:
			return Move[counterState, *testEnv](counterState{Name: "stopped", Count: old.Count})
		}
	}
	return Stay[counterState, *testEnv](old)
}

func newTestMachine(t *testing.T, env *testEnv) *StateMachine[counterState, *testEnv] {
	t.Helper()
	m := New[counterState, *testEnv](counterResolver{}, env,
		WithName("counter"),
		WithErrorEvent(func(err error) Event { return failEvent{Cause: err} }),
	)
	t.Cleanup(m.Close)
	return m
}

func awaitName(t *testing.T, m *StateMachine[counterState, *testEnv], name string) counterState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.Await(ctx, func(s counterState) bool { return s.Name == name })
	if err != nil {
		t.Fatalf("await %q failed: %v (current %+v)", name, err, m.Current())
	}
	return s
}

// eventually polls cond because Current is committed before listeners run.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestUnhandledEventIsIdentity(t *testing.T) {
	res := counterResolver{}.Resolve(counterState{Name: "idle"}, tickEvent{By: 5})
	if !reflect.DeepEqual(res.NewState, counterState{Name: "idle"}) {
		t.Fatalf("expected unchanged state, got %+v", res.NewState)
	}
	if len(res.Actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(res.Actions))
	}
}

func TestActionEventObservedAfterSpawningTransition(t *testing.T) {
	m := newTestMachine(t, &testEnv{})

	var (
		mu   sync.Mutex
		seen []string
	)
	m.Subscribe(func(tr Transition[counterState]) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr.Event.Type()+":"+tr.To.Name)
	})

	m.Send(startEvent{})
	awaitCount(t, m, 1)
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"start:running", "tick:running"}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("unexpected transition order: got %v want %v", seen, want)
	}
}

func awaitCount(t *testing.T, m *StateMachine[counterState, *testEnv], n int) counterState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.Await(ctx, func(s counterState) bool { return s.Count >= n })
	if err != nil {
		t.Fatalf("await count %d failed: %v", n, err)
	}
	return s
}

func TestSendPreservesFIFOOrder(t *testing.T) {
	m := NewWithState[counterState, *testEnv](counterResolver{}, &testEnv{}, counterState{Name: "running"})
	defer m.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	m.Subscribe(func(tr Transition[counterState]) {
		mu.Lock()
		got = append(got, tr.To.Count)
		mu.Unlock()
	})

	for i := 1; i <= 100; i++ {
		m.Send(tickEvent{By: 1})
	}
	awaitCount(t, m, 100)
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	})

	mu.Lock()
	defer mu.Unlock()
	for i, c := range got {
		if c != i+1 {
			t.Fatalf("event %d observed count %d", i, c)
		}
	}
}

func TestListenersNotifiedInRegistrationOrder(t *testing.T) {
	m := NewWithState[counterState, *testEnv](counterResolver{}, &testEnv{}, counterState{Name: "running"})
	defer m.Close()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 5; i++ {
		i := i
		m.Subscribe(func(Transition[counterState]) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	m.Send(tickEvent{By: 1})
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(order, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("unexpected listener order %v", order)
	}
}

func TestReentrantSendFromListenerIsDeferred(t *testing.T) {
	m := NewWithState[counterState, *testEnv](counterResolver{}, &testEnv{}, counterState{Name: "running"})
	defer m.Close()

	m.Subscribe(func(tr Transition[counterState]) {
		if tr.To.Count < 3 {
			m.Send(tickEvent{By: 1})
		}
	})
	m.Send(tickEvent{By: 1})

	s := awaitCount(t, m, 3)
	if s.Count != 3 {
		t.Fatalf("expected count 3, got %d", s.Count)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	m := NewWithState[counterState, *testEnv](counterResolver{}, &testEnv{}, counterState{Name: "running"})
	defer m.Close()

	var mu sync.Mutex
	calls := 0
	token := m.Subscribe(func(Transition[counterState]) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	m.Send(tickEvent{By: 1})
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})
	m.Unsubscribe(token)
	m.Send(tickEvent{By: 1})
	awaitCount(t, m, 2)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
}

func TestResolverPanicBecomesErrorEvent(t *testing.T) {
	m := newTestMachine(t, &testEnv{})

	var (
		mu          sync.Mutex
		transitions []Transition[counterState]
	)
	m.Subscribe(func(tr Transition[counterState]) {
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	})

	m.Send(boomEvent{})
	s := awaitName(t, m, "failed")
	if s.Err == "" {
		t.Fatal("expected error message on failed state")
	}
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 {
		t.Fatalf("expected identity commit plus error event, got %d transitions", len(transitions))
	}
	if transitions[0].Changed {
		t.Fatal("panicking resolution must commit the identity")
	}
}

func TestActionPanicBecomesErrorEvent(t *testing.T) {
	m := newTestMachine(t, &testEnv{panicAction: true})

	m.Send(startEvent{})
	s := awaitName(t, m, "failed")
	if s.Err == "" {
		t.Fatal("expected action panic to be reported")
	}
}

func TestClosedMachineRejectsEvents(t *testing.T) {
	m := New[counterState, *testEnv](counterResolver{}, &testEnv{})
	m.Close()
	m.Close()

	if err := m.TrySend(startEvent{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := m.TrySend(nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}

	_, err := m.Await(context.Background(), func(s counterState) bool { return s.Name == "running" })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Await, got %v", err)
	}
}

func TestAwaitHonoursContext(t *testing.T) {
	m := newTestMachine(t, &testEnv{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Await(ctx, func(s counterState) bool { return s.Name == "never" }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type parentState struct {
	Child counterState
}

func (parentState) Type() string { return "parent" }

func TestDelegateLiftsChildActions(t *testing.T) {
	res := Delegate[parentState, counterState, *testEnv](
		counterResolver{},
		counterState{Name: "idle"},
		startEvent{},
		func(c counterState) parentState { return parentState{Child: c} },
	)
	if res.NewState.Child.Name != "running" {
		t.Fatalf("expected wrapped child running, got %+v", res.NewState)
	}
	if len(res.Actions) != 1 {
		t.Fatalf("expected child action lifted, got %d", len(res.Actions))
	}
}

func TestReplayMatchesLiveRun(t *testing.T) {
	m := NewWithState[counterState, *testEnv](counterResolver{}, &testEnv{}, counterState{Name: "running"})
	defer m.Close()

	journal := NewJournal[counterState]()
	m.Subscribe(journal.Record)

	m.Send(tickEvent{By: 2})
	m.Send(tickEvent{By: 3})
	m.Send(stopEvent{})
	m.Send(tickEvent{By: 7})
	live := awaitName(t, m, "stopped")

	eventually(t, func() bool { return len(journal.Entries()) == 4 })

	replayed, actions := Replay[counterState, *testEnv](counterResolver{}, counterState{Name: "running"}, journal.Events()...)
	if !reflect.DeepEqual(replayed, m.Current()) || replayed.Count != live.Count {
		t.Fatalf("replay diverged: live %+v replay %+v", m.Current(), replayed)
	}
	if len(actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(actions))
	}

	var buf bytes.Buffer
	if err := journal.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}
	entries, err := ReadJournalYAML(&buf)
	if err != nil {
		t.Fatalf("ReadJournalYAML failed: %v", err)
	}
	if len(entries) != 4 || entries[2].To != "stopped" || entries[3].Changed {
		t.Fatalf("unexpected decoded journal %+v", entries)
	}
}
