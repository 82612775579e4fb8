package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

var (
	// ErrClosed is returned when an event is sent to a closed machine.
	ErrClosed = errors.New("statemachine: closed")
	// ErrNilEvent is returned when a nil event is sent.
	ErrNilEvent = errors.New("statemachine: nil event")
	// ErrResolverPanic wraps a panic recovered from Resolve.
	ErrResolverPanic = errors.New("statemachine: resolver panic")
	// ErrActionPanic wraps a panic recovered from an action.
	ErrActionPanic = errors.New("statemachine: action panic")
)

// Transition describes one committed resolution.
type Transition[S State] struct {
	Seq     uint64
	Event   Event
	From    S
	To      S
	Changed bool
}

// Listener observes committed transitions. It runs on the machine loop and
// must not block; sending events from a listener is allowed and deferred.
type Listener[S State] func(Transition[S])

// Token identifies a subscription.
type Token uint64

type subscription[S State] struct {
	token Token
	fn    Listener[S]
}

// StateMachine serializes event processing for one resolver tree.
type StateMachine[S State, Env any] struct {
	resolver Resolver[S, Env]
	env      Env
	opts     options
	log      *slog.Logger

	mu        sync.Mutex
	current   S
	queue     []Event
	listeners []subscription[S]
	nextToken Token
	seq       uint64
	closed    bool

	wake      chan struct{}
	done      chan struct{}
	loopDone  chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	actions   sync.WaitGroup
	closeOnce sync.Once
}

// New starts a machine in resolver.DefaultState().
func New[S State, Env any](resolver Resolver[S, Env], env Env, opts ...Option) *StateMachine[S, Env] {
	return NewWithState(resolver, env, resolver.DefaultState(), opts...)
}

// NewWithState starts a machine in the given initial state.
func NewWithState[S State, Env any](resolver Resolver[S, Env], env Env, initial S, opts ...Option) *StateMachine[S, Env] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &StateMachine[S, Env]{
		resolver: resolver,
		env:      env,
		opts:     o,
		log:      o.logger.With("machine", o.name),
		current:  initial,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go m.run()
	return m
}

// Send enqueues event and returns immediately. Events sent after Close are
// rejected and logged.
func (m *StateMachine[S, Env]) Send(event Event) {
	_ = m.TrySend(event)
}

// TrySend is Send with the rejection reported to the caller.
func (m *StateMachine[S, Env]) TrySend(event Event) error {
	if event == nil {
		m.log.Warn("rejected nil event")
		return ErrNilEvent
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.log.Warn("rejected event on closed machine", "event", event.Type())
		return ErrClosed
	}
	m.queue = append(m.queue, event)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Current returns the last committed state.
func (m *StateMachine[S, Env]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers fn. Listeners are called in registration order.
func (m *StateMachine[S, Env]) Subscribe(fn Listener[S]) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeLocked(fn)
}

func (m *StateMachine[S, Env]) subscribeLocked(fn Listener[S]) Token {
	m.nextToken++
	m.listeners = append(m.listeners, subscription[S]{token: m.nextToken, fn: fn})
	return m.nextToken
}

// Unsubscribe removes the listener registered under token. Unknown tokens are ignored.
func (m *StateMachine[S, Env]) Unsubscribe(token Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.listeners {
		if sub.token == token {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

// Await blocks until the committed state satisfies pred, ctx is done or the
// machine is closed. The current state is checked first.
func (m *StateMachine[S, Env]) Await(ctx context.Context, pred func(S) bool) (S, error) {
	matched := make(chan S, 1)

	m.mu.Lock()
	if cur := m.current; pred(cur) {
		m.mu.Unlock()
		return cur, nil
	}
	token := m.subscribeLocked(func(tr Transition[S]) {
		if pred(tr.To) {
			select {
			case matched <- tr.To:
			default:
			}
		}
	})
	m.mu.Unlock()
	defer m.Unsubscribe(token)

	select {
	case s := <-matched:
		return s, nil
	case <-ctx.Done():
		var zero S
		return zero, ctx.Err()
	case <-m.loopDone:
		select {
		case s := <-matched:
			return s, nil
		default:
		}
		return m.Current(), ErrClosed
	}
}

// Close stops accepting events, cancels the action context, drains the
// queue without starting new actions and waits for in-flight actions.
func (m *StateMachine[S, Env]) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		m.cancel()
		close(m.done)
		<-m.loopDone
		m.actions.Wait()
	})
}

func (m *StateMachine[S, Env]) run() {
	defer close(m.loopDone)

	for {
		event, ok := m.next()
		if !ok {
			return
		}
		m.process(event)
	}
}

func (m *StateMachine[S, Env]) next() (Event, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			event := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return event, true
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-m.wake:
		case <-m.done:
		}
	}
}

func (m *StateMachine[S, Env]) process(event Event) {
	m.mu.Lock()
	old := m.current
	m.mu.Unlock()

	res, err := m.resolve(old, event)
	if err != nil {
		m.log.Error("resolver failed, keeping state", "event", event.Type(), "state", old.Type(), "error", err)
		res = Stay[S, Env](old)
	}

	changed := !reflect.DeepEqual(old, res.NewState)

	m.mu.Lock()
	m.current = res.NewState
	m.seq++
	tr := Transition[S]{
		Seq:     m.seq,
		Event:   event,
		From:    old,
		To:      res.NewState,
		Changed: changed,
	}
	listeners := append([]subscription[S](nil), m.listeners...)
	closed := m.closed
	m.mu.Unlock()

	if changed {
		m.log.Debug("state changed", "event", event.Type(), "from", old.Type(), "to", res.NewState.Type())
	}

	for _, sub := range listeners {
		m.notify(sub, tr)
	}

	if err != nil {
		m.fail(err)
	}

	for _, action := range res.Actions {
		if action == nil {
			continue
		}
		if closed {
			m.log.Warn("skipped action on closed machine", "action", action.ID())
			continue
		}
		m.launch(action)
	}
}

func (m *StateMachine[S, Env]) resolve(old S, event Event) (res Resolution[S, Env], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrResolverPanic, event.Type(), r)
		}
	}()
	return m.resolver.Resolve(old, event), nil
}

func (m *StateMachine[S, Env]) notify(sub subscription[S], tr Transition[S]) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("listener panic", "token", sub.token, "panic", r)
		}
	}()
	sub.fn(tr)
}

func (m *StateMachine[S, Env]) launch(action Action[Env]) {
	m.actions.Add(1)
	go func() {
		defer m.actions.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%w: %s: %v", ErrActionPanic, action.ID(), r)
				m.log.Error("action panic", "action", action.ID(), "error", err)
				m.fail(err)
			}
		}()

		m.log.Debug("action started", "action", action.ID())
		action.Execute(m.ctx, m, m.env)
	}()
}

func (m *StateMachine[S, Env]) fail(err error) {
	if m.opts.errorEvent == nil {
		return
	}
	if ev := m.opts.errorEvent(err); ev != nil {
		m.Send(ev)
	}
}
