package srpflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/device"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/internal/actions"
	internalaudit "github.com/MrEthical07/srpflow/internal/audit"
	"github.com/MrEthical07/srpflow/internal/rate"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/authn"
	"github.com/MrEthical07/srpflow/states/challenge"
	"github.com/MrEthical07/srpflow/states/signin"
	"github.com/MrEthical07/srpflow/states/srpauth"
	"github.com/google/uuid"
)

// Machine is the root state machine driven by an Engine.
type Machine = statemachine.StateMachine[authn.State, *authenv.Environment]

// Engine is the host-facing sign-in surface. It owns one state machine and
// allows one sign-in attempt at a time. Methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	env      *authenv.Environment
	machine  *Machine
	log      *slog.Logger
	metrics  *Metrics
	audit    *internalaudit.Dispatcher
	journal  *statemachine.Journal[authn.State]
	throttle *rate.Limiter
	now      func() time.Time

	mu              sync.Mutex
	active          string
	submitted       string
	cancelRequested string
	startedAt       time.Time
	closed          bool
}

type engineDeps struct {
	client      idp.Client
	devices     device.Store
	throttle    *rate.Limiter
	logger      *slog.Logger
	auditSink   AuditSink
	contextData func(string) string
	analytics   func() string
	now         func() time.Time
}

const configureTimeout = 5 * time.Second

func newEngine(cfg Config, deps engineDeps) *Engine {
	env := &authenv.Environment{
		UserPool:          cfg.UserPool,
		Client:            deps.client,
		Devices:           deps.devices,
		ContextData:       deps.contextData,
		AnalyticsEndpoint: deps.analytics,
		Logger:            deps.logger,
		Now:               deps.now,
	}

	e := &Engine{
		cfg:      cfg,
		env:      env,
		log:      deps.logger.With("component", "srpflow"),
		metrics:  NewMetrics(cfg.Metrics),
		throttle: deps.throttle,
		now:      deps.now,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     deps.logger,
		}, deps.auditSink),
	}

	e.machine = statemachine.New[authn.State, *authenv.Environment](actions.NewResolver(), env,
		statemachine.WithName("authn"),
		statemachine.WithLogger(deps.logger),
		statemachine.WithErrorEvent(func(err error) statemachine.Event {
			return authn.ThrowAuthError{Cause: err}
		}),
	)
	e.machine.Subscribe(e.observe)
	if cfg.Engine.RecordJournal {
		e.journal = statemachine.NewJournal[authn.State]()
		e.machine.Subscribe(e.journal.Record)
	}

	e.machine.Send(authn.Configure{})
	ctx, cancel := context.WithTimeout(context.Background(), configureTimeout)
	defer cancel()
	if _, err := e.machine.Await(ctx, isConfigured); err != nil {
		e.log.Warn("engine did not reach SignedOut", "error", err)
	}
	return e
}

func isConfigured(s authn.State) bool {
	_, ok := s.(authn.NotConfigured)
	return !ok
}

// SignIn starts an SRP sign-in for username. It returns when the user is
// signed in, the attempt ends, or the provider issues a challenge the host
// must answer with ConfirmSignIn. When ctx ends first the attempt is
// cancelled.
func (e *Engine) SignIn(ctx context.Context, username, password string, metadata map[string]string) (*SignInResult, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	attemptID := uuid.NewString()
	if err := e.begin(attemptID); err != nil {
		return nil, err
	}
	if err := e.throttle.Check(ctx, username); err != nil {
		e.finish(attemptID)
		return nil, e.refused(username, err)
	}

	if err := e.submit(authn.SignInRequested{
		AttemptID: attemptID,
		Username:  username,
		Password:  password,
		Metadata:  metadata,
	}); err != nil {
		e.finish(attemptID)
		return nil, err
	}
	return e.wait(ctx, attemptID, username, nil, e.cfg.Engine.AutoVerifyPasswordChallenge)
}

// ConfirmSignIn answers the challenge the current attempt is waiting on.
// For the password verifier the answer is ignored.
func (e *Engine) ConfirmSignIn(ctx context.Context, answer string, metadata map[string]string) (*SignInResult, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	cur := e.machine.Current()
	e.mu.Unlock()

	st, ok := cur.(authn.SigningIn)
	if !ok {
		return nil, ErrNoChallenge
	}
	if _, _, waiting := waitingChallenge(st); !waiting {
		return nil, ErrNoChallenge
	}

	err := e.machine.TrySend(challenge.VerifyChallengeAnswer{
		AttemptID: st.AttemptID,
		Answer:    answer,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, ErrEngineClosed
	}
	return e.wait(ctx, st.AttemptID, st.Username, cur, false)
}

// CancelSignIn ends the current attempt, if any, and waits until the
// machine has left it. Results of calls still in flight are dropped.
// An attempt whose request has not reached the machine yet is stopped
// before it is sent; its SignIn returns ErrSignInCancelled.
func (e *Engine) CancelSignIn(ctx context.Context) error {
	ctx = orBackground(ctx)

	e.mu.Lock()
	attemptID := e.active
	if attemptID != "" && e.submitted != attemptID {
		e.cancelRequested = attemptID
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if attemptID == "" {
		st, ok := e.machine.Current().(authn.SigningIn)
		if !ok {
			return nil
		}
		attemptID = st.AttemptID
	}

	if err := e.machine.TrySend(authn.CancelSignIn{AttemptID: attemptID, Cause: ErrCancelled}); err != nil {
		return ErrEngineClosed
	}
	_, err := e.machine.Await(ctx, ended(attemptID))
	if errors.Is(err, statemachine.ErrClosed) {
		return ErrEngineClosed
	}
	return err
}

// SignOut returns a signed-in engine to SignedOut. It is a no-op when no
// user is signed in.
func (e *Engine) SignOut(ctx context.Context) error {
	ctx = orBackground(ctx)

	switch e.machine.Current().(type) {
	case authn.SigningIn:
		return ErrSignInInProgress
	case authn.SignedIn:
	default:
		return nil
	}

	if err := e.machine.TrySend(authn.SignOut{}); err != nil {
		return ErrEngineClosed
	}
	_, err := e.machine.Await(ctx, func(s authn.State) bool {
		_, ok := s.(authn.SignedIn)
		return !ok
	})
	if errors.Is(err, statemachine.ErrClosed) {
		return ErrEngineClosed
	}
	return err
}

// State returns the last committed root state.
func (e *Engine) State() authn.State {
	return e.machine.Current()
}

// SignedInUser returns the signed-in user, if any.
func (e *Engine) SignedInUser() (SignedInData, bool) {
	if s, ok := e.machine.Current().(authn.SignedIn); ok {
		return s.Data, true
	}
	return SignedInData{}, false
}

// Subscribe registers fn for every committed transition. fn runs on the
// machine loop and must not block.
func (e *Engine) Subscribe(fn statemachine.Listener[authn.State]) statemachine.Token {
	return e.machine.Subscribe(fn)
}

func (e *Engine) Unsubscribe(token statemachine.Token) {
	e.machine.Unsubscribe(token)
}

// Journal returns the transition journal, or nil when
// Engine.RecordJournal is off.
func (e *Engine) Journal() *statemachine.Journal[authn.State] {
	return e.journal
}

func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close stops the machine, waits for running actions, wipes any SRP
// helper still held by the current state and flushes the audit buffer.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.machine.Close()
	if st, ok := e.machine.Current().(authn.SigningIn); ok {
		closeHelper(st)
	}
	e.audit.Close()
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = orBackground(ctx)
	if _, ok := ctx.Deadline(); ok || e.cfg.Engine.SignInTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.Engine.SignInTimeout)
}

func (e *Engine) begin(attemptID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.active != "" {
		return ErrSignInInProgress
	}
	switch s := e.machine.Current().(type) {
	case authn.SigningIn:
		return ErrSignInInProgress
	case authn.SignedIn:
		return ErrAlreadySignedIn
	case authn.Error:
		return s.Err
	}
	e.active = attemptID
	return nil
}

// submit hands the reserved attempt to the machine unless CancelSignIn
// stopped it first.
func (e *Engine) submit(req authn.SignInRequested) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelRequested == req.AttemptID {
		e.cancelRequested = ""
		return ErrSignInCancelled
	}
	if err := e.machine.TrySend(req); err != nil {
		return ErrEngineClosed
	}
	e.submitted = req.AttemptID
	return nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (e *Engine) finish(attemptID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if attemptID == "" || e.active == attemptID {
		e.active = ""
	}
	if e.cancelRequested == attemptID {
		e.cancelRequested = ""
	}
}

// wait blocks until attemptID reaches an outcome the host has to see.
// answered is the state the caller just answered and is skipped.
// username is the name the attempt was started with and keys the throttle.
func (e *Engine) wait(ctx context.Context, attemptID, username string, answered authn.State, autoVerify bool) (*SignInResult, error) {
	for {
		s, err := e.machine.Await(ctx, func(s authn.State) bool {
			return settled(s, attemptID, answered)
		})
		if err != nil {
			if errors.Is(err, statemachine.ErrClosed) {
				return nil, ErrEngineClosed
			}
			e.abandon(attemptID, err)
			e.finish(attemptID)
			return nil, cancelledError(err)
		}

		switch st := s.(type) {
		case authn.SignedIn:
			e.finish(attemptID)
			e.settleThrottle(ctx, username, nil)
			return &SignInResult{SignedIn: true, NextStep: StepDone, AttemptID: attemptID, Data: st.Data}, nil
		case authn.SignInCancelled:
			e.finish(attemptID)
			e.settleThrottle(ctx, username, st.Err)
			return nil, cancelledError(st.Err)
		case authn.Error:
			e.finish(attemptID)
			return nil, st.Err
		case authn.SigningIn:
			ch, pv, _ := waitingChallenge(st)
			if pv && autoVerify {
				autoVerify = false
				answered = st
				e.machine.Send(challenge.VerifyChallengeAnswer{AttemptID: attemptID})
				continue
			}
			step, ok := StepForChallenge(ch.ChallengeName)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnsupportedChallenge, ch.ChallengeName)
			}
			return &SignInResult{NextStep: step, AttemptID: attemptID, Challenge: ch.Clone()}, nil
		}
	}
}

// abandon cancels attemptID after the caller stopped waiting and gives the
// machine a moment to leave it, so a following SignIn is not rejected.
func (e *Engine) abandon(attemptID string, cause error) {
	if err := e.machine.TrySend(authn.CancelSignIn{AttemptID: attemptID, Cause: fmt.Errorf("%w: %w", ErrCancelled, cause)}); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.machine.Await(ctx, left(attemptID)); err != nil {
		e.log.Warn("cancelled attempt still active", "attempt", attemptID, "error", err)
	}
}

// refused maps a throttle check failure onto the SignIn result.
func (e *Engine) refused(username string, err error) error {
	if !errors.Is(err, rate.ErrRateLimited) {
		e.log.Warn("sign-in throttle unavailable", "username", username, "error", err)
		return fmt.Errorf("sign-in throttle: %w", err)
	}
	e.metrics.Inc(MetricSignInThrottled)
	e.log.Info("sign-in throttled", "username", username)
	e.emit(AuditEvent{
		EventType: AuditSignInThrottled,
		Username:  username,
		Error:     ErrSignInThrottled.Error(),
		ErrorKind: KindThrottled.String(),
	})
	return ErrSignInThrottled
}

// settleThrottle resets the failure counter on success and counts a
// provider rejection. Host and context cancellations are not counted.
func (e *Engine) settleThrottle(ctx context.Context, username string, cause error) {
	if e.throttle == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if cause == nil {
		if err := e.throttle.Reset(ctx, username); err != nil {
			e.log.Warn("sign-in throttle reset failed", "username", username, "error", err)
		}
		return
	}
	if errors.Is(cause, ErrCancelled) {
		return
	}

	count, err := e.throttle.RecordFailure(ctx, username)
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		e.log.Warn("sign-in throttle engaged", "username", username, "failures", count)
	case err != nil:
		e.log.Warn("sign-in throttle record failed", "username", username, "error", err)
	}
}

func cancelledError(cause error) error {
	if cause == nil || cause == ErrCancelled {
		return ErrSignInCancelled
	}
	return fmt.Errorf("%w: %w", ErrSignInCancelled, cause)
}

func settled(s authn.State, attemptID string, answered authn.State) bool {
	if answered != nil && reflect.DeepEqual(s, answered) {
		return false
	}
	switch st := s.(type) {
	case authn.SignedIn, authn.Error:
		return true
	case authn.SignInCancelled:
		return st.AttemptID == attemptID
	case authn.SigningIn:
		if st.AttemptID != attemptID {
			return false
		}
		_, _, waiting := waitingChallenge(st)
		return waiting
	}
	return false
}

// ended matches once attemptID is over, including the case where its
// request is still queued when the cancellation is sent.
func ended(attemptID string) func(authn.State) bool {
	return func(s authn.State) bool {
		switch st := s.(type) {
		case authn.SigningIn:
			return st.AttemptID != attemptID
		case authn.SignInCancelled:
			return st.AttemptID == attemptID
		case authn.SignedIn, authn.Error:
			return true
		}
		return false
	}
}

func left(attemptID string) func(authn.State) bool {
	return func(s authn.State) bool {
		st, ok := s.(authn.SigningIn)
		return !ok || st.AttemptID != attemptID
	}
}

// waitingChallenge returns the challenge st is waiting on. pv is true for
// the SRP password verifier.
func waitingChallenge(st authn.SigningIn) (ch authenv.AuthChallenge, pv bool, ok bool) {
	switch s := st.SignIn.(type) {
	case signin.SigningInWithSRP:
		if r, isPV := s.SRP.(srpauth.ResolvingPasswordVerifier); isPV {
			if w, waiting := r.Challenge.(challenge.WaitingForAnswer); waiting {
				return w.Challenge, true, true
			}
		}
	case signin.ResolvingChallenge:
		if w, waiting := s.Challenge.(challenge.WaitingForAnswer); waiting {
			return w.Challenge, false, true
		}
	}
	return authenv.AuthChallenge{}, false, false
}

func closeHelper(st authn.SigningIn) {
	s, ok := st.SignIn.(signin.SigningInWithSRP)
	if !ok {
		return
	}
	if r, ok := s.SRP.(srpauth.ResolvingPasswordVerifier); ok && r.Helper != nil {
		r.Helper.Close()
	}
}
