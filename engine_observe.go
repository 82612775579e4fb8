package srpflow

import (
	"context"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/authn"
	"github.com/MrEthical07/srpflow/states/srpauth"
)

// observe derives metrics, audit records and helper cleanup from committed
// transitions. It runs on the machine loop.
func (e *Engine) observe(tr statemachine.Transition[authn.State]) {
	e.metrics.Inc(MetricEventsProcessed)
	if ev, ok := tr.Event.(statemachine.ErrorEvent); ok && ev.Err() != nil {
		e.metrics.Inc(MetricErrorEvents)
	}

	if !tr.Changed {
		e.metrics.Inc(MetricIdentityResolutions)
		if stale(tr.From, tr.Event) {
			e.metrics.Inc(MetricStaleEventsDropped)
			e.log.Debug("dropped stale event", "event", tr.Event.Type(), "state", tr.From.Type())
			if ev, ok := tr.Event.(srpauth.RespondPasswordVerifier); ok && ev.Helper != nil {
				ev.Helper.Close()
			}
		}
		return
	}

	from, wasSigningIn := tr.From.(authn.SigningIn)

	switch to := tr.To.(type) {
	case authn.SigningIn:
		if !wasSigningIn || from.AttemptID != to.AttemptID {
			e.attemptStarted(to)
		}
		e.challengeIssued(tr.From, to)
	case authn.SignedIn:
		if wasSigningIn {
			e.attemptSucceeded(from, to)
		}
	case authn.SignInCancelled:
		if wasSigningIn {
			e.attemptCancelled(from, to)
		}
	case authn.SignedOut:
		if signedIn, ok := tr.From.(authn.SignedIn); ok {
			e.metrics.Inc(MetricSignedOut)
			e.emit(AuditEvent{
				EventType: AuditSignedOut,
				Username:  signedIn.Data.Username,
				UserID:    signedIn.Data.UserID,
				Success:   true,
			})
		}
	case authn.Error:
		e.finish("")
	}

	if wasSigningIn {
		if to, still := tr.To.(authn.SigningIn); !still || to.AttemptID != from.AttemptID {
			closeHelper(from)
			e.finish(from.AttemptID)
		}
	}
}

// stale reports whether event addresses an attempt the machine is not
// running: a finished one, or another than the current one.
func stale(from authn.State, event statemachine.Event) bool {
	if st, ok := from.(authn.SigningIn); ok {
		return authn.Stale(st.AttemptID, event)
	}
	scoped, ok := event.(authenv.AttemptScoped)
	return ok && scoped.Attempt() != ""
}

func (e *Engine) attemptStarted(to authn.SigningIn) {
	e.mu.Lock()
	e.startedAt = e.now()
	e.mu.Unlock()

	e.metrics.Inc(MetricSignInStarted)
	e.log.Info("sign-in started", "attempt", to.AttemptID, "username", to.Username)
	e.emit(AuditEvent{
		EventType: AuditSignInStarted,
		AttemptID: to.AttemptID,
		Username:  to.Username,
		Success:   true,
	})
}

func (e *Engine) challengeIssued(from authn.State, to authn.SigningIn) {
	ch, _, ok := waitingChallenge(to)
	if !ok {
		return
	}
	if prev, isSigningIn := from.(authn.SigningIn); isSigningIn && prev.AttemptID == to.AttemptID {
		if old, _, waiting := waitingChallenge(prev); waiting && old.ChallengeName == ch.ChallengeName && old.Session == ch.Session {
			return
		}
	}

	e.metrics.Inc(MetricChallengeIssued)
	e.log.Debug("challenge waiting for answer", "attempt", to.AttemptID, "challenge", ch.ChallengeName)
	e.emit(AuditEvent{
		EventType: AuditSignInChallenge,
		AttemptID: to.AttemptID,
		Username:  to.Username,
		Challenge: ch.ChallengeName,
		Success:   true,
	})
}

func (e *Engine) attemptSucceeded(from authn.SigningIn, to authn.SignedIn) {
	e.observeLatency()
	e.metrics.Inc(MetricSignInSuccess)
	e.log.Info("sign-in succeeded", "attempt", from.AttemptID, "username", to.Data.Username)
	e.emit(AuditEvent{
		EventType: AuditSignInSucceeded,
		AttemptID: from.AttemptID,
		Username:  to.Data.Username,
		UserID:    to.Data.UserID,
		Success:   true,
	})
}

func (e *Engine) attemptCancelled(from authn.SigningIn, to authn.SignInCancelled) {
	e.observeLatency()
	e.metrics.Inc(MetricSignInCancelled)

	event := AuditEvent{
		EventType: AuditSignInCancelled,
		AttemptID: from.AttemptID,
		Username:  from.Username,
	}
	if to.Err != nil {
		event.Error = to.Err.Error()
		event.ErrorKind = authenv.Kind(to.Err).String()
	}
	e.log.Info("sign-in cancelled", "attempt", from.AttemptID, "username", from.Username, "kind", event.ErrorKind, "error", to.Err)
	e.emit(event)
}

func (e *Engine) observeLatency() {
	if !e.metrics.LatencyEnabled() {
		return
	}
	e.mu.Lock()
	started := e.startedAt
	e.mu.Unlock()
	if started.IsZero() {
		return
	}
	e.metrics.Observe(MetricSignInLatency, e.now().Sub(started))
}

// emit hands event to the audit dispatcher. With DropIfFull off a full
// buffer stalls the machine loop until the sink catches up.
func (e *Engine) emit(event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}
	e.audit.Emit(context.Background(), event)
}
