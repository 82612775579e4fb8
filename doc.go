// Package srpflow drives an SRP sign-in against a Cognito-style identity
// provider through a hierarchical, event-driven state machine.
//
// An [Engine] is assembled with [Builder] and owns one root machine whose
// state tree is authn, then signin, then srpauth or challenge. Hosts call
// [Engine.SignIn], answer follow-up challenges with [Engine.ConfirmSignIn]
// and observe every committed transition through [Engine.Subscribe].
// Engine methods are safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// The root package is the public surface: [Engine], [Builder], [Config],
// metrics, audit types and sentinel errors. Resolvers live under states/
// and are pure; every side effect runs as an action in internal/actions
// against a shared environment. The identity-provider transport is a
// caller-supplied [idp.Client].
//
// # What this package must NOT do
//
//   - Log or audit passwords, SRP private values, signatures or tokens.
//   - Mutate machine state outside the resolvers.
//   - Retry failed provider calls; a failure ends the attempt.
package srpflow
