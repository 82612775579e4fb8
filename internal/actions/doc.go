// Package actions implements the side effects of the sign-in state tree.
//
// Every action reports back only by dispatching events. Failures are
// reported as exactly one error event of the failing layer, followed by
// authn.CancelSignIn for the attempt, so the root ends in SignInCancelled
// with the cause recorded.
package actions
