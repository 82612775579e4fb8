// Package internal holds the parts of srpflow that are private to the
// module.
//
// # Sub-packages
//
//   - actions: side effects for every state layer, one per provider call
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed failed sign-in counters
//   - security: configuration report for operators
//
// # What this package must NOT do
//
//   - Export types that appear in the public srpflow API except through
//     root aliases.
package internal
