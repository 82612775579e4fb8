// Package security summarises the security-relevant parts of an engine
// configuration for startup logging and operator review.
//
// # What this package must NOT do
//
//   - Read secrets back out. The report records whether a secret is set,
//     never its value.
package security
