// Package jwt issues and reads the access and ID tokens returned by the
// identity provider. Hosts decode claims from tokens they received directly
// from the provider; Manager verifies signatures where a key is available.
package jwt
