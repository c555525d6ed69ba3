// Package retry runs external operations under a parameterized retry policy.
//
// A Policy combines a maximum attempt count (or none), a backoff function and
// a predicate deciding which failures are worth another attempt. The same
// combinator serves short bounded retries, such as a host refusing to create
// a layer while a modal scope is open, and unbounded persistence writes that
// must not drop user data.
//
// Policies never sleep past context cancellation. When the attempts are used
// up the last failure is returned wrapped, so errors.Is and errors.As still
// see it.
package retry
