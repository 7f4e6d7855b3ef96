// Package clock provides a tiny time abstraction.
//
// Expiry, cooldown and lockout checks depend on the Clocker interface instead
// of calling time.Now() directly. Tests drive a Manual clock to step across
// boundaries deterministically.
package clock
