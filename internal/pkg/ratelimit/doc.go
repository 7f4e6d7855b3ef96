// Package ratelimit implements the per-principal abuse guard: request
// cooldown, a rolling request quota, a failed-attempt quota and a time-boxed
// lockout that heals itself once it elapses.
//
// The Guard holds the rules and a Store holds the records. Records always live
// on the verifying side (Redis or process memory), never with the requester.
package ratelimit
