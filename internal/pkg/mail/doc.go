// Package mail sends email messages.
//
// Use cases depend on the Mail interface and Message payload. SMTP talks to a
// relay and honors the context deadline for the whole exchange; Outbox keeps
// messages in memory for local runs and tests.
package mail
