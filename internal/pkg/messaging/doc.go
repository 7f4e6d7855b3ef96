// Package messaging hides the event broker behind a small Publish/Subscribe
// API so that producers and consumers do not depend on a concrete client.
//
// A handler that returns nil acknowledges the message. Any other result asks
// the broker for a redelivery where the broker supports it.
package messaging
