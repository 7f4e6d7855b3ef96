package event

// AuthEventDestination is the topic carrying admin authentication events.
const AuthEventDestination string = "adminauth_events"

// AuthEventConsumerAudit is the consumer group of the audit trail.
const AuthEventConsumerAudit string = "adminauth_events_audit"

// HeaderCorrelationID carries the request correlation id across the broker.
const HeaderCorrelationID string = "cID"

// AuthEventMessage is the wire form of an admin authentication event.
type AuthEventMessage struct {
	ID         int64             `json:"id"`
	Type       string            `json:"type"`
	Email      string            `json:"email"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt int64             `json:"occurred_at"`
}
