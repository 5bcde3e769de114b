package models

// PushEvent is written to a recipient's live channel. The message fields are
// flattened next to the sender profile so clients can render it directly.
type PushEvent struct {
	Message
	FromUser UserProfile `json:"from_user"`
}

// NewPushEvent merges a message with its sender profile.
func NewPushEvent(msg Message, sender UserProfile) PushEvent {
	return PushEvent{Message: msg, FromUser: sender}
}

// IdentityEvent is delivered by the identity provider when an account changes.
type IdentityEvent struct {
	Type string            `json:"type"`
	Data IdentityEventData `json:"data"`
}

// IdentityEventData is the account payload of an IdentityEvent.
type IdentityEventData struct {
	ID             string         `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
	ImageURL       string         `json:"image_url"`
}

// EmailAddress is one address on an identity account.
type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

const (
	IdentityUserCreated = "user.created"
	IdentityUserUpdated = "user.updated"
	IdentityUserDeleted = "user.deleted"
)
