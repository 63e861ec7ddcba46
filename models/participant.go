package models

// A session participant.
type Participant struct {
	ID uint32

	// The id of the client the participant is connected with.
	ClientID string
}
