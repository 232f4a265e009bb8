// Package peerlink drives one negotiation state machine per remote
// participant and owns the collection of links of a client.
package peerlink

type State int

const (
	StateNew State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateOfferSent:
		return "OFFER_SENT"
	case StateOfferReceived:
		return "OFFER_RECEIVED"
	case StateAnswerSent:
		return "ANSWER_SENT"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func (r Role) String() string {
	if r == RoleOfferer {
		return "offerer"
	}
	return "answerer"
}
