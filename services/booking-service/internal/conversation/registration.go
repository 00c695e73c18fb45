// Package conversation drives the chat registration dialogue: share a contact, then type a
// full name, then the user is registered.
package conversation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

type State int

const (
	AwaitingContact State = iota
	AwaitingName
	Complete
)

func (s State) String() string {
	switch s {
	case AwaitingContact:
		return "awaiting_contact"
	case AwaitingName:
		return "awaiting_name"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

type InputKind int

const (
	InputContact InputKind = iota + 1
	InputText
)

// Input is one user message relevant to registration. A contact card carries the phone
// number and the id of the account it belongs to; a text message carries Text.
type Input struct {
	Kind        InputKind
	Phone       string
	ContactUser int64
	Text        string
}

var (
	ErrUnexpectedInput = errors.New("input not expected in this state")
	ErrForeignContact  = errors.New("contact belongs to another user")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidName     = errors.New("invalid full name")
)

const maxNameLen = 100

// Registration is the state of one user's registration dialogue.
type Registration struct {
	UserID   int64
	State    State
	Phone    string
	FullName string
}

func NewRegistration(userID int64) Registration {
	return Registration{UserID: userID, State: AwaitingContact}
}

// Next applies in and returns the resulting registration. On error the registration is
// returned unchanged so the transport can repeat its prompt.
func (r Registration) Next(in Input) (Registration, error) {
	switch r.State {
	case AwaitingContact:
		if in.Kind != InputContact {
			return r, ErrUnexpectedInput
		}
		if in.ContactUser != 0 && in.ContactUser != r.UserID {
			return r, ErrForeignContact
		}
		phone, ok := normalizePhone(in.Phone)
		if !ok {
			return r, ErrInvalidPhone
		}
		r.Phone = phone
		r.State = AwaitingName
		return r, nil

	case AwaitingName:
		if in.Kind != InputText {
			return r, ErrUnexpectedInput
		}
		name := strings.Join(strings.Fields(in.Text), " ")
		if name == "" || utf8.RuneCountInString(name) > maxNameLen || strings.HasPrefix(name, "/") {
			return r, ErrInvalidName
		}
		r.FullName = name
		r.State = Complete
		return r, nil

	default:
		return r, ErrUnexpectedInput
	}
}

// normalizePhone keeps a leading plus and the digits; contact cards from some clients omit
// the plus, so it is added back.
func normalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || (r == '+' && b.Len() == 0):
		default:
			return "", false
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return "", false
	}
	return "+" + digits, true
}
