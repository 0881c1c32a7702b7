package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DialogueState is the position of a session in the booking conversation.
type DialogueState string

const (
	StateInitial                   DialogueState = "INITIAL"
	StateCollectingMoveSize        DialogueState = "COLLECTING_MOVE_SIZE"
	StateCollectingMoveDate        DialogueState = "COLLECTING_MOVE_DATE"
	StateCostEstimated             DialogueState = "COST_ESTIMATED"
	StateAwaitingServices          DialogueState = "AWAITING_ADDITIONAL_SERVICES"
	StateAwaitingEmail             DialogueState = "AWAITING_EMAIL"
	StateAwaitingName              DialogueState = "AWAITING_NAME"
	StateAwaitingContact           DialogueState = "AWAITING_CONTACT"
	StateAwaitingFinalConfirmation DialogueState = "AWAITING_FINAL_CONFIRMATION"
	StateModifyDetails             DialogueState = "MODIFY_DETAILS"
	StateConfirmed                 DialogueState = "CONFIRMED"
)

var knownStates = map[DialogueState]bool{
	StateInitial:                   true,
	StateCollectingMoveSize:        true,
	StateCollectingMoveDate:        true,
	StateCostEstimated:             true,
	StateAwaitingServices:          true,
	StateAwaitingEmail:             true,
	StateAwaitingName:              true,
	StateAwaitingContact:           true,
	StateAwaitingFinalConfirmation: true,
	StateModifyDetails:             true,
	StateConfirmed:                 true,
}

func (s DialogueState) Valid() bool {
	return knownStates[s]
}

// CollectsSlots reports whether the state is handled by the slot-filling routine.
func (s DialogueState) CollectsSlots() bool {
	switch s {
	case StateInitial, StateCollectingMoveSize, StateCollectingMoveDate, StateModifyDetails:
		return true
	default:
		return false
	}
}

type Channel string

const (
	ChannelText  Channel = "text"
	ChannelVoice Channel = "voice"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one append-only transcript entry.
type Message struct {
	SessionID string    `json:"session_id"`
	Sender    Role      `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Service names accepted in MoveDetail.AdditionalServices, in canonical order.
const (
	ServicePacking = "packing"
	ServiceStorage = "storage"
)

var ServiceVocabulary = []string{ServicePacking, ServiceStorage}

// NormalizeServices keeps known services, drops duplicates and orders them by the vocabulary.
func NormalizeServices(in []string) []string {
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		seen[strings.ToLower(strings.TrimSpace(s))] = true
	}
	out := make([]string, 0, len(ServiceVocabulary))
	for _, s := range ServiceVocabulary {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}

type MoveDetail struct {
	Origin             string        `json:"origin,omitempty"`
	Destination        string        `json:"destination,omitempty"`
	MoveSize           string        `json:"move_size,omitempty"`
	MoveDate           string        `json:"move_date,omitempty"`
	AdditionalServices []string      `json:"additional_services,omitempty"`
	Username           string        `json:"username,omitempty"`
	ContactNo          string        `json:"contact_no,omitempty"`
	Email              string        `json:"email,omitempty"`
	EstimatedCostMin   *float64      `json:"estimated_cost_min,omitempty"`
	EstimatedCostMax   *float64      `json:"estimated_cost_max,omitempty"`
	State              DialogueState `json:"state"`
	CreatedAt          time.Time     `json:"created_at"`
}

// MissingCoreFields lists the unfilled core slots in prompt order.
func (d *MoveDetail) MissingCoreFields() []string {
	if d == nil {
		return []string{"origin", "destination", "move size", "move date"}
	}
	var missing []string
	if strings.TrimSpace(d.Origin) == "" {
		missing = append(missing, "origin")
	}
	if strings.TrimSpace(d.Destination) == "" {
		missing = append(missing, "destination")
	}
	if strings.TrimSpace(d.MoveSize) == "" {
		missing = append(missing, "move size")
	}
	if strings.TrimSpace(d.MoveDate) == "" {
		missing = append(missing, "move date")
	}
	return missing
}

// Session is the persistent record of one conversation.
type Session struct {
	ID               string        `json:"id"`
	Channel          Channel       `json:"channel"`
	AssistantName    string        `json:"assistant_name"`
	State            DialogueState `json:"state"`
	Active           bool          `json:"active"`
	Confirmed        bool          `json:"confirmed"`
	Username         string        `json:"username,omitempty"`
	ContactNo        string        `json:"contact_no,omitempty"`
	MoveDate         string        `json:"move_date,omitempty"`
	EstimatedCostMin *float64      `json:"estimated_cost_min,omitempty"`
	EstimatedCostMax *float64      `json:"estimated_cost_max,omitempty"`
	Detail           *MoveDetail   `json:"move_detail,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

var (
	ErrUnknownState     = errors.New("unknown dialogue state")
	ErrStateMismatch    = errors.New("move detail state differs from session state")
	ErrCostRange        = errors.New("invalid estimated cost range")
	ErrConfirmedActive  = errors.New("confirmed session must be inactive")
	ErrMissingAssistant = errors.New("assistant name is empty")
)

func NewSession(id string, channel Channel, assistantName string, now time.Time) *Session {
	return &Session{
		ID:            id,
		Channel:       channel,
		AssistantName: assistantName,
		State:         StateInitial,
		Active:        true,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// EnsureDetail returns the move detail, creating it on first use.
func (s *Session) EnsureDetail(now time.Time) *MoveDetail {
	if s.Detail == nil {
		s.Detail = &MoveDetail{State: s.State, CreatedAt: now.UTC()}
	}
	return s.Detail
}

// SetState moves the session and its move detail together.
func (s *Session) SetState(next DialogueState) {
	s.State = next
	if s.Detail != nil {
		s.Detail.State = next
	}
}

// SetEstimate records the cost range on both the session and its move detail.
func (s *Session) SetEstimate(minCost, maxCost float64) {
	lo, hi := minCost, maxCost
	s.EstimatedCostMin, s.EstimatedCostMax = &lo, &hi
	if s.Detail != nil {
		dlo, dhi := minCost, maxCost
		s.Detail.EstimatedCostMin, s.Detail.EstimatedCostMax = &dlo, &dhi
	}
}

func (s *Session) SetUsername(name string) {
	s.Username = name
	if s.Detail != nil {
		s.Detail.Username = name
	}
}

func (s *Session) SetContact(contact string) {
	s.ContactNo = contact
	if s.Detail != nil {
		s.Detail.ContactNo = contact
	}
}

func (s *Session) SetMoveDate(date string) {
	s.MoveDate = date
	if s.Detail != nil {
		s.Detail.MoveDate = date
	}
}

// Confirm closes the session as a successful booking.
func (s *Session) Confirm() {
	s.Confirmed = true
	s.Active = false
	s.SetState(StateConfirmed)
}

func (s *Session) Deactivate() {
	s.Active = false
}

// Ended reports whether the session no longer accepts utterances.
func (s *Session) Ended() bool {
	return !s.Active && s.State != StateConfirmed
}

// Idle reports whether an active session has seen no activity since cutoff.
func (s *Session) Idle(cutoff time.Time) bool {
	return s.Active && s.UpdatedAt.Before(cutoff)
}

func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrInvalidSession
	}
	if strings.TrimSpace(s.AssistantName) == "" {
		return ErrMissingAssistant
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownState, s.State)
	}
	if s.Detail != nil && s.Detail.State != s.State {
		return fmt.Errorf("%w: session=%s detail=%s", ErrStateMismatch, s.State, s.Detail.State)
	}
	if err := validateRange(s.EstimatedCostMin, s.EstimatedCostMax); err != nil {
		return err
	}
	if s.Confirmed && (s.Active || s.State != StateConfirmed) {
		return ErrConfirmedActive
	}
	return nil
}

func validateRange(lo, hi *float64) error {
	if (lo == nil) != (hi == nil) {
		return fmt.Errorf("%w: only one bound set", ErrCostRange)
	}
	if lo != nil && *lo > *hi {
		return fmt.Errorf("%w: min %.2f > max %.2f", ErrCostRange, *lo, *hi)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.EstimatedCostMin = cloneFloat(s.EstimatedCostMin)
	out.EstimatedCostMax = cloneFloat(s.EstimatedCostMax)
	if s.Detail != nil {
		d := *s.Detail
		d.AdditionalServices = append([]string(nil), s.Detail.AdditionalServices...)
		d.EstimatedCostMin = cloneFloat(s.Detail.EstimatedCostMin)
		d.EstimatedCostMax = cloneFloat(s.Detail.EstimatedCostMax)
		out.Detail = &d
	}
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
