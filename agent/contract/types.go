package contract

import (
	"strings"
	"time"

	statex "github.com/tanpawarit/movebot/agent/state"
)

const DefaultLanguage = "en"

type AgentType string

const (
	AgentTypeExtractor AgentType = "extractor"
	AgentTypeResponder AgentType = "responder"
)

// Extraction is the structured view of one utterance. Nil fields were not mentioned.
type Extraction struct {
	Origin             *string  `json:"origin"`
	Destination        *string  `json:"destination"`
	MoveSize           *string  `json:"move_size"`
	MoveDate           *string  `json:"move_date"`
	AdditionalServices []string `json:"additional_services"`
	Username           *string  `json:"username"`
	ContactNo          *string  `json:"contact_no"`
}

// HasCoreField reports whether any of origin, destination, size or date was mentioned.
func (e Extraction) HasCoreField() bool {
	for _, v := range []*string{e.Origin, e.Destination, e.MoveSize, e.MoveDate} {
		if present(v) {
			return true
		}
	}
	return false
}

func present(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}

type ReplyRequest struct {
	AssistantName string           `json:"assistant_name"`
	Language      string           `json:"language"`
	History       []statex.Message `json:"history"`
	Text          string           `json:"text"`
}

type Quote struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	MoveSize    string   `json:"move_size"`
	Services    []string `json:"additional_services,omitempty"`
	MoveDate    string   `json:"move_date,omitempty"`
}

type Estimate struct {
	DistanceMiles float64 `json:"distance_miles"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
}

type ServiceCosts struct {
	Packing float64 `json:"packing"`
	Storage float64 `json:"storage"`
}

type BookingEvent struct {
	SessionID          string    `json:"session_id"`
	Channel            string    `json:"channel"`
	Origin             string    `json:"origin"`
	Destination        string    `json:"destination"`
	MoveSize           string    `json:"move_size"`
	MoveDate           string    `json:"move_date"`
	AdditionalServices []string  `json:"additional_services,omitempty"`
	Email              string    `json:"email,omitempty"`
	Username           string    `json:"username"`
	ContactNo          string    `json:"contact_no"`
	EstimatedCostMin   float64   `json:"estimated_cost_min"`
	EstimatedCostMax   float64   `json:"estimated_cost_max"`
	ConfirmedAt        time.Time `json:"confirmed_at"`
}
