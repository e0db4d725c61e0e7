package outcome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
)

// ContractVersion is the outcome report contract this server speaks.
const ContractVersion = "1"

// payloadValidator validates the declarative constraints on Payload.
var payloadValidator = validator.New()

// Payload is the versioned completion report a worker sends back when it
// finishes a task. Parsing is strict: unknown fields and missing required
// fields are rejected rather than silently defaulted, so contract drift
// surfaces immediately at the boundary.
type Payload struct {
	Version           string     `json:"version"            validate:"required"`
	RunID             string     `json:"run_id"             validate:"required,uuid"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	NeedsFollowUp     bool       `json:"needs_follow_up"`
	RecommendedAction string     `json:"recommended_action" validate:"required,oneof=in_review done requeue_same_task archive"`
	NextPrompt        string     `json:"next_prompt,omitempty"`

	Summary    string   `json:"summary,omitempty"`
	Achieved   []string `json:"achieved,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
	Remaining  []string `json:"remaining,omitempty"`
	Changes    []string `json:"changes,omitempty"`
	Validation []string `json:"validation,omitempty"`
	ModelUsed  string   `json:"model_used,omitempty"`
}

// ParsePayload decodes and validates a raw outcome report. It returns a
// *ValidationError for anything a corrected retry could fix; no state is
// touched on rejection.
func ParsePayload(raw []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, NewValidationError("payload", fmt.Sprintf("malformed outcome payload: %v", err), domain.ErrValidation)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the payload against the contract.
func (p *Payload) Validate() error {
	if p.Version != ContractVersion {
		return NewValidationError(
			"version",
			fmt.Sprintf("expected contract version %q, got %q", ContractVersion, p.Version),
			domain.ErrUnsupportedContractVersion,
		)
	}

	if err := payloadValidator.Struct(p); err != nil {
		return NewValidationError("payload", err.Error(), domain.ErrValidation)
	}

	if _, err := uuid.Parse(p.RunID); err != nil {
		return NewValidationError("run_id", "run_id must be a well-formed UUID", domain.ErrInvalidID)
	}

	if p.NeedsFollowUp &&
		domain.RecommendedAction(p.RecommendedAction) == domain.ActionRequeueSameTask &&
		p.NextPrompt == "" {
		return NewValidationError(
			"next_prompt",
			"next_prompt is required when requeueing with follow-up",
			domain.ErrMissingFollowUpPrompt,
		)
	}

	return nil
}

// Action returns the payload's recommended action as the domain type.
func (p *Payload) Action() domain.RecommendedAction {
	return domain.RecommendedAction(p.RecommendedAction)
}

// Requeue reports whether the payload asks for the task to be re-queued for
// another run.
func (p *Payload) Requeue() bool {
	return p.NeedsFollowUp && p.Action() == domain.ActionRequeueSameTask
}
