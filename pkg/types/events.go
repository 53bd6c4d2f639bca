package types

import "encoding/json"

// SigningStage is a state of the per-request signing state machine:
// received -> validating -> {rejected | validated} -> signing -> {signed | failed}
type SigningStage string

const (
	StageReceived   SigningStage = "received"
	StageValidating SigningStage = "validating"
	StageRejected   SigningStage = "rejected"
	StageValidated  SigningStage = "validated"
	StageSigning    SigningStage = "signing"
	StageSigned     SigningStage = "signed"
	StageFailed     SigningStage = "failed"
)

func (s SigningStage) IsTerminal() bool {
	return s == StageRejected || s == StageSigned || s == StageFailed
}

var allowedTransitions = map[SigningStage][]SigningStage{
	StageReceived:   {StageValidating},
	StageValidating: {StageRejected, StageValidated},
	StageValidated:  {StageSigning},
	StageSigning:    {StageSigned, StageFailed},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s SigningStage) CanTransition(next SigningStage) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DataPreviewLength is how many characters of the data payload are kept in diagnostics.
const DataPreviewLength = 20

// SigningEvent is the diagnostic record of one request. It never holds key material.
type SigningEvent struct {
	Stage         SigningStage      `json:"stage"`
	Path          []SigningStage    `json:"path"`
	Fields        map[string]string `json:"fields,omitempty"`
	ErrorKind     ErrorKind         `json:"errorKind,omitempty"`
	MissingFields []string          `json:"missingFields,omitempty"`
	From          string            `json:"from,omitempty"`
	TxHash        string            `json:"txHash,omitempty"`
	EnvelopeBytes int               `json:"envelopeBytes,omitempty"`
}

func NewSigningEvent() *SigningEvent {
	return &SigningEvent{
		Stage: StageReceived,
		Path:  []SigningStage{StageReceived},
	}
}

// Advance moves the event to next. Illegal transitions are ignored and reported as false.
func (e *SigningEvent) Advance(next SigningStage) bool {
	if !e.Stage.CanTransition(next) {
		return false
	}
	e.Stage = next
	e.Path = append(e.Path, next)
	return true
}

// PreviewFields renders each present field for logging, truncating the data payload.
func PreviewFields(tf *TransactionFields) map[string]string {
	preview := make(map[string]string, len(RequiredFields))
	for _, name := range RequiredFields {
		raw := tf.Get(name)
		if raw == nil {
			continue
		}
		value := rawText(raw)
		if name == FieldData {
			value = truncate(value, DataPreviewLength)
		}
		preview[name] = value
	}
	return preview
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
