package messaging

import (
	"encoding/json"
	"fmt"

	"fund-manager/internal/models"
)

// FundMessage is the envelope carried on response queues. Payload stays raw
// until the receiver has looked at Action.
type FundMessage struct {
	Action            TriggerAction   `json:"action"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	ContinuationToken string          `json:"continuationToken,omitempty"`
}

// NewFundMessage wraps payload for action
func NewFundMessage(action TriggerAction, payload interface{}) (FundMessage, error) {
	if !action.IsSupported() {
		return FundMessage{}, &UnsupportedActionError{Action: action}
	}
	raw, err := Encode(payload)
	if err != nil {
		return FundMessage{}, err
	}
	return FundMessage{Action: action, Payload: raw}, nil
}

// AddedFund returns the fund carried by an AddFund response
func (m FundMessage) AddedFund() (models.Fund, error) {
	if m.Action != AddFund {
		return models.Fund{}, fmt.Errorf("message carries %q, not %q", m.Action, AddFund)
	}
	return DecodeStrict[models.Fund](m.Payload)
}

// DownloadedFunds returns the funds carried by a DownloadFund response
func (m FundMessage) DownloadedFunds() ([]models.Fund, error) {
	if m.Action != DownloadFund {
		return nil, fmt.Errorf("message carries %q, not %q", m.Action, DownloadFund)
	}
	if len(m.Payload) == 0 {
		return []models.Fund{}, nil
	}
	return DecodeStrict[[]models.Fund](m.Payload)
}
