package model

import (
	"encoding/json"
)

// EventRecord is the normalized representation of an emitted event for sinks.
type EventRecord struct {
	SessionID    string `json:"session_id"`
	Network      string `json:"network"`
	Contract     string `json:"contract"`
	Kind         string `json:"kind"`
	TypeName     string `json:"type_name,omitempty"`
	Address      string `json:"address,omitempty"`
	State        string `json:"state,omitempty"`
	StateDecoded bool   `json:"state_decoded"`
	ChainState   string `json:"chain_state,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Error        string `json:"error,omitempty"`
	ReceivedAt   uint64 `json:"received_at"`
	IngestedAt   string `json:"ingested_at"`
}

// IsContractAction reports whether the record carries a contract action.
func (r EventRecord) IsContractAction() bool {
	return r.Kind == string(EventContract)
}

// MarshalJSON ensures EventRecord is encoded with stable field names.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	type Alias EventRecord
	return json.Marshal(Alias(r))
}

// UnmarshalJSON decodes an EventRecord from JSON.
func (r *EventRecord) UnmarshalJSON(data []byte) error {
	type Alias EventRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = EventRecord(a)
	return nil
}
