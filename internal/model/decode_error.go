package model

// DecodeError records a state decode failure for an event record.
type DecodeError struct {
	SessionID  string `json:"session_id"`
	Network    string `json:"network"`
	Address    string `json:"address"`
	TypeName   string `json:"type_name"`
	ChainState string `json:"chain_state"`
	Error      string `json:"error"`
}
