package model

// Known contract action variants reported by the indexer schema.
const (
	ActionDeploy = "ContractDeploy"
	ActionCall   = "ContractCall"
	ActionUpdate = "ContractUpdate"
)

// KnownActions lists the action variants requested by the subscription document.
var KnownActions = []string{ActionDeploy, ActionCall, ActionUpdate}

// ContractEvent is one contract action observed by the indexer.
//
// TypeName is kept as an open string because the remote schema may add variants.
// State holds the hex-encoded ledger state until Enrich replaces it with the
// decoded rendering.
type ContractEvent struct {
	TypeName   string `json:"__typename"`
	Address    string `json:"address"`
	State      string `json:"state"`
	ChainState string `json:"chainState"`
	Decoded    bool   `json:"decoded,omitempty"`
}

// Enrich overwrites the raw state with its decoded rendering. It succeeds once;
// later calls leave the event untouched and return false.
func (e *ContractEvent) Enrich(rendered string) bool {
	if e.Decoded {
		return false
	}
	e.State = rendered
	e.Decoded = true
	return true
}
