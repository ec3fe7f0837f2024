package model

import "time"

// ContractActionWindow stores aggregated action counts for a contract window.
type ContractActionWindow struct {
	Network         string
	Address         string
	TypeName        string
	WindowSizeSecs  int64
	WindowStart     time.Time
	WindowEnd       time.Time
	ActionCount     uint64
	DecodedCount    uint64
	FirstChainState string
	LastChainState  string
}
