package aggregate

import (
	"time"

	"contractScope/internal/model"
)

// Accumulator counts contract actions of one type within one window.
type Accumulator struct {
	Network         string
	Address         string
	TypeName        string
	WindowStart     uint64
	WindowEnd       uint64
	ActionCount     uint64
	DecodedCount    uint64
	FirstTS         uint64
	LastTS          uint64
	FirstChainState string
	LastChainState  string
}

func NewAccumulator(record model.EventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Network:         record.Network,
		Address:         record.Address,
		TypeName:        record.TypeName,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		FirstTS:         record.ReceivedAt,
		LastTS:          record.ReceivedAt,
		FirstChainState: record.ChainState,
		LastChainState:  record.ChainState,
	}
}

// AddEvent folds one contract action into the window.
func (a *Accumulator) AddEvent(record model.EventRecord) {
	if record.ReceivedAt >= a.LastTS {
		a.LastTS = record.ReceivedAt
		a.LastChainState = record.ChainState
	}
	if record.ReceivedAt < a.FirstTS {
		a.FirstTS = record.ReceivedAt
		a.FirstChainState = record.ChainState
	}

	a.ActionCount++
	if record.StateDecoded {
		a.DecodedCount++
	}
}

// Window renders the accumulator as a stored summary row.
func (a *Accumulator) Window() model.ContractActionWindow {
	return model.ContractActionWindow{
		Network:         a.Network,
		Address:         a.Address,
		TypeName:        a.TypeName,
		WindowSizeSecs:  int64(a.WindowEnd - a.WindowStart),
		WindowStart:     time.Unix(int64(a.WindowStart), 0).UTC(),
		WindowEnd:       time.Unix(int64(a.WindowEnd), 0).UTC(),
		ActionCount:     a.ActionCount,
		DecodedCount:    a.DecodedCount,
		FirstChainState: a.FirstChainState,
		LastChainState:  a.LastChainState,
	}
}
