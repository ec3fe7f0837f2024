package watch

import (
	"time"

	"contractScope/internal/model"
)

// buildEventRecord converts an emitted event into a sink record. time_left
// ticks are progress only and yield false.
func buildEventRecord(network model.NetworkID, contract string, ev model.Event, receivedAt, ingestedAt time.Time) (model.EventRecord, bool) {
	if ev.Kind == model.EventTimeLeft {
		return model.EventRecord{}, false
	}

	record := model.EventRecord{
		SessionID:  ev.SessionID,
		Network:    network.String(),
		Contract:   contract,
		Kind:       string(ev.Kind),
		ReceivedAt: uint64(receivedAt.Unix()),
		IngestedAt: ingestedAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.Contract != nil {
		record.TypeName = ev.Contract.TypeName
		record.Address = ev.Contract.Address
		record.State = ev.Contract.State
		record.StateDecoded = ev.Contract.Decoded
		record.ChainState = ev.Contract.ChainState
	}
	if ev.Termination != nil {
		record.Reason = string(ev.Termination.Reason)
		record.Error = ev.Termination.Error
	}
	return record, true
}
