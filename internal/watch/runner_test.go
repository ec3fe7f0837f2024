package watch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"contractScope/internal/indexer"
	"contractScope/internal/model"
)

type fakeSubscriber struct {
	mu    sync.Mutex
	calls map[string]int
	run   func(ctx context.Context, call int, address string, out chan<- model.Event) error
}

func (f *fakeSubscriber) SubscribeToContract(ctx context.Context, address string, out chan<- model.Event) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[address]++
	call := f.calls[address]
	f.mu.Unlock()

	defer close(out)
	return f.run(ctx, call, address, out)
}

func (f *fakeSubscriber) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

type memorySink struct {
	mu      sync.Mutex
	records []model.EventRecord
	err     error
}

func (m *memorySink) PutEventBatch(_ context.Context, records []model.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memorySink) snapshot() []model.EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EventRecord(nil), m.records...)
}

func scriptedSession(ctx context.Context, call int, address string, out chan<- model.Event) error {
	id := fmt.Sprintf("%s-%d", address, call)
	out <- model.NewTimeLeft(id, 3*time.Second)
	out <- model.NewContractEvent(id, model.ContractEvent{TypeName: model.ActionCall, Address: address, State: "ContractState {}", ChainState: "cs", Decoded: true})
	out <- model.NewDisconnect(id)
	out <- model.NewTerminated(id, model.ReasonTimeout, nil)
	return nil
}

func TestRunnerPersistsEventsPerAddress(t *testing.T) {
	sub := &fakeSubscriber{run: scriptedSession}
	sink := &memorySink{}
	runner := NewRunner(RunConfig{
		Network:   model.NetworkTestNet,
		Addresses: []string{"abc", " def ", "abc"},
		Buffer:    8,
	}, sub, sink, nil)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := sink.snapshot()
	if len(records) != 6 {
		t.Fatalf("expected 6 records, got %d: %+v", len(records), records)
	}

	kinds := map[string][]string{}
	for _, record := range records {
		kinds[record.Contract] = append(kinds[record.Contract], record.Kind)
		if record.Network != "testnet" || record.SessionID != record.Contract+"-1" {
			t.Fatalf("record not stamped: %+v", record)
		}
	}
	want := []string{"contract_event", "disconnect", "terminated"}
	for _, address := range []string{"abc", "def"} {
		if !reflect.DeepEqual(kinds[address], want) {
			t.Fatalf("%s kinds mismatch: %+v != %+v", address, kinds[address], want)
		}
		if n := sub.callCount(address); n != 1 {
			t.Fatalf("%s subscribed %d times", address, n)
		}
	}
}

func TestRunnerRetriesConnectFailures(t *testing.T) {
	sub := &fakeSubscriber{run: func(ctx context.Context, call int, address string, out chan<- model.Event) error {
		if call < 3 {
			return fmt.Errorf("%w: refused", indexer.ErrConnect)
		}
		return scriptedSession(ctx, call, address, out)
	}}
	sink := &memorySink{}
	runner := NewRunner(RunConfig{
		Network:      model.NetworkTestNet,
		Addresses:    []string{"abc"},
		Buffer:       8,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, sub, sink, nil)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := sub.callCount("abc"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
	if n := len(sink.snapshot()); n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}
}

func TestRunnerDoesNotRetryProtocolErrors(t *testing.T) {
	sub := &fakeSubscriber{run: func(ctx context.Context, call int, address string, out chan<- model.Event) error {
		out <- model.NewTerminated("s", model.ReasonProtocolError, indexer.ErrProtocol)
		return fmt.Errorf("%w: bad payload", indexer.ErrProtocol)
	}}
	runner := NewRunner(RunConfig{
		Network:      model.NetworkTestNet,
		Addresses:    []string{"abc"},
		Buffer:       8,
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
	}, sub, &memorySink{}, nil)

	err := runner.Run(context.Background())
	if !errors.Is(err, indexer.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if n := sub.callCount("abc"); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}

func TestRunnerResubscribesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &fakeSubscriber{run: func(sctx context.Context, call int, address string, out chan<- model.Event) error {
		if call == 3 {
			cancel()
		}
		return scriptedSession(sctx, call, address, out)
	}}
	sink := &memorySink{}
	runner := NewRunner(RunConfig{
		Network:     model.NetworkTestNet,
		Addresses:   []string{"abc"},
		Buffer:      8,
		Resubscribe: true,
	}, sub, sink, nil)

	if err := runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := sub.callCount("abc"); n != 3 {
		t.Fatalf("expected 3 sessions, got %d", n)
	}

	sessions := map[string]struct{}{}
	for _, record := range sink.snapshot() {
		sessions[record.SessionID] = struct{}{}
	}
	var ids []string
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if want := []string{"abc-1", "abc-2", "abc-3"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("session ids mismatch: %+v != %+v", ids, want)
	}
}

func TestRunnerStoreFailureEndsSession(t *testing.T) {
	sub := &fakeSubscriber{run: func(ctx context.Context, call int, address string, out chan<- model.Event) error {
		out <- model.NewContractEvent("s", model.ContractEvent{TypeName: model.ActionDeploy, State: "00"})
		<-ctx.Done()
		out <- model.NewDisconnect("s")
		return nil
	}}
	sink := &memorySink{err: errors.New("disk full")}
	runner := NewRunner(RunConfig{
		Network:   model.NetworkTestNet,
		Addresses: []string{"abc"},
		Buffer:    8,
	}, sub, sink, nil)

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil || !errors.Is(err, sink.err) {
			t.Fatalf("expected store error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not stop after store failure")
	}
}

func TestRunnerValidatesConfig(t *testing.T) {
	sub := &fakeSubscriber{run: scriptedSession}
	cases := []RunConfig{
		{Addresses: []string{"abc"}},
		{Buffer: 1, Addresses: []string{" "}},
	}
	for _, cfg := range cases {
		if err := NewRunner(cfg, sub, &memorySink{}, nil).Run(context.Background()); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
	if err := NewRunner(RunConfig{Buffer: 1, Addresses: []string{"abc"}}, nil, &memorySink{}, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil subscriber")
	}
}

func TestBuildEventRecord(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := buildEventRecord(model.NetworkTestNet, "abc", model.NewTimeLeft("s", time.Second), at, at); ok {
		t.Fatalf("time_left should not produce a record")
	}

	got, ok := buildEventRecord(model.NetworkTestNet, "abc", model.NewContractEvent("s", model.ContractEvent{
		TypeName: model.ActionUpdate, Address: "abc", State: "00ff", ChainState: "cs-9",
	}), at, at)
	if !ok {
		t.Fatalf("expected record")
	}
	want := model.EventRecord{
		SessionID:  "s",
		Network:    "testnet",
		Contract:   "abc",
		Kind:       "contract_event",
		TypeName:   model.ActionUpdate,
		Address:    "abc",
		State:      "00ff",
		ChainState: "cs-9",
		ReceivedAt: uint64(at.Unix()),
		IngestedAt: "2024-05-01T12:00:00Z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("record mismatch: %+v != %+v", got, want)
	}

	term, _ := buildEventRecord(model.NetworkMainNet, "abc", model.NewTerminated("s", model.ReasonProtocolError, errors.New("boom")), at, at)
	if term.Reason != "protocol_error" || term.Error != "boom" || term.Network != "mainnet" {
		t.Fatalf("unexpected termination record: %+v", term)
	}
}
