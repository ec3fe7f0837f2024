package aggregate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"contractScope/internal/model"
)

type recordingStore struct {
	windows []model.ContractActionWindow
}

func (r *recordingStore) UpsertActionWindows(_ context.Context, windows []model.ContractActionWindow) error {
	r.windows = append(r.windows, windows...)
	return nil
}

type memoryProgress struct {
	values map[string]uint64
}

func (m *memoryProgress) LoadState(_ context.Context, name string) (uint64, bool, error) {
	ts, ok := m.values[name]
	return ts, ok, nil
}

func (m *memoryProgress) SaveState(_ context.Context, name string, ts uint64) error {
	m.values[name] = ts
	return nil
}

func writeRecords(t *testing.T, records []model.EventRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	defer file.Close()

	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := file.WriteString("not json\n\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func action(typeName, chainState string, ts uint64, decoded bool) model.EventRecord {
	return model.EventRecord{
		SessionID:    "s1",
		Network:      "testnet",
		Contract:     "abc",
		Kind:         string(model.EventContract),
		TypeName:     typeName,
		Address:      "abc",
		State:        "00",
		StateDecoded: decoded,
		ChainState:   chainState,
		ReceivedAt:   ts,
	}
}

func sortWindows(windows []model.ContractActionWindow) {
	sort.Slice(windows, func(i, j int) bool {
		if !windows[i].WindowStart.Equal(windows[j].WindowStart) {
			return windows[i].WindowStart.Before(windows[j].WindowStart)
		}
		return windows[i].TypeName < windows[j].TypeName
	})
}

func TestAggregatorBucketsActions(t *testing.T) {
	path := writeRecords(t, []model.EventRecord{
		action(model.ActionDeploy, "cs-1", 3600, true),
		action(model.ActionCall, "cs-2", 3700, true),
		action(model.ActionCall, "cs-3", 3800, false),
		{SessionID: "s1", Network: "testnet", Contract: "abc", Kind: string(model.EventDisconnect), ReceivedAt: 3900},
		action(model.ActionCall, "cs-4", 7300, true),
	})

	store := &recordingStore{}
	progress := &memoryProgress{values: map[string]uint64{}}
	agg := NewAggregator(Config{
		WindowSeconds: 3600,
		StateStore:    &DBStateStore{Store: progress},
	}, store, nil)

	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}

	sortWindows(store.windows)
	want := []model.ContractActionWindow{
		{Network: "testnet", Address: "abc", TypeName: model.ActionCall, WindowSizeSecs: 3600, WindowStart: time.Unix(3600, 0).UTC(), WindowEnd: time.Unix(7200, 0).UTC(), ActionCount: 2, DecodedCount: 1, FirstChainState: "cs-2", LastChainState: "cs-3"},
		{Network: "testnet", Address: "abc", TypeName: model.ActionDeploy, WindowSizeSecs: 3600, WindowStart: time.Unix(3600, 0).UTC(), WindowEnd: time.Unix(7200, 0).UTC(), ActionCount: 1, DecodedCount: 1, FirstChainState: "cs-1", LastChainState: "cs-1"},
		{Network: "testnet", Address: "abc", TypeName: model.ActionCall, WindowSizeSecs: 3600, WindowStart: time.Unix(7200, 0).UTC(), WindowEnd: time.Unix(10800, 0).UTC(), ActionCount: 1, DecodedCount: 1, FirstChainState: "cs-4", LastChainState: "cs-4"},
	}
	if !reflect.DeepEqual(store.windows, want) {
		t.Fatalf("windows mismatch:\n%+v\n!=\n%+v", store.windows, want)
	}

	if got := progress.values[defaultStateName]; got != 7300 {
		t.Fatalf("expected progress 7300, got %d", got)
	}
}

func TestAggregatorResumesFromState(t *testing.T) {
	path := writeRecords(t, []model.EventRecord{
		action(model.ActionCall, "cs-1", 100, true),
		action(model.ActionCall, "cs-2", 200, true),
	})

	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	if err := state.Save(context.Background(), 150); err != nil {
		t.Fatalf("save state: %v", err)
	}

	store := &recordingStore{}
	if err := NewAggregator(Config{WindowSeconds: 60, StateStore: state}, store, nil).Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.windows) != 1 || store.windows[0].FirstChainState != "cs-2" {
		t.Fatalf("expected only the newer action, got %+v", store.windows)
	}

	last, ok, err := state.Load(context.Background())
	if err != nil || !ok || last != 200 {
		t.Fatalf("unexpected state: %d %v %v", last, ok, err)
	}
}

func TestFileStateStoreKeepsNamedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "progress.json")
	a := &FileStateStore{Path: path, Name: "a"}
	b := &FileStateStore{Path: path, Name: "b"}

	if _, ok, err := a.Load(context.Background()); err != nil || ok {
		t.Fatalf("expected empty state, got %v %v", ok, err)
	}
	if err := a.Save(context.Background(), 10); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := b.Save(context.Background(), 20); err != nil {
		t.Fatalf("save b: %v", err)
	}

	if ts, ok, _ := a.Load(context.Background()); !ok || ts != 10 {
		t.Fatalf("a: got %d %v", ts, ok)
	}
	if ts, ok, _ := b.Load(context.Background()); !ok || ts != 20 {
		t.Fatalf("b: got %d %v", ts, ok)
	}
}

func TestAggregatorRequiresWindow(t *testing.T) {
	if err := NewAggregator(Config{}, &recordingStore{}, nil).Run(context.Background(), "missing.jsonl"); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
