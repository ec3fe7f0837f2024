package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"contractScope/internal/ledger"
	"contractScope/internal/model"
)

func encodedHex(t *testing.T, network model.NetworkID) string {
	t.Helper()
	raw, err := ledger.EncodeState(network, 1, []interface{}{[]byte("counter"), uint64(7)})
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	return hexutil.Encode(raw)[2:]
}

func TestDecodeRecordRendersHexState(t *testing.T) {
	decoder := ledger.NewStateDecoder()
	record := model.EventRecord{
		Network:  "testnet",
		Kind:     string(model.EventContract),
		TypeName: model.ActionCall,
		State:    encodedHex(t, model.NetworkTestNet),
	}

	outcome, err := decodeRecord(decoder, model.NetworkTestNet, &record)
	if err != nil || outcome != outcomeDecoded {
		t.Fatalf("expected decoded, got %v %v", outcome, err)
	}
	if !record.StateDecoded {
		t.Fatalf("record not marked decoded")
	}

	want, err := decoder.Decode(mustHex(t, encodedHex(t, model.NetworkTestNet)), model.NetworkTestNet)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.State != want {
		t.Fatalf("state mismatch: %q != %q", record.State, want)
	}

	outcome, err = decodeRecord(decoder, model.NetworkTestNet, &record)
	if err != nil || outcome != outcomePassthrough {
		t.Fatalf("decoded record should pass through, got %v %v", outcome, err)
	}
}

func TestDecodeRecordFailures(t *testing.T) {
	decoder := ledger.NewStateDecoder()

	bad := model.EventRecord{Kind: string(model.EventContract), State: "zz"}
	if outcome, err := decodeRecord(decoder, model.NetworkTestNet, &bad); outcome != outcomeFailed || err == nil {
		t.Fatalf("expected failure for bad hex, got %v %v", outcome, err)
	}

	other := model.EventRecord{Kind: string(model.EventContract), State: encodedHex(t, model.NetworkMainNet)}
	_, err := decodeRecord(decoder, model.NetworkTestNet, &other)
	if !errors.Is(err, ledger.ErrNetworkMismatch) {
		t.Fatalf("expected network mismatch, got %v", err)
	}

	tagged := model.EventRecord{Network: "mainnet", Kind: string(model.EventContract), State: encodedHex(t, model.NetworkTestNet)}
	_, err = decodeRecord(decoder, model.NetworkTestNet, &tagged)
	if !errors.Is(err, ledger.ErrNetworkMismatch) {
		t.Fatalf("expected network mismatch for record network, got %v", err)
	}

	term := model.EventRecord{Kind: string(model.EventTerminated), Reason: "timeout"}
	if outcome, err := decodeRecord(decoder, model.NetworkTestNet, &term); outcome != outcomePassthrough || err != nil {
		t.Fatalf("termination should pass through, got %v %v", outcome, err)
	}
}

func TestJSONLWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	writer, err := newJSONLWriter(path, false)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	if err := writer.Write(decodeErrorFromRecord(model.EventRecord{SessionID: "s", Address: "abc"}, errors.New("boom"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		t.Fatalf("expected a line")
	}
	var got model.DecodeError
	if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SessionID != "s" || got.Address != "abc" || got.Error != "boom" {
		t.Fatalf("unexpected decode error: %+v", got)
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := ledger.DecodeHex(s)
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	return raw
}

func TestRedactDSN(t *testing.T) {
	if redactDSN("") != "" || redactDSN("postgres://u:p@h/db") != "***" {
		t.Fatalf("unexpected redaction")
	}
}
