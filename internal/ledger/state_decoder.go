package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"

	"contractScope/internal/model"
)

const (
	stateTag  = "midnight:contract-state"
	maxDigits = 8
)

var (
	ErrMissingHeader   = errors.New("missing contract state header")
	ErrNetworkMismatch = errors.New("network mismatch")
	ErrMalformedBody   = errors.New("malformed contract state body")
)

// State is a decoded contract state.
type State struct {
	Network    model.NetworkID
	Version    uint64
	HasVersion bool
	Data       interface{}
}

// StateDecoder decodes network-framed contract state blobs.
//
// A blob is laid out as "midnight:contract-state", an optional "[vN]" version
// suffix, a ':' separator, one network id byte and a single RLP encoded value.
type StateDecoder struct{}

func NewStateDecoder() *StateDecoder {
	return &StateDecoder{}
}

// Decode parses raw and renders it for display.
func (d *StateDecoder) Decode(raw []byte, network model.NetworkID) (string, error) {
	state, err := d.Parse(raw, network)
	if err != nil {
		return "", err
	}
	return state.String(), nil
}

// Parse decodes raw into a State without rendering it.
func (d *StateDecoder) Parse(raw []byte, network model.NetworkID) (State, error) {
	version, hasVersion, rest, err := splitHeader(raw)
	if err != nil {
		return State{}, err
	}
	if len(rest) == 0 {
		return State{}, fmt.Errorf("%w: missing network id", ErrMissingHeader)
	}
	if got := model.NetworkID(rest[0]); got != network {
		return State{}, fmt.Errorf("%w: state is for %s, expected %s", ErrNetworkMismatch, got, network)
	}

	var data interface{}
	if err := rlp.DecodeBytes(rest[1:], &data); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	return State{
		Network:    network,
		Version:    version,
		HasVersion: hasVersion,
		Data:       data,
	}, nil
}

// EncodeState frames data the way Parse expects it. A zero version is written
// without the version suffix.
func EncodeState(network model.NetworkID, version uint64, data interface{}) ([]byte, error) {
	body, err := rlp.EncodeToBytes(data)
	if err != nil {
		return nil, fmt.Errorf("encode state body: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(stateTag)
	if version > 0 {
		buf.WriteString("[v")
		buf.WriteString(strconv.FormatUint(version, 10))
		buf.WriteByte(']')
	}
	buf.WriteByte(':')
	buf.WriteByte(byte(network))
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeHex decodes a hex state string, with or without a 0x prefix.
func DecodeHex(input string) ([]byte, error) {
	if len(input) < 2 || input[0] != '0' || (input[1] != 'x' && input[1] != 'X') {
		input = "0x" + input
	}
	return hexutil.Decode(input)
}

func splitHeader(raw []byte) (uint64, bool, []byte, error) {
	if !bytes.HasPrefix(raw, []byte(stateTag)) {
		return 0, false, nil, ErrMissingHeader
	}
	rest := raw[len(stateTag):]

	var version uint64
	var hasVersion bool
	if len(rest) > 0 && rest[0] == '[' {
		end := bytes.IndexByte(rest, ']')
		if end < 0 || end > maxDigits+2 || end < 3 || rest[1] != 'v' {
			return 0, false, nil, fmt.Errorf("%w: bad version tag", ErrMissingHeader)
		}
		parsed, err := strconv.ParseUint(string(rest[2:end]), 10, 64)
		if err != nil {
			return 0, false, nil, fmt.Errorf("%w: bad version: %v", ErrMissingHeader, err)
		}
		version = parsed
		hasVersion = true
		rest = rest[end+1:]
	}

	if len(rest) == 0 || rest[0] != ':' {
		return 0, false, nil, fmt.Errorf("%w: missing separator", ErrMissingHeader)
	}
	return version, hasVersion, rest[1:], nil
}
