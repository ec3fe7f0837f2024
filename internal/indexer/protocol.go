package indexer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/parser"

	"contractScope/internal/model"
)

const (
	subprotocol    = "graphql-ws"
	subscriptionID = "contract-sync"
)

const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
	msgKeepAlive      = "ka"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query string `json:"query"`
}

type nextPayload struct {
	Data struct {
		ContractActions json.RawMessage `json:"contractActions"`
	} `json:"data"`
}

// contractActionWire mirrors ContractEvent with pointer fields so that a
// missing key can be told apart from an empty value.
type contractActionWire struct {
	TypeName   *string `json:"__typename"`
	Address    *string `json:"address"`
	State      *string `json:"state"`
	ChainState *string `json:"chainState"`
}

func connectionInit() wsMessage {
	return wsMessage{Type: msgConnectionInit}
}

func subscribeMessage(framedAddress string) (wsMessage, error) {
	doc, err := subscriptionDocument(framedAddress)
	if err != nil {
		return wsMessage{}, err
	}
	payload, err := json.Marshal(subscribePayload{Query: doc})
	if err != nil {
		return wsMessage{}, fmt.Errorf("marshal subscribe payload: %w", err)
	}
	return wsMessage{ID: subscriptionID, Type: msgSubscribe, Payload: payload}, nil
}

// subscriptionDocument builds the contractActions subscription for one framed
// address. The address is embedded as an escaped string literal and the result
// is parsed before use.
func subscriptionDocument(framedAddress string) (string, error) {
	literal, err := json.Marshal(framedAddress)
	if err != nil {
		return "", fmt.Errorf("quote address: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "subscription ContractSync {\n  contractActions(address: %s) {\n    __typename\n", literal)
	for _, action := range model.KnownActions {
		fmt.Fprintf(&b, "    ... on %s {\n      address\n      state\n      chainState\n    }\n", action)
	}
	b.WriteString("  }\n}\n")

	doc := b.String()
	if _, err := parser.Parse(parser.ParseParams{Source: doc}); err != nil {
		return "", fmt.Errorf("build subscription document: %w", err)
	}
	return doc, nil
}

// parseContractAction extracts payload.data.contractActions from a next
// message and checks that every field is present.
func parseContractAction(payload json.RawMessage) (*model.ContractEvent, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: message has no payload", ErrProtocol)
	}
	var next nextPayload
	if err := json.Unmarshal(payload, &next); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrProtocol, err)
	}
	raw := next.Data.ContractActions
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: payload.data.contractActions missing", ErrProtocol)
	}

	var wire contractActionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode contract action: %v", ErrProtocol, err)
	}
	switch {
	case wire.TypeName == nil:
		return nil, fmt.Errorf("%w: contract action missing __typename", ErrProtocol)
	case wire.Address == nil:
		return nil, fmt.Errorf("%w: contract action missing address", ErrProtocol)
	case wire.State == nil:
		return nil, fmt.Errorf("%w: contract action missing state", ErrProtocol)
	case wire.ChainState == nil:
		return nil, fmt.Errorf("%w: contract action missing chainState", ErrProtocol)
	}

	return &model.ContractEvent{
		TypeName:   *wire.TypeName,
		Address:    *wire.Address,
		State:      *wire.State,
		ChainState: *wire.ChainState,
	}, nil
}

// serverError renders the payload of a graphql-ws error message.
func serverError(payload json.RawMessage) string {
	var errs []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &errs); err == nil && len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, e := range errs {
			messages = append(messages, e.Message)
		}
		return strings.Join(messages, "; ")
	}
	if len(payload) == 0 {
		return "no payload"
	}
	return string(payload)
}
