package indexer

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"contractScope/internal/model"
)

func TestSubscriptionDocumentShape(t *testing.T) {
	doc, err := subscriptionDocument("02abc")
	if err != nil {
		t.Fatalf("build document: %v", err)
	}

	parsed, err := parser.Parse(parser.ParseParams{Source: doc})
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	if len(parsed.Definitions) != 1 {
		t.Fatalf("expected one definition, got %d", len(parsed.Definitions))
	}
	op, ok := parsed.Definitions[0].(*ast.OperationDefinition)
	if !ok {
		t.Fatalf("expected operation definition, got %T", parsed.Definitions[0])
	}
	if op.Operation != ast.OperationTypeSubscription || op.Name == nil || op.Name.Value != "ContractSync" {
		t.Fatalf("unexpected operation: %s %+v", op.Operation, op.Name)
	}

	root, ok := op.SelectionSet.Selections[0].(*ast.Field)
	if !ok || root.Name.Value != "contractActions" {
		t.Fatalf("expected contractActions field, got %+v", op.SelectionSet.Selections[0])
	}
	if len(root.Arguments) != 1 || root.Arguments[0].Name.Value != "address" {
		t.Fatalf("unexpected arguments: %+v", root.Arguments)
	}
	arg, ok := root.Arguments[0].Value.(*ast.StringValue)
	if !ok || arg.Value != "02abc" {
		t.Fatalf("unexpected address argument: %+v", root.Arguments[0].Value)
	}

	var variants []string
	for _, sel := range root.SelectionSet.Selections {
		switch node := sel.(type) {
		case *ast.Field:
			if node.Name.Value != "__typename" {
				t.Fatalf("unexpected field %s", node.Name.Value)
			}
		case *ast.InlineFragment:
			variants = append(variants, node.TypeCondition.Name.Value)
			var fields []string
			for _, inner := range node.SelectionSet.Selections {
				fields = append(fields, inner.(*ast.Field).Name.Value)
			}
			if want := []string{"address", "state", "chainState"}; !reflect.DeepEqual(fields, want) {
				t.Fatalf("%s fields mismatch: %+v != %+v", node.TypeCondition.Name.Value, fields, want)
			}
		default:
			t.Fatalf("unexpected selection %T", sel)
		}
	}
	if !reflect.DeepEqual(variants, model.KnownActions) {
		t.Fatalf("variants mismatch: %+v != %+v", variants, model.KnownActions)
	}
}

func TestSubscriptionDocumentEscapesAddress(t *testing.T) {
	doc, err := subscriptionDocument(`02a"b\c`)
	if err != nil {
		t.Fatalf("build document: %v", err)
	}
	parsed, err := parser.Parse(parser.ParseParams{Source: doc})
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	root := parsed.Definitions[0].(*ast.OperationDefinition).SelectionSet.Selections[0].(*ast.Field)
	if got := root.Arguments[0].Value.(*ast.StringValue).Value; got != `02a"b\c` {
		t.Fatalf("address not preserved: %q", got)
	}
}

func TestSubscribeMessage(t *testing.T) {
	msg, err := subscribeMessage("02abc")
	if err != nil {
		t.Fatalf("subscribe message: %v", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["id"] != "contract-sync" || decoded["type"] != "subscribe" {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}
	payload, ok := decoded["payload"].(map[string]interface{})
	if !ok || payload["query"] == "" {
		t.Fatalf("missing query: %+v", decoded)
	}

	initFrame, err := json.Marshal(connectionInit())
	if err != nil {
		t.Fatalf("marshal init: %v", err)
	}
	if string(initFrame) != `{"type":"connection_init"}` {
		t.Fatalf("unexpected connection_init frame: %s", initFrame)
	}
}

func TestParseContractAction(t *testing.T) {
	payload := json.RawMessage(`{"data":{"contractActions":{"__typename":"ContractMaintenance","address":"abc","state":"00","chainState":"cs"}}}`)
	got, err := parseContractAction(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := &model.ContractEvent{TypeName: "ContractMaintenance", Address: "abc", State: "00", ChainState: "cs"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("event mismatch: %+v != %+v", got, want)
	}
}

func TestParseContractActionRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"no payload":        ``,
		"no data":           `{}`,
		"null actions":      `{"data":{"contractActions":null}}`,
		"wrong type":        `{"data":{"contractActions":"abc"}}`,
		"missing state":     `{"data":{"contractActions":{"__typename":"ContractCall","address":"abc","chainState":"cs"}}}`,
		"missing typename":  `{"data":{"contractActions":{"address":"abc","state":"00","chainState":"cs"}}}`,
		"missing chain pos": `{"data":{"contractActions":{"__typename":"ContractCall","address":"abc","state":"00"}}}`,
	}

	for name, payload := range cases {
		if _, err := parseContractAction(json.RawMessage(payload)); !errors.Is(err, ErrProtocol) {
			t.Fatalf("%s: expected ErrProtocol, got %v", name, err)
		}
	}
}

func TestServerError(t *testing.T) {
	if got := serverError(json.RawMessage(`[{"message":"bad address"},{"message":"retry later"}]`)); got != "bad address; retry later" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := serverError(nil); got != "no payload" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := serverError(json.RawMessage(`{"message":"x"}`)); got != `{"message":"x"}` {
		t.Fatalf("unexpected message: %q", got)
	}
}
