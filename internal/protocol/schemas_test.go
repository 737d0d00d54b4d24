package protocol_test

import (
	"encoding/json"
	"testing"

	"shopkeep.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	valid := []struct {
		schema string
		frame  string
	}{
		{protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0","player_name":"alice"}`},
		{protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0","player_name":"Bob_2","player_id":"6f1c2a52-8a3e-4b57-9c2e-0d7c9f0b8e11","max_queue":16}`},
		{protocol.SchemaCmd, `{"type":"CMD","protocol_version":"1.0","id":"c1","args":["bob"]}`},
		{protocol.SchemaCmd, `{"type":"COMPLETE","protocol_version":"1.0","id":"c2","args":[]}`},
	}
	for _, tc := range valid {
		if err := protocol.ValidateFrame(tc.schema, []byte(tc.frame)); err != nil {
			t.Fatalf("%s rejected %s: %v", tc.schema, tc.frame, err)
		}
	}

	invalid := []struct {
		schema string
		frame  string
	}{
		{protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0"}`},
		{protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0","player_name":"has space"}`},
		{protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0","player_name":"alice","player_id":"nope"}`},
		{protocol.SchemaCmd, `{"type":"CMD","protocol_version":"1.0","id":"","args":["bob"]}`},
		{protocol.SchemaCmd, `{"type":"CMD","protocol_version":"1.0","id":"c1"}`},
		{protocol.SchemaCmd, `{"type":"CMD","protocol_version":"1.0","id":"c1","args":[1]}`},
	}
	for _, tc := range invalid {
		if err := protocol.ValidateFrame(tc.schema, []byte(tc.frame)); err == nil {
			t.Fatalf("%s accepted %s", tc.schema, tc.frame)
		}
	}
}

func TestSchemas_ServerFramesConform(t *testing.T) {
	frames := map[string]any{
		protocol.SchemaNotice: protocol.NoticeMsg{Type: protocol.TypeNotice, ProtocolVersion: protocol.Version, Key: "command.transfer-sent", Text: "Transfer request sent to bob.", Args: []string{"bob"}},
		protocol.SchemaResult: protocol.NewResult("c1", protocol.ErrNoPending, "no pending operation"),
	}
	for name, v := range frames {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := protocol.ValidateFrame(name, b); err != nil {
			t.Fatalf("%s: %v (%s)", name, err, b)
		}
	}
	ok := protocol.NewResult("c2", "", "")
	if !ok.OK || ok.Code != "" {
		t.Fatalf("empty code should be ok: %+v", ok)
	}
}

func TestSchemas_Unknown(t *testing.T) {
	if _, err := protocol.Schema("nope.schema.json"); err == nil {
		t.Fatalf("expected error for unknown schema")
	}
}
