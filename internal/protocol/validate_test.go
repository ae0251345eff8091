package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateClientMessage_InvalidJSON(t *testing.T) {
	_, err := ValidateClientMessage([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateClientMessage_MissingType(t *testing.T) {
	_, err := ValidateClientMessage([]byte(`{"payload":{}}`))
	if err == nil || !strings.Contains(err.Error(), "type") {
		t.Fatalf("expected missing type error, got %v", err)
	}
}

func TestValidateClientMessage_UnknownType(t *testing.T) {
	_, err := ValidateClientMessage([]byte(`{"type":"bogus","payload":{}}`))
	if err == nil || !strings.Contains(err.Error(), "unknown message type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestValidateClientMessage_MissingPayload(t *testing.T) {
	_, err := ValidateClientMessage([]byte(`{"type":"terminal.input"}`))
	if err == nil || !strings.Contains(err.Error(), "payload") {
		t.Fatalf("expected missing payload error, got %v", err)
	}
}

func TestValidateClientMessage_TerminalInput(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"missing command", `{"commandId":"b1"}`, "command"},
		{"missing commandId", `{"command":"ls"}`, "commandId"},
		{"valid", `{"command":"ls","commandId":"b1"}`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := `{"type":"terminal.input","payload":` + tc.payload + `}`
			msg, err := ValidateClientMessage([]byte(raw))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid message, got %v", err)
				}
				var p TerminalInputPayload
				if err := json.Unmarshal(msg.Payload, &p); err != nil {
					t.Fatalf("unmarshal payload: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(ErrSessionBusy, "session web-1 is busy")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, msg.Type)
	}

	var p ErrorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Code != ErrSessionBusy {
		t.Errorf("expected code %s, got %s", ErrSessionBusy, p.Code)
	}
}
