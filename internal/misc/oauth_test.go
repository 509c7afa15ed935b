package misc

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestGenerateRandomStateIsURLSafeAndUnique(t *testing.T) {
	a, err := GenerateRandomState()
	if err != nil {
		t.Fatalf("GenerateRandomState() error = %v", err)
	}
	b, err := GenerateRandomState()
	if err != nil {
		t.Fatalf("GenerateRandomState() error = %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct states")
	}
	if _, err = base64.RawURLEncoding.DecodeString(a); err != nil {
		t.Fatalf("state is not raw url base64: %v", err)
	}
}

func TestStateEnvelopeRoundTrip(t *testing.T) {
	in := StateEnvelope{State: "nonce", UserID: "u1", OrgID: "o1"}
	encoded, err := EncodeState(in)
	if err != nil {
		t.Fatalf("EncodeState() error = %v", err)
	}
	out, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if out != in {
		t.Fatalf("DecodeState() = %+v, want %+v", out, in)
	}
}

func TestDecodeStateAcceptsStrippedPadding(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte(`{"state":"n","user_id":"u","org_id":"o"}`))
	out, err := DecodeState(raw)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if out.State != "n" || out.UserID != "u" || out.OrgID != "o" {
		t.Fatalf("unexpected envelope: %+v", out)
	}
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "!!!", base64.URLEncoding.EncodeToString([]byte("not json")), base64.URLEncoding.EncodeToString([]byte(`{"user_id":"u"}`))} {
		if _, err := DecodeState(input); !errors.Is(err, ErrInvalidState) {
			t.Errorf("DecodeState(%q) error = %v, want ErrInvalidState", input, err)
		}
	}
}
