package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type testPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testPayload{ID: 42, Name: "faultline"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out testPayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"id\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, testPayload{ID: 7, Name: "stream"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded testPayload
	if err := Decode(buf, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.ID != 7 || decoded.Name != "stream" {
		t.Fatalf("unexpected decoded payload %#v", decoded)
	}
}

func TestToMap(t *testing.T) {
	m, err := ToMap(testPayload{ID: 3, Name: "crumb"})
	if err != nil {
		t.Fatalf("to map failed: %v", err)
	}
	if m["name"] != "crumb" {
		t.Fatalf("expected name field, got %#v", m)
	}
	if m["id"] != float64(3) {
		t.Fatalf("expected numeric id as float64, got %#v", m["id"])
	}
}
