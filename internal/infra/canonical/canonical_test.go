package canonical

import (
	"testing"
)

func TestMarshalSortsKeysAndStripsWhitespace(t *testing.T) {
	got, err := Marshal(map[string]any{
		"b": 2,
		"a": "x",
		"c": map[string]any{"z": true, "y": nil},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"a":"x","b":2,"c":{"y":null,"z":true}}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshalNumbers(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{int64(0), "0"},
		{int64(42), "42"},
		{float64(1.5), "1.5"},
		{float64(-0.0), "0"},
		{float64(1e21), "1e+21"},
		{float64(0.000001), "0.000001"},
		{float64(0.0000001), "1e-7"},
	}
	for _, tc := range cases {
		got, err := Marshal(tc.in)
		if err != nil {
			t.Fatalf("marshal %v: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Errorf("marshal %v: got %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMarshalStringEscaping(t *testing.T) {
	got, err := Marshal("a\"b\\c\n\t\b")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `"a\"b\\c\n\t\b"`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshalStructsThroughJSON(t *testing.T) {
	type inner struct {
		B int    `json:"b"`
		A string `json:"a"`
	}
	got, err := Marshal(inner{B: 1, A: "z"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"a":"z","b":1}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestSHA256HexIsStable(t *testing.T) {
	doc := map[string]any{"unit": "u1", "stages": []any{"a", "b"}}
	h1, b1, err := SHA256Hex(doc)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, b2, err := SHA256Hex(map[string]any{"stages": []any{"a", "b"}, "unit": "u1"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}
	if string(b1) != string(b2) {
		t.Fatalf("encoding not stable: %s vs %s", b1, b2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected hex sha256, got %q", h1)
	}
}
