package gemini

import "testing"

func TestExtractBalancedIgnoresBracesInStrings(t *testing.T) {
	raw := `prefix {"reasoning": "uses {maps} and \"quotes\"", "n": 1} suffix`

	var out struct {
		Reasoning string `json:"reasoning"`
		N         int    `json:"n"`
	}
	if err := decodeResponse(raw, &out); err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	if out.N != 1 || out.Reasoning != `uses {maps} and "quotes"` {
		t.Fatalf("decoded %+v", out)
	}
}

func TestDecodeResponseNoJSON(t *testing.T) {
	var out map[string]any
	if err := decodeResponse("nothing here", &out); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractFencedWithoutClosingFence(t *testing.T) {
	got := extractFenced("```json\n{\"a\": 1}")
	if got != `{"a": 1}` {
		t.Fatalf("got %q", got)
	}
}
