package sheetsimport

import (
	"testing"
)

func TestParseRowsWithHeader(t *testing.T) {
	values := [][]interface{}{
		{"Name", "Twitch Login"},
		{"Alice", "alice_tv"},
		{"Bob", "bob_tv"},
	}
	inputs, err := ParseRows(values)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("inputs = %d, want 2 after dropping header", len(inputs))
	}
	if inputs[0].Name != "Alice" || inputs[0].Twitch != "alice_tv" {
		t.Errorf("first input = %+v", inputs[0])
	}
}

func TestParseRowsWithoutHeader(t *testing.T) {
	values := [][]interface{}{
		{"Alice", "alice_tv"},
		{"Bob", "bob_tv"},
	}
	inputs, err := ParseRows(values)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(inputs))
	}
}

func TestParseRowsSkipsBlankAndFallsBackToLogin(t *testing.T) {
	values := [][]interface{}{
		{"Alice", "alice_tv"},
		{"", ""},
		{"", "bob_tv"},
	}
	inputs, err := ParseRows(values)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(inputs))
	}
	if inputs[1].Name != "bob_tv" {
		t.Errorf("name fallback = %q, want login", inputs[1].Name)
	}
}

func TestParseRowsMissingLogin(t *testing.T) {
	values := [][]interface{}{
		{"Alice", "alice_tv"},
		{"Bob", ""},
	}
	if _, err := ParseRows(values); err == nil {
		t.Fatal("expected error for participant without login")
	}
}

func TestParseRowsEmptySheet(t *testing.T) {
	if _, err := ParseRows(nil); err == nil {
		t.Fatal("expected error for empty sheet")
	}
	if _, err := ParseRows([][]interface{}{{"Name", "Twitch"}}); err == nil {
		t.Fatal("expected error for header-only sheet")
	}
}
