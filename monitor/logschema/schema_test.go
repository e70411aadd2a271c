package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("reload_result", map[string]interface{}{
		"unit":   "my-unit",
		"result": "success",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("reload_result", map[string]interface{}{
		"unit": "my-unit",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
	if err := Validate("not_an_event", nil); err != nil {
		t.Fatalf("unknown events are not validated: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	want := []string{"file_changed", "files_deleted", "monitor_state", "reload_result"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if !IsKnown("monitor_state") || IsKnown("risk_event") {
		t.Fatalf("IsKnown mismatch")
	}
}
