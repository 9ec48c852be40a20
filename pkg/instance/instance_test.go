package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("CAUTELA_INSTANCE_ID", "publisher-2")
	if got := GetID(); got != "publisher-2" {
		t.Fatalf("expected env instance id, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("CAUTELA_INSTANCE_ID", "  ")
	if got := GetID(); got == "" {
		t.Fatal("expected a non-empty fallback id")
	}
}
