package telemetry

import "testing"

func TestOrderAttributesIncludesDexTypeOnlyWhenSet(t *testing.T) {
	withDex := OrderAttributes("production", "building", "raydium")
	if len(withDex) != 3 {
		t.Fatalf("expected 3 attributes with dex type set, got %d", len(withDex))
	}

	withoutDex := OrderAttributes("production", "pending", "")
	if len(withoutDex) != 2 {
		t.Fatalf("expected 2 attributes without dex type, got %d", len(withoutDex))
	}
}

func TestQueueAttributesIncludesStatusOnlyWhenSet(t *testing.T) {
	statusQueue := QueueAttributes("production", "status", "confirmed")
	if len(statusQueue) != 3 {
		t.Fatalf("expected 3 attributes for a status queue, got %d", len(statusQueue))
	}

	execQueue := QueueAttributes("production", "execution", "")
	if len(execQueue) != 2 {
		t.Fatalf("expected 2 attributes for the execution queue, got %d", len(execQueue))
	}
}
