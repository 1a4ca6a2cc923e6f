package source

import (
	"testing"
	"time"
)

func newDescriptor(id string, cadence int) *Descriptor {
	return &Descriptor{
		ID:       id,
		URL:      "https://example.com/" + id,
		Format:   FormatRSS,
		Settings: Settings{Cadence: cadence, Timeout: DefaultTimeout},
	}
}

func newTestRegistry(t *testing.T, descs ...*Descriptor) *Registry {
	t.Helper()
	registry, err := NewRegistry(descs, DefaultBackoffPolicy())
	if err != nil {
		t.Fatal(err)
	}
	return registry
}

func dueIDs(descs []Descriptor) []string {
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	return ids
}

func TestListDueBoundary(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	overdue := newDescriptor("overdue", 60)
	overdue.LastAttemptAt = now.Add(-61 * time.Second)

	notYet := newDescriptor("not-yet", 60)
	notYet.LastAttemptAt = now.Add(-59 * time.Second)

	exact := newDescriptor("exact", 60)
	exact.LastAttemptAt = now.Add(-60 * time.Second)

	registry := newTestRegistry(t, overdue, notYet, exact)
	ids := dueIDs(registry.ListDue(now))

	if len(ids) != 2 {
		t.Fatalf("Expected 2 due sources, got %v", ids)
	}
	for _, id := range ids {
		if id == "not-yet" {
			t.Error("Source attempted 59s ago with 60s cadence must not be due")
		}
	}
}

func TestListDueOrdering(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := newDescriptor("a", 60)
	a.LastAttemptAt = now.Add(-70 * time.Second) // 10s overdue

	b := newDescriptor("b", 60)
	b.LastAttemptAt = now.Add(-300 * time.Second) // 240s overdue

	c := newDescriptor("c", 60)
	c.LastAttemptAt = now.Add(-70 * time.Second) // tie with a

	fresh := newDescriptor("z-fresh", 60)

	registry := newTestRegistry(t, c, a, fresh, b)
	ids := dueIDs(registry.ListDue(now))

	expected := []string{"z-fresh", "b", "a", "c"}
	if len(ids) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, ids)
	}
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("Position %d: expected %s, got %s (full order %v)", i, expected[i], ids[i], ids)
		}
	}
}

func TestListDueSkipsDisabled(t *testing.T) {
	disabled := false
	desc := newDescriptor("off", 60)
	desc.Settings.Enabled = &disabled

	registry := newTestRegistry(t, desc)
	if due := registry.ListDue(time.Now()); len(due) != 0 {
		t.Errorf("Expected disabled source to be skipped, got %v", dueIDs(due))
	}
}

func TestRecordAttempt(t *testing.T) {
	registry := newTestRegistry(t, newDescriptor("feed", 60))
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		desc, err := registry.RecordAttempt("feed", AttemptResult{Success: false}, now)
		if err != nil {
			t.Fatal(err)
		}
		if desc.ConsecutiveFailures != i {
			t.Errorf("Expected %d failures, got %d", i, desc.ConsecutiveFailures)
		}
		if !desc.LastSuccessAt.IsZero() {
			t.Error("Failure must not set LastSuccessAt")
		}
	}

	later := now.Add(time.Minute)
	desc, err := registry.RecordAttempt("feed", AttemptResult{Success: true, ETag: `"v1"`}, later)
	if err != nil {
		t.Fatal(err)
	}
	if desc.ConsecutiveFailures != 0 {
		t.Errorf("Expected failures reset to 0, got %d", desc.ConsecutiveFailures)
	}
	if !desc.LastSuccessAt.Equal(later) || !desc.LastAttemptAt.Equal(later) {
		t.Errorf("Expected attempt and success at %v, got %v / %v", later, desc.LastAttemptAt, desc.LastSuccessAt)
	}
	if desc.ETag != `"v1"` {
		t.Errorf("Expected ETag to be stored, got %q", desc.ETag)
	}

	if _, err := registry.RecordAttempt("missing", AttemptResult{}, now); err == nil {
		t.Error("Expected error for unknown source")
	}
}

func TestQuarantineBackoff(t *testing.T) {
	policy := BackoffPolicy{Threshold: 5, Factor: 2, MaxCadence: 10 * time.Minute}
	cadence := time.Minute

	if got := policy.EffectiveCadence(cadence, 4); got != cadence {
		t.Errorf("Expected base cadence below threshold, got %v", got)
	}
	if got := policy.EffectiveCadence(cadence, 5); got != 2*time.Minute {
		t.Errorf("Expected 2m after 5 failures, got %v", got)
	}
	if got := policy.EffectiveCadence(cadence, 6); got != 4*time.Minute {
		t.Errorf("Expected 4m after 6 failures, got %v", got)
	}
	if got := policy.EffectiveCadence(cadence, 50); got != 10*time.Minute {
		t.Errorf("Expected cap of 10m, got %v", got)
	}
	if !policy.Quarantined(5) || policy.Quarantined(4) {
		t.Error("Quarantine should start exactly at the threshold")
	}
}

func TestQuarantinedSourceIsDueLater(t *testing.T) {
	registry, err := NewRegistry([]*Descriptor{newDescriptor("flaky", 60)},
		BackoffPolicy{Threshold: 5, Factor: 2, MaxCadence: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := registry.RecordAttempt("flaky", AttemptResult{Success: false}, start); err != nil {
			t.Fatal(err)
		}
	}

	if due := registry.ListDue(start.Add(61 * time.Second)); len(due) != 0 {
		t.Error("Quarantined source should not be due after its base cadence")
	}
	if due := registry.ListDue(start.Add(120 * time.Second)); len(due) != 1 {
		t.Error("Quarantined source should be due after cadence * factor")
	}
}

func TestSeed(t *testing.T) {
	registry := newTestRegistry(t, newDescriptor("feed", 60))
	attempted := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seeded := registry.Seed([]Bookkeeping{
		{SourceID: "feed", LastAttemptAt: &attempted, ConsecutiveFailures: 2, ETag: "abc"},
		{SourceID: "removed", LastAttemptAt: &attempted},
	})
	if seeded != 1 {
		t.Errorf("Expected 1 seeded source, got %d", seeded)
	}

	desc, ok := registry.Get("feed")
	if !ok {
		t.Fatal("Expected feed to be registered")
	}
	if !desc.LastAttemptAt.Equal(attempted) || desc.ConsecutiveFailures != 2 || desc.ETag != "abc" {
		t.Errorf("Seed did not restore bookkeeping: %+v", desc)
	}
}

func TestAllOrdersByWeight(t *testing.T) {
	light := newDescriptor("light", 60)
	light.Weight = 1.0
	light.Category = "tech"
	heavy := newDescriptor("heavy", 60)
	heavy.Weight = 1.2
	heavy.Category = "ai"

	registry := newTestRegistry(t, light, heavy)
	all := registry.All()
	if all[0].ID != "heavy" {
		t.Errorf("Expected heaviest source first, got %s", all[0].ID)
	}

	ai := registry.ByCategory("ai")
	if len(ai) != 1 || ai[0].ID != "heavy" {
		t.Errorf("Expected only 'heavy' in category ai, got %v", dueIDs(ai))
	}
}
