package fleetstore

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hochfrequenz/botfleet/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_UpsertAndLoad(t *testing.T) {
	store := newTestStore(t)

	bot := domain.Bot{
		Name:      "AlphaBot",
		Status:    domain.BotOnline,
		Port:      8081,
		Specialty: "Health Checks",
		Requests:  4,
		Failures:  1,
		Uptime:    "75.0%",
	}
	if err := store.Upsert(bot); err != nil {
		t.Fatal(err)
	}

	bots, err := store.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(bots) != 1 {
		t.Fatalf("got %d bots, want 1", len(bots))
	}

	got := bots[0]
	if got.Name != bot.Name || got.Port != bot.Port || got.Status != bot.Status {
		t.Errorf("got %+v, want %+v", got, bot)
	}
	if got.Requests != 4 || got.Failures != 1 || got.Uptime != "75.0%" {
		t.Errorf("counters = %d/%d/%s, want 4/1/75.0%%", got.Requests, got.Failures, got.Uptime)
	}
	if got.Specialty != "Health Checks" {
		t.Errorf("Specialty = %q, want Health Checks", got.Specialty)
	}
}

func TestStore_UpsertIdempotent(t *testing.T) {
	store := newTestStore(t)

	bot := domain.Bot{Name: "BetaBot", Status: domain.BotOffline, Port: 8082, CreatedAt: time.Now()}
	if err := store.Upsert(bot); err != nil {
		t.Fatal(err)
	}
	once, _ := store.LoadAll()

	if err := store.Upsert(bot); err != nil {
		t.Fatal(err)
	}
	twice, _ := store.LoadAll()

	if len(twice) != 1 {
		t.Fatalf("got %d bots after second upsert, want 1", len(twice))
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second upsert changed state:\n once=%+v\ntwice=%+v", once, twice)
	}
}

func TestStore_UpsertUpdates(t *testing.T) {
	store := newTestStore(t)

	bot := domain.Bot{Name: "GammaBot", Status: domain.BotOnline, Port: 8083}
	store.Upsert(bot)

	bot.Status = domain.BotBusy
	bot.Requests = 9
	if err := store.Upsert(bot); err != nil {
		t.Fatal(err)
	}

	bots, _ := store.LoadAll()
	if bots[0].Status != domain.BotBusy || bots[0].Requests != 9 {
		t.Errorf("got %+v, want busy with 9 requests", bots[0])
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)

	store.Upsert(domain.Bot{Name: "DeltaBot", Status: domain.BotOnline, Port: 8084})
	if err := store.Delete("DeltaBot"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("DeltaBot"); err != nil {
		t.Errorf("deleting a missing bot should not fail: %v", err)
	}

	bots, _ := store.LoadAll()
	if len(bots) != 0 {
		t.Errorf("got %d bots, want 0", len(bots))
	}
}

func TestStore_SaveAllReplacesSet(t *testing.T) {
	store := newTestStore(t)

	store.Upsert(domain.Bot{Name: "Old", Status: domain.BotOnline, Port: 9000})
	store.Upsert(domain.Bot{Name: "Kept", Status: domain.BotOnline, Port: 9001})

	err := store.SaveAll([]domain.Bot{
		{Name: "Kept", Status: domain.BotOffline, Port: 9001, Requests: 2},
		{Name: "New", Status: domain.BotOnline, Port: 9002},
	})
	if err != nil {
		t.Fatal(err)
	}

	bots, _ := store.LoadAll()
	if len(bots) != 2 {
		t.Fatalf("got %d bots, want 2", len(bots))
	}
	if bots[0].Name != "Kept" || bots[0].Status != domain.BotOffline || bots[0].Requests != 2 {
		t.Errorf("bots[0] = %+v, want updated Kept", bots[0])
	}
	if bots[1].Name != "New" {
		t.Errorf("bots[1] = %+v, want New", bots[1])
	}
}

func TestStore_SeedIfEmpty(t *testing.T) {
	store := newTestStore(t)

	seeded, err := store.SeedIfEmpty(domain.StarterFleet())
	if err != nil {
		t.Fatal(err)
	}
	if !seeded {
		t.Error("empty store should be seeded")
	}

	bots, _ := store.LoadAll()
	if len(bots) != 23 {
		t.Fatalf("got %d bots, want 23", len(bots))
	}
	if bots[0].Port != 8081 || bots[22].Port != 8103 {
		t.Errorf("ports = %d..%d, want 8081..8103", bots[0].Port, bots[22].Port)
	}

	// Change one bot, then seeding again must not overwrite it
	bots[0].Requests = 42
	store.Upsert(bots[0])

	seeded, err = store.SeedIfEmpty(domain.StarterFleet())
	if err != nil {
		t.Fatal(err)
	}
	if seeded {
		t.Error("non-empty store should not be seeded")
	}
	bots, _ = store.LoadAll()
	if bots[0].Requests != 42 {
		t.Errorf("Requests = %d, want 42 (seed overwrote existing record)", bots[0].Requests)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")

	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	store.Upsert(domain.Bot{Name: "EtaBot", Status: domain.BotOnline, Port: 8087, Requests: 3})
	store.Close()

	store, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	bots, err := store.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(bots) != 1 || bots[0].Requests != 3 {
		t.Errorf("got %+v, want EtaBot with 3 requests", bots)
	}
}

func TestStore_CampaignHistory(t *testing.T) {
	store := newTestStore(t)

	start := time.Now().Add(-time.Minute)
	first := domain.CampaignSummary{
		ID:           "c-1",
		Spec:         domain.CampaignSpec{TargetAddress: "10.0.0.1", TargetPort: 80, Operation: domain.OpProbe, Intensity: 3},
		Phase:        domain.PhaseCompleted,
		Participants: []string{"A", "B"},
		Outcomes:     map[string]domain.Outcome{"A": domain.Completed(), "B": domain.Completed()},
		Progress:     100,
		StartedAt:    start,
		FinishedAt:   start.Add(time.Second),
	}
	second := first
	second.ID = "c-2"
	second.Phase = domain.PhaseFailed
	second.Outcomes = map[string]domain.Outcome{"A": domain.Completed(), "B": domain.Failed("timeout")}
	second.StartedAt = start.Add(10 * time.Second)

	if err := store.RecordCampaign(first); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordCampaign(second); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListCampaigns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d campaigns, want 2", len(got))
	}
	if got[0].ID != "c-2" {
		t.Errorf("newest first: got %s, want c-2", got[0].ID)
	}
	if got[0].Outcomes["B"].Reason != "timeout" {
		t.Errorf("outcome B = %+v, want failure reason timeout", got[0].Outcomes["B"])
	}
	if got[1].Spec.Operation != domain.OpProbe || got[1].Spec.Intensity != 3 {
		t.Errorf("spec = %+v, want probe intensity 3", got[1].Spec)
	}
}
