package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/service"
	"github.com/yndnr/slotkeep-go/internal/storage/slot"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
)

func newDemoManager(t *testing.T, v *village, tr transport.Transport) *service.Manager {
	t.Helper()
	slots, err := slot.NewManager(tr, slot.Config{Compress: true}, nil)
	if err != nil {
		t.Fatalf("slot.NewManager: %v", err)
	}
	mgr, err := service.NewManager(service.Options{
		Registry:   demoRegistry(),
		World:      v,
		Slots:      slots,
		AppVersion: "test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
		_ = slots.Close()
	})
	return mgr
}

func waitReport(t *testing.T, mgr *service.Manager, save bool, slotID string) *domain.Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	var report *domain.Report
	if save {
		h, rerr := mgr.RequestSave(slotID, domain.AllLevels())
		if rerr != nil {
			t.Fatalf("RequestSave: %v", rerr)
		}
		report, err = h.Wait(ctx)
	} else {
		h, rerr := mgr.RequestLoad(slotID, domain.AllLevels())
		if rerr != nil {
			t.Fatalf("RequestLoad: %v", rerr)
		}
		report, err = h.Wait(ctx)
	}
	if report == nil {
		t.Fatalf("Wait: %v", err)
	}
	if report.Err != nil {
		t.Fatalf("%s %s: %v", report.Kind, slotID, report.Err)
	}
	return report
}

func TestVillage_SaveAndRestore(t *testing.T) {
	tr := transport.NewMemory()
	v := newVillage()
	mgr := newDemoManager(t, v, tr)

	for frame := 1; frame <= 120; frame++ {
		v.tick(frame)
	}
	if err := v.toggleCave(mgr); err != nil {
		t.Fatalf("toggleCave: %v", err)
	}

	report := waitReport(t, mgr, true, "slot1")
	if len(report.Levels) != 2 {
		t.Fatalf("saved levels = %v, want Cave and Village", report.Levels)
	}
	if report.Saved == 0 {
		t.Fatal("nothing saved")
	}

	ada, _ := v.Get(domain.NewIdentity(villageLevel, "Villager_1"))
	wantGold, _ := ada.Value("gold")

	fresh := newVillage()
	fresh.LoadLevel(caveLevel)
	mgr2 := newDemoManager(t, fresh, tr)
	waitReport(t, mgr2, false, "slot1")

	got, ok := fresh.Get(domain.NewIdentity(villageLevel, "Villager_1"))
	if !ok {
		t.Fatal("Villager_1 missing after load")
	}
	if gold, _ := got.Value("gold"); gold != wantGold {
		t.Errorf("gold = %v, want %v", gold, wantGold)
	}
	if _, ok := fresh.Get(domain.NewIdentity(caveLevel, "Chest_1")); !ok {
		t.Error("Chest_1 was not spawned into the cave")
	}
	if _, ok := fresh.Get(domain.NewIdentity(villageLevel, "Torch_1")); !ok {
		t.Error("placed torch should survive a load")
	}
}

func TestVillage_CaveStreamingRetainsState(t *testing.T) {
	v := newVillage()
	mgr := newDemoManager(t, v, transport.NewMemory())

	if err := v.toggleCave(mgr); err != nil {
		t.Fatalf("load cave: %v", err)
	}
	chest, _ := v.Get(domain.NewIdentity(caveLevel, "Chest_1"))
	items, _ := chest.Value("items")
	before := len(items.([]any))

	if err := v.toggleCave(mgr); err != nil {
		t.Fatalf("unload cave: %v", err)
	}
	if _, ok := v.Get(domain.NewIdentity(caveLevel, "Chest_1")); ok {
		t.Fatal("chest still present after unload")
	}
	if err := v.toggleCave(mgr); err != nil {
		t.Fatalf("reload cave: %v", err)
	}
	chest, _ = v.Get(domain.NewIdentity(caveLevel, "Chest_1"))
	items, _ = chest.Value("items")
	if got := len(items.([]any)); got != before+1 {
		t.Errorf("items after round trip = %d, want %d", got, before+1)
	}
}

func TestRun_ExitSave(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "slotkeep.yaml")
	saves := filepath.Join(dir, "saves")
	cfg := "storage:\n  backend: fs\n  dir: " + saves + "\n" +
		"lifecycle:\n  save_on_exit: exit\n  shutdown_timeout: 10s\n" +
		"log:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	err := newApp().Run([]string{"slotkeep-demo", "--config", cfgPath, "--frames", "40", "--fps", "200", "--stream-every", "15", "--quicksave-every", "25"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"exit.sav", "quicksave.sav"} {
		if _, err := os.Stat(filepath.Join(saves, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
