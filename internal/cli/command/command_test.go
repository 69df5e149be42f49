package command

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotkeep-go/internal/config"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/storage/slot"
	"github.com/yndnr/slotkeep-go/internal/storage/snapshot"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
)

// seedSlot writes a slot with two levels into an fs store at dir.
func seedSlot(t *testing.T, dir, id string, savedAt time.Time) []byte {
	t.Helper()
	tr, err := transport.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	defer tr.Close()
	slots, err := slot.NewManager(tr, slot.Config{Compress: true}, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer slots.Close()

	door := domain.Identity{Level: "Castle", Name: "Door_1"}
	sections := []snapshot.Section{
		{Level: "Castle", Records: []domain.ObjectRecord{
			{ID: door, TypeID: "Door", Spawn: domain.SpawnParams{Class: "Door"}, Fields: []domain.FieldEntry{{Tag: 1, Data: []byte{1}}}},
			{ID: domain.Identity{Level: "Castle", Name: "Hinge_1"}, TypeID: "Hinge", Spawn: domain.SpawnParams{Class: "Hinge", Owner: door}},
			{ID: domain.Identity{Level: "Castle", Name: "Guard_7"}, TypeID: "Guard", Destroyed: true},
		}},
		{Level: "Village", Records: []domain.ObjectRecord{
			{ID: domain.Identity{Level: "Village", Name: "Chest_2"}, TypeID: "Chest"},
		}},
	}
	meta := domain.SlotMetadata{SlotID: id, Name: "Before the gate", Map: "Castle", Levels: []string{"Castle", "Village"}, SavedAt: savedAt, TotalPlayed: 90 * time.Minute, ObjectCount: 4}
	payload, err := snapshot.NewEncoder(0).Encode(3, meta, sections)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := slots.Save(context.Background(), meta, payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return payload
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SLOTKEEP_CONFIG", "")
	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"slotkeep-cli"}, args...))
	return stdout.String(), err
}

func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}

func TestSlotList(t *testing.T) {
	dir := t.TempDir()
	seedSlot(t, dir, "slot-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	seedSlot(t, dir, "slot-2", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	out, err := run(t, "--dir", dir, "slot", "list")
	if err != nil {
		t.Fatalf("slot list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "slot-2") {
		t.Errorf("most recent slot should be first:\n%s", out)
	}
	if !strings.Contains(lines[1], "1:30:00") {
		t.Errorf("played time missing:\n%s", out)
	}

	out, err = run(t, "--dir", dir, "-o", "json", "slot", "list")
	if err != nil {
		t.Fatalf("slot list json: %v", err)
	}
	var rows []slotRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("parse json: %v\n%s", err, out)
	}
	if len(rows) != 2 || !rows[0].Compressed || rows[0].Objects != 4 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSlotList_CorruptMetadata(t *testing.T) {
	dir := t.TempDir()
	seedSlot(t, dir, "good", time.Now())
	for _, name := range []string{"bad.sav", "bad.meta"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	out, err := run(t, "--dir", dir, "-o", "yaml", "slot", "list")
	if err != nil {
		t.Fatalf("slot list: %v", err)
	}
	if !strings.Contains(out, "slot: bad") || !strings.Contains(out, "error:") {
		t.Errorf("corrupt entry not reported:\n%s", out)
	}
}

func TestSlotShow(t *testing.T) {
	dir := t.TempDir()
	seedSlot(t, dir, "slot-1", time.Now())

	out, err := run(t, "--dir", dir, "slot", "show", "slot-1")
	if err != nil {
		t.Fatalf("slot show: %v", err)
	}
	for _, want := range []string{"Before the gate", "zstd", "Castle,Village"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "--dir", dir, "slot", "show"); exitCode(err) != 2 {
		t.Errorf("missing argument: err = %v", err)
	}
	if _, err := run(t, "--dir", dir, "slot", "show", "nope"); err == nil {
		t.Error("missing slot should fail")
	}
}

func TestSlotVerify(t *testing.T) {
	dir := t.TempDir()
	seedSlot(t, dir, "slot-1", time.Now())
	seedSlot(t, dir, "slot-2", time.Now())

	out, err := run(t, "--dir", dir, "slot", "verify", "--all")
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if strings.Count(out, " ok") != 2 {
		t.Errorf("expected two ok rows:\n%s", out)
	}

	// Flip a payload byte.
	path := filepath.Join(dir, "slot-2.sav")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, "--dir", dir, "-o", "json", "slot", "verify", "slot-1", "slot-2", "ghost")
	if exitCode(err) != 1 {
		t.Fatalf("verify should exit 1, got %v", err)
	}
	var rows []verifyRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("parse: %v\n%s", err, out)
	}
	got := map[string]string{}
	for _, r := range rows {
		got[r.Slot] = r.Status
	}
	if got["slot-1"] != "ok" || got["slot-2"] != "corrupt" || got["ghost"] != "missing" {
		t.Errorf("statuses = %v", got)
	}

	if _, err := run(t, "--dir", dir, "slot", "verify"); exitCode(err) != 2 {
		t.Errorf("verify without slots: %v", err)
	}
}

func TestSlotDeleteAndCopy(t *testing.T) {
	dir := t.TempDir()
	seedSlot(t, dir, "slot-1", time.Now())

	if _, err := run(t, "--dir", dir, "slot", "copy", "--name", "Backup", "slot-1", "backup"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	out, err := run(t, "--dir", dir, "-o", "json", "slot", "show", "backup")
	if err != nil {
		t.Fatalf("show copy: %v", err)
	}
	if !strings.Contains(out, `"name": "Backup"`) {
		t.Errorf("copy name not applied:\n%s", out)
	}

	if _, err := run(t, "--dir", dir, "slot", "delete", "slot-1"); exitCode(err) != 2 {
		t.Errorf("delete without --yes should refuse, got %v", err)
	}
	if _, err := run(t, "--dir", dir, "slot", "rm", "-y", "slot-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "slot-1.sav")); !os.IsNotExist(err) {
		t.Errorf("slot-1 payload still present: %v", err)
	}
	if _, err := run(t, "--dir", dir, "slot", "verify", "backup"); err != nil {
		t.Errorf("copy should verify after deleting the source: %v", err)
	}
}

func TestSlotDump(t *testing.T) {
	dir := t.TempDir()
	seedSlot(t, dir, "slot-1", time.Now())

	out, err := run(t, "--dir", dir, "-o", "json", "slot", "dump", "slot-1")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	var dump slotDump
	if err := json.Unmarshal([]byte(out), &dump); err != nil {
		t.Fatalf("parse: %v\n%s", err, out)
	}
	if dump.SchemaVersion != 3 || len(dump.Levels) != 2 {
		t.Fatalf("dump = %+v", dump)
	}
	castle := dump.Levels[0]
	if castle.Records != 3 || castle.Tombstones != 1 || castle.Types["Door"] != 1 {
		t.Errorf("castle = %+v", castle)
	}

	out, err = run(t, "--dir", dir, "-w", "slot", "dump", "--records", "--level", "Castle", "slot-1")
	if err != nil {
		t.Fatalf("dump records: %v", err)
	}
	if strings.Contains(out, "Village") || !strings.Contains(out, "destroyed") {
		t.Errorf("record table:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Castle.Hinge_1") && !strings.Contains(line, "Castle.Door_1") {
			t.Errorf("owner column missing: %q", line)
		}
	}
}

func TestDescribeSnapshot_Corrupt(t *testing.T) {
	if _, err := describeSnapshot("x", []byte("junk"), domain.AllLevels(), false); err == nil {
		t.Error("corrupt header should fail")
	}
}

func TestSlotCompact(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, "--dir", dir, "slot", "compact"); exitCode(err) != 2 {
		t.Errorf("compact on fs: %v", err)
	}
	out, err := run(t, "--backend", "badger", "--dir", filepath.Join(dir, "db"), "slot", "compact")
	if err != nil {
		t.Fatalf("compact on badger: %v", err)
	}
	if !strings.Contains(out, "compacted") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slotkeep.yaml")
	content := "storage:\n  dir: " + dir + "\nslots:\n  master_key: hex:000102030405060708090a0b0c0d0e0f\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "hex:***") || strings.Contains(out, "0e0f") {
		t.Errorf("key not masked:\n%s", out)
	}

	out, err = run(t, "--config", path, "config", "show", "--reveal")
	if err != nil || !strings.Contains(out, "0e0f") {
		t.Errorf("reveal: %v\n%s", err, out)
	}

	if out, err := run(t, "config", "validate", path); err != nil || !strings.Contains(out, "ok") {
		t.Errorf("validate: %v %q", err, out)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("engine:\n  mode: merge\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "config", "validate", bad); exitCode(err) != 1 {
		t.Errorf("invalid file: %v", err)
	}
	if _, err := run(t, "config", "validate", filepath.Join(dir, "absent.yaml")); exitCode(err) != 1 {
		t.Errorf("missing file: %v", err)
	}

	out, err = run(t, "-o", "json", "config", "default")
	if err != nil || !strings.Contains(out, `"backend": "fs"`) {
		t.Errorf("default: %v\n%s", err, out)
	}
}

func TestConfigGenKey(t *testing.T) {
	out, err := run(t, "config", "genkey")
	if err != nil {
		t.Fatalf("genkey: %v", err)
	}
	key := strings.TrimSpace(out)
	if !strings.HasPrefix(key, "hex:") || len(key) != len("hex:")+64 {
		t.Fatalf("genkey = %q", key)
	}
	again, _ := run(t, "config", "genkey")
	if strings.TrimSpace(again) == key {
		t.Fatal("genkey repeated a key")
	}

	sc := config.Default().Slots
	sc.MasterKey = key
	if k, err := sc.Key(); err != nil || len(k) != 32 {
		t.Fatalf("generated key rejected: %d bytes, %v", len(k), err)
	}

	out, err = run(t, "config", "genkey", "--base64")
	if err != nil || !strings.HasPrefix(out, "base64:") {
		t.Fatalf("genkey --base64 = %q, %v", out, err)
	}
}

func TestGlobalFlags(t *testing.T) {
	if _, err := run(t, "-o", "xml", "version"); exitCode(err) != 2 {
		t.Errorf("bad output format: %v", err)
	}
	out, err := run(t, "-o", "json", "version")
	if err != nil || !strings.Contains(out, `"go_version"`) {
		t.Errorf("version: %v\n%s", err, out)
	}
}
