package command

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/slotkeep-go/internal/cli/output"
	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/storage/snapshot"
	"github.com/yndnr/slotkeep-go/internal/storage/transport"
	"github.com/yndnr/slotkeep-go/internal/telemetry/logger"
)

// SlotCommand returns the slot subcommand group.
func SlotCommand() *cli.Command {
	return &cli.Command{
		Name:    "slot",
		Aliases: []string{"slots"},
		Usage:   "Save slot maintenance",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List slots, most recent first",
				Action:  slotList,
			},
			{
				Name:      "show",
				Usage:     "Show the metadata of a slot",
				ArgsUsage: "SLOT",
				Action:    slotShow,
			},
			{
				Name:      "verify",
				Usage:     "Check slot checksums and payload fingerprints",
				ArgsUsage: "[SLOT...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "verify every slot"},
				},
				Action: slotVerify,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete slots",
				ArgsUsage: "SLOT...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "confirm deletion"},
				},
				Action: slotDelete,
			},
			{
				Name:      "copy",
				Aliases:   []string{"cp"},
				Usage:     "Copy a slot to a new id",
				ArgsUsage: "SRC DST",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "display name of the copy"},
				},
				Action: slotCopy,
			},
			{
				Name:      "dump",
				Usage:     "Describe the levels and records inside a slot",
				ArgsUsage: "SLOT",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "level", Aliases: []string{"l"}, Usage: "only these levels"},
					&cli.BoolFlag{Name: "records", Aliases: []string{"r"}, Usage: "list every record"},
				},
				Action: slotDumpAction,
			},
			{
				Name:   "compact",
				Usage:  "Reclaim space in a badger slot store",
				Action: slotCompact,
			},
		},
	}
}

// ============================================================================
// list / show
// ============================================================================

type slotRow struct {
	Slot          string   `json:"slot" yaml:"slot"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	Subname       string   `json:"subname,omitempty" yaml:"subname,omitempty"`
	SavedAt       string   `json:"saved_at,omitempty" yaml:"saved_at,omitempty"`
	Map           string   `json:"map,omitempty" yaml:"map,omitempty"`
	Levels        []string `json:"levels,omitempty" yaml:"levels,omitempty"`
	TotalPlayed   string   `json:"total_played,omitempty" yaml:"total_played,omitempty"`
	SlotPlayed    string   `json:"slot_played,omitempty" yaml:"slot_played,omitempty"`
	Objects       int      `json:"objects" yaml:"objects"`
	PayloadSize   int64    `json:"payload_size" yaml:"payload_size"`
	SchemaVersion uint32   `json:"schema_version" yaml:"schema_version"`
	AppVersion    string   `json:"app_version,omitempty" yaml:"app_version,omitempty"`
	Compressed    bool     `json:"compressed" yaml:"compressed"`
	Encrypted     bool     `json:"encrypted" yaml:"encrypted"`
	Thumbnail     int      `json:"thumbnail_bytes,omitempty" yaml:"thumbnail_bytes,omitempty"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func newSlotRow(meta domain.SlotMetadata, err error) slotRow {
	row := slotRow{Slot: meta.SlotID}
	if err != nil {
		row.Error = err.Error()
		return row
	}
	row.Name = meta.Name
	row.Subname = meta.Subname
	row.SavedAt = output.FormatTime(meta.SavedAt)
	row.Map = meta.Map
	row.Levels = meta.Levels
	row.TotalPlayed = output.FormatDuration(meta.TotalPlayed)
	row.SlotPlayed = output.FormatDuration(meta.SlotPlayed)
	row.Objects = meta.ObjectCount
	row.PayloadSize = meta.PayloadSize
	row.SchemaVersion = meta.SchemaVersion
	row.AppVersion = meta.AppVersion
	row.Compressed = meta.Compressed
	row.Encrypted = meta.Encrypted
	row.Thumbnail = len(meta.Thumbnail)
	return row
}

func (r slotRow) flags() string {
	var f []string
	if r.Compressed {
		f = append(f, "zstd")
	}
	if r.Encrypted {
		f = append(f, "enc")
	}
	return output.FormatList(f)
}

type slotRows []slotRow

func (rows slotRows) Table(wide bool) *output.Table {
	t := output.NewTable("SLOT", "NAME", "SAVED", "MAP", "PLAYED", "SIZE")
	if wide {
		t.Headers = append(t.Headers, "OBJECTS", "LEVELS", "SCHEMA", "APP", "FLAGS")
	}
	t.Headers = append(t.Headers, "ERROR")
	for _, r := range rows {
		cells := []string{r.Slot, r.Name, r.SavedAt, r.Map, r.TotalPlayed, output.FormatBytes(r.PayloadSize)}
		if r.Error != "" {
			cells = []string{r.Slot, "", "", "", "", ""}
		}
		if wide {
			cells = append(cells,
				strconv.Itoa(r.Objects),
				output.FormatList(r.Levels),
				strconv.FormatUint(uint64(r.SchemaVersion), 10),
				r.AppVersion,
				r.flags())
		}
		t.AddRow(append(cells, r.Error)...)
	}
	return t
}

func (r slotRow) Table(bool) *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("slot", r.Slot)
	t.AddRow("name", r.Name)
	t.AddRow("subname", r.Subname)
	t.AddRow("saved", r.SavedAt)
	t.AddRow("map", r.Map)
	t.AddRow("levels", output.FormatList(r.Levels))
	t.AddRow("total played", r.TotalPlayed)
	t.AddRow("slot played", r.SlotPlayed)
	t.AddRow("objects", strconv.Itoa(r.Objects))
	t.AddRow("payload", output.FormatBytes(r.PayloadSize))
	t.AddRow("schema", strconv.FormatUint(uint64(r.SchemaVersion), 10))
	t.AddRow("app version", r.AppVersion)
	t.AddRow("flags", r.flags())
	if r.Thumbnail > 0 {
		t.AddRow("thumbnail", output.FormatBytes(int64(r.Thumbnail)))
	}
	if r.Error != "" {
		t.AddRow("error", r.Error)
	}
	return t
}

func slotList(c *cli.Context) error {
	e := getEnv(c)
	slots, err := e.openSlots()
	if err != nil {
		return err
	}
	entries, err := slots.List(c.Context)
	if err != nil {
		return err
	}
	rows := make(slotRows, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, newSlotRow(entry.Meta, entry.Err))
	}
	return e.print(rows)
}

func slotShow(c *cli.Context) error {
	id, err := requireArg(c, "SLOT")
	if err != nil {
		return err
	}
	e := getEnv(c)
	slots, err := e.openSlots()
	if err != nil {
		return err
	}
	meta, err := slots.Metadata(c.Context, id)
	if err != nil {
		return err
	}
	row := newSlotRow(*meta, nil)
	// The envelope flag byte is authoritative over metadata.
	if compressed, encrypted, err := slots.Flags(c.Context, id); err == nil {
		row.Compressed, row.Encrypted = compressed, encrypted
	} else {
		row.Error = err.Error()
	}
	return e.print(row)
}

// ============================================================================
// verify / delete / copy
// ============================================================================

type verifyRow struct {
	Slot   string `json:"slot" yaml:"slot"`
	Status string `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type verifyRows []verifyRow

func (rows verifyRows) Table(bool) *output.Table {
	t := output.NewTable("SLOT", "STATUS", "DETAIL")
	for _, r := range rows {
		t.AddRow(r.Slot, r.Status, r.Detail)
	}
	return t
}

func verifyStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSlotNotFound):
		return "missing"
	case errors.Is(err, domain.ErrCorruptFormat):
		return "corrupt"
	case errors.Is(err, domain.ErrInvalidSlotID):
		return "invalid"
	default:
		return "error"
	}
}

func slotVerify(c *cli.Context) error {
	e := getEnv(c)
	slots, err := e.openSlots()
	if err != nil {
		return err
	}
	ids := c.Args().Slice()
	if c.Bool("all") {
		entries, err := slots.List(c.Context)
		if err != nil {
			return err
		}
		ids = nil
		for _, entry := range entries {
			ids = append(ids, entry.Meta.SlotID)
		}
		sort.Strings(ids)
	}
	if len(ids) == 0 {
		return cli.Exit("slot verify: name at least one SLOT or use --all", 2)
	}

	var progress *output.Progress
	if e.format == output.FormatTable && len(ids) > 1 {
		progress = output.NewProgress(e.stderr, "verifying", len(ids))
	}
	rows := make(verifyRows, 0, len(ids))
	failed := 0
	for _, id := range ids {
		ctx := logger.WithSlot(c.Context, id)
		_, err := slots.Verify(ctx, id)
		row := verifyRow{Slot: id, Status: verifyStatus(err)}
		if err != nil {
			failed++
			row.Detail = err.Error()
			logger.L(ctx).Debug("slot failed verification", "error", err)
		}
		rows = append(rows, row)
		if progress != nil {
			progress.Step(id)
		}
	}
	if progress != nil {
		progress.Finish()
	}
	if err := e.print(rows); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d slot(s) failed verification", failed, len(ids)), 1)
	}
	return nil
}

func slotDelete(c *cli.Context) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return cli.Exit("slot delete: SLOT is required", 2)
	}
	if !c.Bool("yes") {
		return cli.Exit(fmt.Sprintf("refusing to delete %s without --yes", strings.Join(ids, ", ")), 2)
	}
	e := getEnv(c)
	slots, err := e.openSlots()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := slots.Delete(logger.WithSlot(c.Context, id), id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		fmt.Fprintf(e.stdout, "deleted %s\n", id)
	}
	return nil
}

func slotCopy(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("slot copy: SRC and DST are required", 2)
	}
	src, dst := c.Args().Get(0), c.Args().Get(1)
	e := getEnv(c)
	slots, err := e.openSlots()
	if err != nil {
		return err
	}
	ctx := logger.WithSlot(c.Context, src)
	payload, err := slots.Load(ctx, src)
	if err != nil {
		return err
	}
	meta, err := slots.Metadata(ctx, src)
	if err != nil {
		return err
	}
	meta.SlotID = dst
	if c.IsSet("name") {
		meta.Name = c.String("name")
	}
	saved, err := slots.Save(logger.WithSlot(c.Context, dst), *meta, payload)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return e.print(newSlotRow(*saved, nil))
}

// ============================================================================
// dump
// ============================================================================

type recordDump struct {
	ID        string `json:"id" yaml:"id"`
	Type      string `json:"type" yaml:"type"`
	Fields    int    `json:"fields" yaml:"fields"`
	Destroyed bool   `json:"destroyed,omitempty" yaml:"destroyed,omitempty"`
	Owner     string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Class     string `json:"class,omitempty" yaml:"class,omitempty"`
}

type levelDump struct {
	Level      string         `json:"level" yaml:"level"`
	Records    int            `json:"records" yaml:"records"`
	Tombstones int            `json:"tombstones" yaml:"tombstones"`
	Types      map[string]int `json:"types,omitempty" yaml:"types,omitempty"`
	Objects    []recordDump   `json:"objects,omitempty" yaml:"objects,omitempty"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
}

type slotDump struct {
	Slot          string      `json:"slot" yaml:"slot"`
	FormatVersion uint32      `json:"format_version" yaml:"format_version"`
	SchemaVersion uint32      `json:"schema_version" yaml:"schema_version"`
	Size          int         `json:"size" yaml:"size"`
	Levels        []levelDump `json:"levels" yaml:"levels"`
}

func (d slotDump) Table(wide bool) *output.Table {
	withRecords := false
	for _, l := range d.Levels {
		if len(l.Objects) > 0 {
			withRecords = true
		}
	}
	if withRecords {
		t := output.NewTable("LEVEL", "ID", "TYPE", "FIELDS", "STATE")
		if wide {
			t.Headers = append(t.Headers, "CLASS", "OWNER")
		}
		for _, l := range d.Levels {
			for _, o := range l.Objects {
				state := "live"
				if o.Destroyed {
					state = "destroyed"
				}
				cells := []string{l.Level, o.ID, o.Type, strconv.Itoa(o.Fields), state}
				if wide {
					cells = append(cells, o.Class, o.Owner)
				}
				t.AddRow(cells...)
			}
		}
		return t
	}

	t := output.NewTable("LEVEL", "RECORDS", "TOMBSTONES", "TYPES")
	if wide {
		t.Headers = append(t.Headers, "ERROR")
	}
	for _, l := range d.Levels {
		names := make([]string, 0, len(l.Types))
		for name, n := range l.Types {
			names = append(names, fmt.Sprintf("%s=%d", name, n))
		}
		sort.Strings(names)
		cells := []string{l.Level, strconv.Itoa(l.Records), strconv.Itoa(l.Tombstones), output.FormatList(names)}
		if wide {
			cells = append(cells, l.Error)
		}
		t.AddRow(cells...)
	}
	return t
}

func slotDumpAction(c *cli.Context) error {
	id, err := requireArg(c, "SLOT")
	if err != nil {
		return err
	}
	e := getEnv(c)
	slots, err := e.openSlots()
	if err != nil {
		return err
	}
	payload, err := slots.Load(logger.WithSlot(c.Context, id), id)
	if err != nil {
		return err
	}
	dump, err := describeSnapshot(id, payload, domain.OnlyLevels(c.StringSlice("level")...), c.Bool("records"))
	if err != nil {
		return err
	}
	return e.print(dump)
}

// describeSnapshot summarizes a slot payload. A damaged level is
// reported in its entry rather than failing the dump.
func describeSnapshot(id string, payload []byte, filter domain.LevelFilter, records bool) (slotDump, error) {
	buf, err := snapshot.Open(payload)
	if err != nil {
		return slotDump{}, err
	}
	hdr := buf.Header()
	dump := slotDump{
		Slot:          id,
		FormatVersion: hdr.FormatVersion,
		SchemaVersion: hdr.SchemaVersion,
		Size:          buf.Size(),
	}
	for _, level := range buf.Levels() {
		if !filter.Includes(level) {
			continue
		}
		ld := levelDump{Level: level, Types: map[string]int{}}
		recs, err := buf.Section(level)
		if err != nil {
			ld.Error = err.Error()
			dump.Levels = append(dump.Levels, ld)
			continue
		}
		for _, rec := range recs {
			ld.Records++
			if rec.Destroyed {
				ld.Tombstones++
			} else {
				ld.Types[rec.TypeID]++
			}
			if records {
				rd := recordDump{
					ID:        rec.ID.String(),
					Type:      rec.TypeID,
					Fields:    len(rec.Fields),
					Destroyed: rec.Destroyed,
					Class:     rec.Spawn.Class,
				}
				if !rec.Spawn.Owner.IsZero() {
					rd.Owner = rec.Spawn.Owner.String()
				}
				ld.Objects = append(ld.Objects, rd)
			}
		}
		dump.Levels = append(dump.Levels, ld)
	}
	return dump, nil
}

// ============================================================================
// compact
// ============================================================================

func slotCompact(c *cli.Context) error {
	e := getEnv(c)
	if _, err := e.openSlots(); err != nil {
		return err
	}
	db, ok := e.tr.(*transport.Badger)
	if !ok {
		return cli.Exit(fmt.Sprintf("slot compact: the %s backend needs no compaction", e.cfg.Storage.Backend), 2)
	}
	rounds, err := db.GC(c.Context)
	if err != nil {
		return err
	}
	lsm, vlog := db.Sizes()
	fmt.Fprintf(e.stdout, "compacted in %d round(s); lsm %s, value log %s\n",
		rounds, output.FormatBytes(lsm), output.FormatBytes(vlog))
	return nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("%s: exactly one %s is required", c.Command.FullName(), name), 2)
	}
	return c.Args().First(), nil
}
