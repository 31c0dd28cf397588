package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/testsupport"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

const sampleCatalog = `
albums:
  - name: Help!
    performer: Los Beatles
    art_file: help.png
tracks:
  - kind: disc
    title: Yesterday
    performer: Los Beatles
    album: Help!
  - kind: tape
    title: YESTERDAY
    performer: Covers Band
  - kind: tape
    title: Eres Tú
    performer: Mocedades
  - kind: disc
    title: Eres tu
    performer: Mocedades
`

type cliEnv struct {
	dir    string
	dbPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("CN_CONFIG_PATH", "")
	dir := t.TempDir()
	t.Setenv("CN_BACKUP_DIR", filepath.Join(dir, "snapshots"))
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(sampleCatalog), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "help.png"), testsupport.PNG(t, 6, 6, 0x33), 0o600); err != nil {
		t.Fatal(err)
	}
	env := &cliEnv{dir: dir, dbPath: filepath.Join(dir, "catalog.db")}
	env.run(t, "import", filepath.Join(dir, "catalog.yaml"))
	return env
}

func (e *cliEnv) exec(args ...string) (string, error) {
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", e.dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.exec(args...)
	if err != nil {
		t.Fatalf("cancionero %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (e *cliEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out := e.run(t, append([]string{"--json"}, args...)...)
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
}

func (e *cliEnv) performerID(t *testing.T, name string) string {
	t.Helper()
	var performers []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	e.runJSON(t, &performers, "performer", "list")
	for _, p := range performers {
		if p.Name == name {
			return p.ID
		}
	}
	t.Fatalf("performer %q not listed", name)
	return ""
}

func TestCLI_GroupsAndFilters(t *testing.T) {
	env := newCLIEnv(t)

	var all struct {
		Groups []struct {
			Key string `json:"key"`
		} `json:"groups"`
		Stats struct {
			Groups int `json:"groups"`
		} `json:"stats"`
	}
	env.runJSON(t, &all, "groups")
	if len(all.Groups) != 2 || all.Stats.Groups != 2 {
		t.Fatalf("groups = %+v", all)
	}

	var multi struct {
		Groups []struct {
			Key string `json:"key"`
		} `json:"groups"`
	}
	env.runJSON(t, &multi, "groups", "--filter", "multi-performer")
	if len(multi.Groups) != 1 || multi.Groups[0].Key != "yesterday" {
		t.Errorf("multi-performer groups = %+v, want only yesterday", multi.Groups)
	}

	table := env.run(t, "groups")
	if !strings.Contains(table, "Yesterday") || !strings.Contains(table, "2 groups") {
		t.Errorf("table output missing rows: %s", table)
	}
}

func TestCLI_MarkOriginalAndArt(t *testing.T) {
	env := newCLIEnv(t)
	beatles := env.performerID(t, "Los Beatles")
	groupID := textnorm.GroupIDForTitle("Yesterday")

	var marked map[string]int
	env.runJSON(t, &marked, "mark-original", groupID, beatles)
	if marked["rows_updated"] != 2 {
		t.Errorf("rows_updated = %d, want 2", marked["rows_updated"])
	}

	var group struct {
		Members []catalog.Track `json:"members"`
	}
	env.runJSON(t, &group, "group", groupID)
	var coverID string
	for _, m := range group.Members {
		if m.PerformerName == "Covers Band" {
			coverID = m.ID
			if m.OriginalPerformerName != "Los Beatles" || !m.IsCover {
				t.Errorf("cover track = %+v", m)
			}
		}
	}
	if coverID == "" {
		t.Fatal("cover track not in group")
	}

	out := filepath.Join(env.dir, "art.png")
	var art struct {
		Source string `json:"source"`
		Width  int    `json:"width"`
	}
	env.runJSON(t, &art, "art", coverID, "--out", out)
	if art.Source != "album" || art.Width != 6 {
		t.Errorf("art = %+v, want 6px album art", art)
	}
	if data, err := os.ReadFile(out); err != nil || len(data) == 0 {
		t.Errorf("art file not written: %v", err)
	}

	var canonical catalog.Performer
	env.runJSON(t, &canonical, "canonical", groupID)
	if canonical.ID != beatles {
		t.Errorf("canonical = %s, want %s", canonical.ID, beatles)
	}
}

func TestCLI_SyncAlbumsIsIdempotent(t *testing.T) {
	env := newCLIEnv(t)
	env.run(t, "mark-original", textnorm.GroupIDForTitle("Yesterday"), env.performerID(t, "Los Beatles"))

	var first, second map[string]int
	env.runJSON(t, &first, "sync-albums")
	env.runJSON(t, &second, "sync-albums")
	if first["rows_updated"] != 1 || second["rows_updated"] != 0 {
		t.Errorf("sync rows = %d then %d, want 1 then 0", first["rows_updated"], second["rows_updated"])
	}
}

func TestCLI_RenameMergesPerformers(t *testing.T) {
	env := newCLIEnv(t)
	covers := env.performerID(t, "Covers Band")
	beatles := env.performerID(t, "Los Beatles")

	out := env.run(t, "performer", "rename", covers, "los beatles")
	if !strings.Contains(out, "merged into "+beatles) {
		t.Errorf("rename output = %q", out)
	}

	_, err := env.exec("performer", "unify", covers, beatles)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("unify of merged performer err = %v, want ErrNotFound", err)
	}
	if code := exitCode(err); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestCLI_Errors(t *testing.T) {
	env := newCLIEnv(t)

	if _, err := env.exec("groups", "--filter", "bogus"); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("bad filter err = %v, want ErrInvalidArgument", err)
	}
	if _, err := env.exec("canonical", textnorm.GroupIDForTitle("Eres Tu")); !errors.Is(err, catalog.ErrConflict) {
		t.Errorf("ambiguous canonical err = %v, want ErrConflict", err)
	}
	if _, err := env.exec("art", "no-such-track"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing track art err = %v, want ErrNotFound", err)
	}
	if _, err := env.exec("suggest", " "); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("blank suggest err = %v, want ErrInvalidArgument", err)
	}
}

func TestCLI_SnapshotBeforeMerge(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("CN_BACKUP_BEFORE_MERGE", "true")

	covers := env.performerID(t, "Covers Band")
	beatles := env.performerID(t, "Los Beatles")
	env.run(t, "performer", "unify", covers, beatles)

	var snaps []struct {
		Filename string `json:"filename"`
	}
	env.runJSON(t, &snaps, "backup", "list")
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %+v, want exactly one", snaps)
	}

	// The snapshot still holds the performer the merge removed.
	copyEnv := &cliEnv{dir: env.dir, dbPath: filepath.Join(env.dir, "snapshots", snaps[0].Filename)}
	if id := copyEnv.performerID(t, "Covers Band"); id != covers {
		t.Errorf("snapshot performer id = %q, want %q", id, covers)
	}
}

func TestCLI_DBStatusAndCheck(t *testing.T) {
	env := newCLIEnv(t)

	var st struct {
		Performers int `json:"performers"`
		TapeTracks int `json:"tape_tracks"`
		DiscTracks int `json:"disc_tracks"`
	}
	env.runJSON(t, &st, "db", "status")
	if st.Performers != 3 || st.TapeTracks != 2 || st.DiscTracks != 2 {
		t.Errorf("status = %+v", st)
	}

	if out := env.run(t, "db", "check"); !strings.Contains(out, "ok") {
		t.Errorf("check output = %q", out)
	}
	env.run(t, "db", "optimize", "--vacuum")
}

func TestCLI_ExportRoundTrip(t *testing.T) {
	env := newCLIEnv(t)
	groupID := textnorm.GroupIDForTitle("Yesterday")
	env.run(t, "mark-original", groupID, env.performerID(t, "Los Beatles"))

	exportDir := filepath.Join(env.dir, "export")
	var sum struct {
		Albums   int `json:"albums"`
		Tracks   int `json:"tracks"`
		ArtFiles int `json:"art_files"`
	}
	env.runJSON(t, &sum, "export", exportDir)
	if sum.Albums != 1 || sum.Tracks != 4 || sum.ArtFiles != 1 {
		t.Fatalf("export summary = %+v", sum)
	}
	if _, err := os.Stat(filepath.Join(exportDir, "art")); err != nil {
		t.Fatalf("art directory: %v", err)
	}

	copyEnv := &cliEnv{dir: exportDir, dbPath: filepath.Join(exportDir, "copy.db")}
	copyEnv.run(t, "import", filepath.Join(exportDir, "catalog.yaml"))

	var group struct {
		Members []catalog.Track `json:"members"`
	}
	copyEnv.runJSON(t, &group, "group", groupID)
	if len(group.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(group.Members))
	}
	for _, m := range group.Members {
		if m.PerformerName == "Covers Band" && m.OriginalPerformerName != "Los Beatles" {
			t.Errorf("classification lost on round trip: %+v", m)
		}
	}
}
