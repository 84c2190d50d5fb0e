package orchestrator_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"stack-backup/src/backup/config"
	"stack-backup/src/backup/volumes"
	"stack-backup/src/dockerapi"
	"stack-backup/src/manifest"
	"stack-backup/src/migrate"
	"stack-backup/src/orchestrator"
	"stack-backup/src/restoreplan"
	"stack-backup/src/stack"
)

const testLabel = "stack=demo"

func testEnv(t *testing.T) stack.Environment {
	t.Helper()
	cfgDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cfgDir, config.EnvFileName), []byte("PORT=8080\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, config.StateFileName), []byte(`{"version":3,"settings":{"compression":"gzip"}}`), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	return stack.Environment{
		BackupDir:     t.TempDir(),
		Label:         testLabel,
		ConfigDir:     cfgDir,
		Parallel:      2,
		HelperTimeout: time.Minute,
	}
}

// tickingClock hands out strictly increasing timestamps so consecutive
// backups in one test get distinct ids.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newOrchestrator(t *testing.T, fake *dockerapi.FakeClient) *orchestrator.Orchestrator {
	o := orchestrator.New(fake, testEnv(t), nil)
	o.Now = tickingClock()
	return o
}

func TestCreateBackup_NightlyScenario(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"data.txt": []byte("x")})
	fake.AddVolume("b", map[string]string{"stack": "demo"}, map[string][]byte{"data.txt": []byte("y")})
	o := newOrchestrator(t, fake)

	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{Description: "nightly"})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if len(b.Manifest.Volumes) != 2 {
		t.Fatalf("volumes in manifest = %v", b.Manifest.Volumes)
	}
	ea, _ := b.Manifest.Entry("a")
	eb, _ := b.Manifest.Entry("b")
	if ea.Checksum == eb.Checksum {
		t.Fatal("distinct volume contents produced identical checksums")
	}

	// Freshly created backup verifies clean.
	disc, err := manifest.Verify(b.Manifest, b.Path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(disc) != 0 {
		t.Fatalf("fresh backup has discrepancies: %v", disc)
	}

	// Restore into a fresh environment.
	fresh := dockerapi.NewFake()
	o2 := orchestrator.New(fresh, o.Env, nil)
	o2.Now = tickingClock()
	o2.Env.ConfigDir = t.TempDir()
	res, err := o2.RestoreFromBackup(context.Background(), b.Path, orchestrator.RestoreOptions{})
	if err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}
	if res.Plan.Action != restoreplan.ActionOverwrite {
		t.Fatalf("plan = %+v", res.Plan)
	}
	if string(fresh.Volumes["a"]["data.txt"]) != "x" || string(fresh.Volumes["b"]["data.txt"]) != "y" {
		t.Fatalf("restored volume contents wrong: %v", fresh.Volumes)
	}
	if _, err := os.Stat(filepath.Join(o2.Env.ConfigDir, config.EnvFileName)); err != nil {
		t.Fatalf("config not restored: %v", err)
	}
}

func TestBackupRestore_ManyVolumesInParallel(t *testing.T) {
	fake := dockerapi.NewFake()
	names := []string{"v1", "v2", "v3", "v4", "v5", "v6"}
	for _, n := range names {
		fake.AddVolume(n, map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("content-" + n)})
	}
	var log bytes.Buffer
	o := orchestrator.New(fake, testEnv(t), &log)
	o.Now = tickingClock()
	o.Env.Parallel = 6

	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if len(b.Manifest.Volumes) != len(names) {
		t.Fatalf("volumes in manifest = %v", b.Manifest.Volumes)
	}
	for _, n := range names {
		if !strings.Contains(log.String(), n) {
			t.Fatalf("no progress line for %s in:\n%s", n, log.String())
		}
	}

	fresh := dockerapi.NewFake()
	o2 := orchestrator.New(fresh, o.Env, &log)
	o2.Now = tickingClock()
	o2.Env.ConfigDir = t.TempDir()
	if _, err := o2.RestoreFromBackup(context.Background(), b.Path, orchestrator.RestoreOptions{}); err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}
	for _, n := range names {
		if string(fresh.Volumes[n]["f"]) != "content-"+n {
			t.Fatalf("restored %s = %q", n, fresh.Volumes[n]["f"])
		}
	}
}

func TestCreateBackup_PartialFailureIsolation(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	fake.AddVolume("b", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("2")})
	fake.AddVolume("c", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("3")})
	fake.FailHelper["b"] = "simulated runtime error"
	o := newOrchestrator(t, fake)

	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if got := b.Manifest.Volumes; len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("manifest volumes = %v, want [a c]", got)
	}
	failed := b.FailedUnits()
	if len(failed) != 1 || failed[0].Name != "b" {
		t.Fatalf("failed units = %v, want exactly b", failed)
	}
	ok := 0
	for _, u := range b.Units {
		if u.Kind == manifest.KindVolume && u.OK() {
			ok++
		}
	}
	if ok != 2 {
		t.Fatalf("successful volume units = %d, want 2", ok)
	}
	// The failed unit must not leave a file behind the manifest's back.
	disc, err := manifest.Verify(b.Manifest, b.Path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(disc) != 0 {
		t.Fatalf("partial backup inconsistent with manifest: %v", disc)
	}
}

func TestCreateBackup_DiskFullIsFatal(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	fake.AddVolume("b", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("2")})
	fake.FailHelper["b"] = "tar: write error: No space left on device"
	o := newOrchestrator(t, fake)

	_, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	var df *volumes.DiskFullError
	if !errors.As(err, &df) {
		t.Fatalf("expected DiskFullError, got %v", err)
	}
	// The whole backup is gone, not just the failed unit.
	dirents, readErr := os.ReadDir(o.Env.BackupDir)
	if readErr != nil {
		t.Fatalf("read backup dir: %v", readErr)
	}
	if len(dirents) != 0 {
		t.Fatalf("partial backup left behind: %v", dirents)
	}
}

func TestRestore_SafetyBackupCapturesTargetDir(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	o := newOrchestrator(t, fake)
	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Restore into a target distinct from Env.ConfigDir; the safety backup
	// must snapshot the config that is actually being overwritten.
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, config.EnvFileName), []byte("TARGET=1\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target, config.StateFileName), []byte(`{"version":3,"settings":{}}`), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	res, err := o.RestoreFromBackup(context.Background(), b.ID, orchestrator.RestoreOptions{TargetDir: target})
	if err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}
	if res.SafetyBackupID == "" {
		t.Fatalf("no safety backup taken: %+v", res)
	}
	saved, err := os.ReadFile(filepath.Join(o.Env.BackupDir, res.SafetyBackupID, "env"))
	if err != nil {
		t.Fatalf("read safety env: %v", err)
	}
	if string(saved) != "TARGET=1\n" {
		t.Fatalf("safety backup captured the wrong config dir: %q", saved)
	}
}

func TestRestore_ConflictGatingWhileStackRunning(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	o := newOrchestrator(t, fake)
	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	fake.Running = []string{"web", "db"}
	fake.Volumes["a"]["f"] = []byte("live")
	beforeEnv, _ := os.ReadFile(filepath.Join(o.Env.ConfigDir, config.EnvFileName))

	res, err := o.RestoreFromBackup(context.Background(), b.ID, orchestrator.RestoreOptions{})
	var conflict *orchestrator.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Reason != "stack_running" {
		t.Fatalf("reason = %q, want stack_running", conflict.Reason)
	}
	if res.Plan.Action != restoreplan.ActionAbort {
		t.Fatalf("plan = %+v", res.Plan)
	}
	// No files modified.
	if string(fake.Volumes["a"]["f"]) != "live" {
		t.Fatal("aborted restore touched a volume")
	}
	afterEnv, _ := os.ReadFile(filepath.Join(o.Env.ConfigDir, config.EnvFileName))
	if string(beforeEnv) != string(afterEnv) {
		t.Fatal("aborted restore touched the config")
	}
}

func TestRestore_ExistingConfigTakesSafetyBackup(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	o := newOrchestrator(t, fake)
	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Target config still exists; restore without force must back it up first.
	res, err := o.RestoreFromBackup(context.Background(), b.ID, orchestrator.RestoreOptions{})
	if err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}
	if res.Plan.Action != restoreplan.ActionBackupThenOverwrite {
		t.Fatalf("plan = %+v", res.Plan)
	}
	if res.SafetyBackupID == "" {
		t.Fatal("no safety backup id reported")
	}
	safetyDir := filepath.Join(o.Env.BackupDir, res.SafetyBackupID)
	m, err := manifest.Read(filepath.Join(safetyDir, manifest.FileName))
	if err != nil {
		t.Fatalf("safety backup unreadable: %v", err)
	}
	if len(m.ConfigFiles) != 2 || len(m.Volumes) != 0 {
		t.Fatalf("safety backup should be config-only: %+v", m)
	}
}

func TestRestore_ValidateOnlyMutatesNothing(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	o := newOrchestrator(t, fake)
	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	fake.Volumes["a"]["f"] = []byte("changed")
	helpersBefore := len(fake.HelperRuns)
	res, err := o.RestoreFromBackup(context.Background(), b.ID, orchestrator.RestoreOptions{ValidateOnly: true})
	if err != nil {
		t.Fatalf("validate-only restore: %v", err)
	}
	if !res.ValidateOnly {
		t.Fatalf("result not marked validate-only: %+v", res)
	}
	if len(fake.HelperRuns) != helpersBefore {
		t.Fatal("validate-only launched helper containers")
	}
	if string(fake.Volumes["a"]["f"]) != "changed" {
		t.Fatal("validate-only mutated a volume")
	}
}

func TestRestore_IntegrityFailureAbortsUnlessForced(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	o := newOrchestrator(t, fake)
	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Corrupt the volume archive without changing its size.
	archive := filepath.Join(b.Path, "a.tar.gz")
	raw, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(archive, raw, 0o644); err != nil {
		t.Fatalf("corrupt archive: %v", err)
	}

	_, err = o.RestoreFromBackup(context.Background(), b.ID, orchestrator.RestoreOptions{ValidateOnly: true})
	var integrity *orchestrator.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if len(integrity.Discrepancies) != 1 || integrity.Discrepancies[0].Name != "a" {
		t.Fatalf("discrepancies = %v, want exactly volume a", integrity.Discrepancies)
	}

	// Forced validate-only proceeds but carries warnings.
	res, err := o.RestoreFromBackup(context.Background(), b.ID, orchestrator.RestoreOptions{ValidateOnly: true, Force: true})
	if err != nil {
		t.Fatalf("forced validate: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("forced restore hid the discrepancy")
	}
}

func TestCompressedBackup_RoundTrip(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("payload")})
	o := newOrchestrator(t, fake)

	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{Compress: true})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if !strings.HasSuffix(b.Path, ".tar.gz") {
		t.Fatalf("compressed backup path = %s", b.Path)
	}
	if _, err := os.Stat(filepath.Join(o.Env.BackupDir, b.ID)); !os.IsNotExist(err) {
		t.Fatal("uncompressed directory left behind")
	}

	fresh := dockerapi.NewFake()
	o2 := orchestrator.New(fresh, o.Env, nil)
	o2.Now = tickingClock()
	o2.Env.ConfigDir = t.TempDir()
	if _, err := o2.RestoreFromBackup(context.Background(), b.Path, orchestrator.RestoreOptions{}); err != nil {
		t.Fatalf("restore from archive: %v", err)
	}
	if string(fresh.Volumes["a"]["f"]) != "payload" {
		t.Fatalf("restored content wrong: %v", fresh.Volumes)
	}
}

func TestMigrate_TakesSafetyBackupAndUpgrades(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	o := newOrchestrator(t, fake)
	statePath := filepath.Join(o.Env.ConfigDir, config.StateFileName)
	if err := os.WriteFile(statePath, []byte(`{"version":1,"settings":{"backup_path":"/old"}}`), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}

	res, err := o.Migrate(context.Background(), false)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if res.Phase != migrate.PhaseDone || res.NoOp {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.SafetyBackupID == "" {
		t.Fatal("migration ran without a safety backup")
	}
	if _, err := os.Stat(filepath.Join(o.Env.BackupDir, res.SafetyBackupID)); err != nil {
		t.Fatalf("safety backup missing on disk: %v", err)
	}
	st, err := migrate.LoadState(statePath)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.Version != 3 || st.Settings["backup_dir"] != "/old" {
		t.Fatalf("state not migrated: %+v", st)
	}
}

func TestRestore_VersionMismatchFlagsMigration(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("a", map[string]string{"stack": "demo"}, map[string][]byte{"f": []byte("1")})
	o := newOrchestrator(t, fake)
	b, err := o.CreateBackup(context.Background(), orchestrator.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Target runs an older schema than the backup was taken at.
	statePath := filepath.Join(o.Env.ConfigDir, config.StateFileName)
	if err := os.WriteFile(statePath, []byte(`{"version":1,"settings":{}}`), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	res, err := o.RestoreFromBackup(context.Background(), b.ID, orchestrator.RestoreOptions{Force: true})
	if err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}
	if !res.RequiresMigration {
		t.Fatalf("version mismatch not flagged: %+v", res)
	}
}
