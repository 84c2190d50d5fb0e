package dockerapi_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stack-backup/src/dockerapi"
)

func TestFake_ArchiveAndExtractCommands(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("db", nil, map[string][]byte{"pg/base.dat": []byte("DB-BYTES")})
	host := t.TempDir()

	res, err := fake.RunHelper(context.Background(), dockerapi.HelperSpec{
		Command:        []string{"tar", "-czf", dockerapi.BackupMount + "/db.tar.gz", "-C", dockerapi.DataMount, "."},
		Volume:         "db",
		VolumeReadOnly: true,
		HostDir:        host,
	})
	if err != nil {
		t.Fatalf("archive helper: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("archive exit %d: %s", res.ExitCode, res.Output)
	}
	if _, err := os.Stat(filepath.Join(host, "db.tar.gz")); err != nil {
		t.Fatalf("archive file missing: %v", err)
	}

	// Extract into a different pre-existing volume with stale content.
	fake.AddVolume("db2", nil, map[string][]byte{"stale.txt": []byte("old")})
	res, err = fake.RunHelper(context.Background(), dockerapi.HelperSpec{
		Command: []string{"sh", "-c", "rm -rf /data/* && tar -xzf /backup/db.tar.gz -C /data"},
		Volume:  "db2",
		HostDir: host,
	})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("extract helper: err=%v exit=%d out=%s", err, res.ExitCode, res.Output)
	}
	if string(fake.Volumes["db2"]["pg/base.dat"]) != "DB-BYTES" {
		t.Fatalf("extracted content wrong: %v", fake.Volumes["db2"])
	}
	if _, ok := fake.Volumes["db2"]["stale.txt"]; ok {
		t.Fatal("stale content survived extract; volume was not emptied")
	}
}

func TestFake_MissingVolumeIsNotFound(t *testing.T) {
	fake := dockerapi.NewFake()
	_, err := fake.RunHelper(context.Background(), dockerapi.HelperSpec{
		Command: []string{"tar", "-czf", "/backup/x.tar.gz", "-C", "/data", "."},
		Volume:  "absent",
		HostDir: t.TempDir(),
	})
	var nf *dockerapi.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestFake_HelperFailureInjection(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("v", nil, nil)
	fake.FailHelper["v"] = "no space left on device"
	_, err := fake.RunHelper(context.Background(), dockerapi.HelperSpec{
		Command: []string{"tar", "-czf", "/backup/v.tar.gz", "-C", "/data", "."},
		Volume:  "v",
		HostDir: t.TempDir(),
	})
	var env *dockerapi.EnvironmentError
	if !errors.As(err, &env) {
		t.Fatalf("expected EnvironmentError, got %v", err)
	}
}

func TestFake_ListVolumesByLabel(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("b", map[string]string{"stack": "demo"}, nil)
	fake.AddVolume("a", map[string]string{"stack": "demo"}, nil)
	fake.AddVolume("other", map[string]string{"stack": "elsewhere"}, nil)

	vols, err := fake.ListVolumes(context.Background(), "stack=demo")
	if err != nil {
		t.Fatalf("ListVolumes: %v", err)
	}
	if len(vols) != 2 || vols[0].Name != "a" || vols[1].Name != "b" {
		t.Fatalf("unexpected volumes: %v", vols)
	}
}
