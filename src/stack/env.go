package stack

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
)

// Environment variables understood by the tool.
const (
	EnvBackupDir   = "STACKBAK_DIR"
	EnvLabel       = "STACKBAK_LABEL"
	EnvComposeFile = "STACKBAK_COMPOSE_FILE"
	EnvConfigDir   = "STACKBAK_CONFIG_DIR"
	EnvParallel    = "STACKBAK_PARALLEL"
	EnvTimeout     = "STACKBAK_TIMEOUT"
)

// DefaultLabel is the label that marks volumes and containers as belonging
// to the managed stack. Discovery is label-driven so the tool never has to
// guess which volumes are ours.
const DefaultLabel = "io.stackbak.stack"

// Environment is the resolved process configuration.
type Environment struct {
	BackupDir     string        // where backups are stored by default
	Label         string        // stack identification label (key or key=value)
	ComposeFile   string        // service topology file; only service names are read
	ConfigDir     string        // directory holding .env and config.json
	Parallel      int           // bounded worker count for volume operations
	HelperTimeout time.Duration // per helper-container timeout
}

// LoadEnvironment reads the environment with defaults. Malformed numeric
// values fall back to defaults rather than failing startup.
func LoadEnvironment() Environment {
	env := Environment{
		BackupDir:     os.Getenv(EnvBackupDir),
		Label:         os.Getenv(EnvLabel),
		ComposeFile:   os.Getenv(EnvComposeFile),
		ConfigDir:     os.Getenv(EnvConfigDir),
		Parallel:      cast.ToInt(os.Getenv(EnvParallel)),
		HelperTimeout: time.Duration(cast.ToInt(os.Getenv(EnvTimeout))) * time.Second,
	}
	if env.BackupDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			env.BackupDir = filepath.Join(home, ".stack-backup")
		} else {
			env.BackupDir = "/var/lib/stack-backup"
		}
	}
	if env.Label == "" {
		env.Label = DefaultLabel
	}
	if env.ComposeFile == "" {
		env.ComposeFile = "docker-compose.yml"
	}
	if env.ConfigDir == "" {
		env.ConfigDir = "."
	}
	if env.Parallel <= 0 {
		env.Parallel = 4
	}
	if env.HelperTimeout <= 0 {
		env.HelperTimeout = 10 * time.Minute
	}
	return env
}
