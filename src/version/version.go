package version

// Version is the stack-backup tool version. It is recorded in every backup
// manifest so restores can detect tool drift.
const Version = "0.3.0"

// SchemaVersion is the current structured state file schema version the
// tool expects. Migrations bring older installations up to this version.
const SchemaVersion = 3
