package safety

// Options carries the global safety flags every destructive command honors.
type Options struct {
	// Yes answers prompts non-interactively.
	Yes bool
	// DryRun shows planned actions without making changes.
	DryRun bool
	// Force overrides conflict gates (running stack, failed verification).
	Force bool
}
