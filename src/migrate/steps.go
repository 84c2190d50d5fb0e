package migrate

import "fmt"

// Step is one ordered schema transformation. It applies to documents at
// exactly version From and produces a document at version To.
type Step struct {
	From  int
	To    int
	Name  string
	Apply func(State) (State, error)
}

// BuiltinSteps covers the known schema history. Steps must form a
// contiguous ascending chain; the planner refuses gaps rather than guess.
func BuiltinSteps() []Step {
	return []Step{
		{
			From: 1, To: 2, Name: "rename-backup-path",
			Apply: func(s State) (State, error) {
				out := s.Clone()
				if v, ok := out.Settings["backup_path"]; ok {
					out.Settings["backup_dir"] = v
					delete(out.Settings, "backup_path")
				}
				out.Version = 2
				return out, nil
			},
		},
		{
			From: 2, To: 3, Name: "default-compression",
			Apply: func(s State) (State, error) {
				out := s.Clone()
				if _, ok := out.Settings["compression"]; !ok {
					out.Settings["compression"] = "gzip"
				}
				out.Version = 3
				return out, nil
			},
		},
	}
}

// UnsupportedMigrationError reports that no contiguous step path exists
// between the installed and target versions.
type UnsupportedMigrationError struct {
	From, To int
}

func (e *UnsupportedMigrationError) Error() string {
	return fmt.Sprintf("no supported migration path from version %d to %d", e.From, e.To)
}

// path selects the ordered subsequence of steps covering from..to. It never
// skips: a gap in the chain is an UnsupportedMigrationError.
func path(steps []Step, from, to int) ([]Step, error) {
	if from > to {
		return nil, &UnsupportedMigrationError{From: from, To: to}
	}
	byFrom := make(map[int]Step, len(steps))
	for _, st := range steps {
		if st.To <= st.From {
			return nil, fmt.Errorf("invalid step %q: %d -> %d", st.Name, st.From, st.To)
		}
		byFrom[st.From] = st
	}
	var out []Step
	cur := from
	for cur < to {
		st, ok := byFrom[cur]
		if !ok || st.To > to {
			return nil, &UnsupportedMigrationError{From: from, To: to}
		}
		out = append(out, st)
		cur = st.To
	}
	return out, nil
}
