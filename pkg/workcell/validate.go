package workcell

// Validate checks the whole workcell and returns all findings. The error
// tier repeats the commit-time integrity rules over every entity, which can
// only fail for state assembled outside the integrity engine. The warning
// tier flags state that is legal while editing but blocks URDF export or
// marks imported data as incomplete.
func Validate(w *Workcell) []ValidationError {
	v := viewOf(w)
	findings := v.check(v.allRefs(), nil, true)
	findings = append(findings, exportWarnings(w)...)

	out := make([]ValidationError, len(findings))
	for i, f := range findings {
		out[i] = *f
	}
	return out
}

// HasErrors reports whether findings contain any error-severity entry.
func HasErrors(findings []ValidationError) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func exportWarnings(w *Workcell) []*ValidationError {
	var warns []*ValidationError

	if roots := w.Roots(); len(roots) > 1 {
		warns = append(warns, newWarning(ErrUnsupportedTopology, Ref{},
			"%d root links; a single kinematic tree has exactly one", len(roots)))
	}

	for _, l := range w.Links() {
		for i, g := range l.Visuals {
			if g.Placeholder {
				warns = append(warns, newWarning(ErrUnresolvedName, l.Ref(),
					"visual %d is a placeholder for an unresolved asset", i))
			}
		}
		for i, g := range l.Collisions {
			if g.Placeholder {
				warns = append(warns, newWarning(ErrUnresolvedName, l.Ref(),
					"collision %d is a placeholder for an unresolved asset", i))
			}
		}
	}

	for _, m := range w.Models() {
		if m.Link == 0 {
			warns = append(warns, newWarning(ErrUnsupportedTopology, m.Ref(),
				"model %q is not attached to a link", m.Name))
		}
	}
	return warns
}
