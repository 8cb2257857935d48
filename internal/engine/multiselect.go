package engine

// ToggleOption returns current with option added when it is missing, or
// removed when it is present. current is not modified.
func ToggleOption(current []string, option string) []string {
	out := make([]string, 0, len(current)+1)
	found := false
	for _, o := range current {
		if o == option {
			found = true
			continue
		}
		out = append(out, o)
	}
	if !found {
		out = append(out, option)
	}
	return out
}
