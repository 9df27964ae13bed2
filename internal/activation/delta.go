package activation

import "slices"

// Delta is the book churn needed to move from one live set to another.
type Delta struct {
	Unload []string `json:"unload" yaml:"unload"`
	Load   []string `json:"load" yaml:"load"`
}

// Empty reports whether nothing needs to change.
func (d Delta) Empty() bool {
	return len(d.Unload) == 0 && len(d.Load) == 0
}

// ComputeDelta returns current minus target as unloads and target minus
// current as loads. Membership is all that matters; each side keeps the
// order of its source list with duplicates dropped.
func ComputeDelta(current, target []string) Delta {
	d := Delta{Unload: []string{}, Load: []string{}}
	for _, b := range current {
		if !slices.Contains(target, b) && !slices.Contains(d.Unload, b) {
			d.Unload = append(d.Unload, b)
		}
	}
	for _, b := range target {
		if !slices.Contains(current, b) && !slices.Contains(d.Load, b) {
			d.Load = append(d.Load, b)
		}
	}
	return d
}
