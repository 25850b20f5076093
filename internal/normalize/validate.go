package normalize

import (
	"fmt"
	"sort"
)

// Report lists canonical regions that appear in only one of two sources. Each such
// region will never join.
type Report struct {
	LeftName   string   `json:"left"`
	RightName  string   `json:"right"`
	OnlyLeft   []string `json:"only_left"`
	OnlyRight  []string `json:"only_right"`
	SharedKeys int      `json:"shared"`
}

// Clean reports whether every region appears in both sources.
func (r Report) Clean() bool {
	return len(r.OnlyLeft) == 0 && len(r.OnlyRight) == 0
}

// Warnings renders the report as one message per unmatched region.
func (r Report) Warnings() []string {
	out := make([]string, 0, len(r.OnlyLeft)+len(r.OnlyRight))
	for _, region := range r.OnlyLeft {
		out = append(out, fmt.Sprintf("region %q present in %s but not in %s", region, r.LeftName, r.RightName))
	}
	for _, region := range r.OnlyRight {
		out = append(out, fmt.Sprintf("region %q present in %s but not in %s", region, r.RightName, r.LeftName))
	}
	return out
}

// Validate compares the canonical region sets of two sources. Inputs are expected
// to be canonical already; duplicates are ignored.
func Validate(leftName string, left []string, rightName string, right []string) Report {
	l := toSet(left)
	r := toSet(right)
	rep := Report{LeftName: leftName, RightName: rightName}
	for k := range l {
		if r[k] {
			rep.SharedKeys++
		} else {
			rep.OnlyLeft = append(rep.OnlyLeft, k)
		}
	}
	for k := range r {
		if !l[k] {
			rep.OnlyRight = append(rep.OnlyRight, k)
		}
	}
	sort.Strings(rep.OnlyLeft)
	sort.Strings(rep.OnlyRight)
	return rep
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		if s != "" {
			set[s] = true
		}
	}
	return set
}
