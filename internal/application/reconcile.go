package application

import (
	"github.com/jobrunner/modisfetch/internal/domain"
)

// PlannedFetch is a file to download. Replaces names the local file it
// supersedes, if any.
type PlannedFetch struct {
	Name     string
	Replaces string
}

// Plan is the outcome of reconciling one day against the local inventory.
type Plan struct {
	Fetch     []PlannedFetch
	Skipped   []string
	Conflicts []*domain.ConflictError
}

// Reconcile decides which remote files to fetch given the local file names.
//
// Files already present by exact name are skipped. Otherwise a remote file is
// compared with the local files sharing its group prefix and extension: none
// means fetch, one means fetch only if the remote copy was processed later,
// several is a conflict. When the remote list offers several versions of one
// group only the newest is considered; the others are skipped. Names that do
// not parse as granules are fetched under their own name. Neither input is
// modified.
func Reconcile(remote, local []string) Plan {
	present := make(map[string]struct{}, len(local))
	groups := make(map[string][]domain.Granule)
	for _, name := range local {
		present[name] = struct{}{}
		g, err := domain.ParseGranule(name)
		if err != nil {
			continue
		}
		key := groupKey(g)
		groups[key] = append(groups[key], g)
	}

	newest := make(map[string]domain.Granule)
	for _, name := range remote {
		g, err := domain.ParseGranule(name)
		if err != nil {
			continue
		}
		key := groupKey(g)
		if cur, ok := newest[key]; !ok || g.NewerThan(cur) {
			newest[key] = g
		}
	}

	var plan Plan
	for _, name := range remote {
		if _, ok := present[name]; ok {
			plan.Skipped = append(plan.Skipped, name)
			continue
		}

		g, err := domain.ParseGranule(name)
		if err != nil {
			plan.Fetch = append(plan.Fetch, PlannedFetch{Name: name})
			continue
		}

		key := groupKey(g)
		if newest[key].Name != name {
			plan.Skipped = append(plan.Skipped, name)
			continue
		}

		matches := groups[key]
		switch len(matches) {
		case 0:
			plan.Fetch = append(plan.Fetch, PlannedFetch{Name: name})
		case 1:
			if g.NewerThan(matches[0]) {
				plan.Fetch = append(plan.Fetch, PlannedFetch{Name: name, Replaces: matches[0].Name})
			} else {
				plan.Skipped = append(plan.Skipped, name)
			}
		default:
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = m.Name
			}
			plan.Conflicts = append(plan.Conflicts, &domain.ConflictError{Remote: name, Local: names})
		}
	}

	return plan
}

// Names returns the names of the planned fetches.
func (p Plan) Names() []string {
	names := make([]string, len(p.Fetch))
	for i, f := range p.Fetch {
		names[i] = f.Name
	}
	return names
}

func groupKey(g domain.Granule) string {
	return g.GroupPrefix() + "|" + g.Ext
}
