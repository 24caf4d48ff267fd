// Package batch converts grouped URL sets into bounded per-site work
// batches using proportional worker allocation.
package batch

import (
	"math"
	"sort"

	"github.com/tangentleman/docpull/internal/scrape"
)

// DefaultWorkerBudget bounds the total number of batches per job.
const DefaultWorkerBudget = 100

// Planner slices per-site path lists into batches. For a site with n paths
// out of T total and a budget of W workers, it allocates
// max(1, min(n, round(n/T*W))) containers; round ties go away from zero
// (math.Round). Output is deterministic: sites in lexical order, each
// site's paths chunked consecutively.
type Planner struct {
	budget int
}

// NewPlanner constructs a Planner. Non-positive budgets fall back to the
// default.
func NewPlanner(budget int) *Planner {
	if budget <= 0 {
		budget = DefaultWorkerBudget
	}
	return &Planner{budget: budget}
}

// Budget returns the configured worker budget.
func (p *Planner) Budget() int {
	return p.budget
}

// Plan produces the flat ordered batch list for the grouped paths. An
// empty input yields zero batches; the caller must treat such a job as
// immediately complete.
func (p *Planner) Plan(bySite map[string][]string) []scrape.Batch {
	total := 0
	siteIDs := make([]string, 0, len(bySite))
	for siteID, paths := range bySite {
		if len(paths) == 0 {
			continue
		}
		siteIDs = append(siteIDs, siteID)
		total += len(paths)
	}
	if total == 0 {
		return nil
	}
	sort.Strings(siteIDs)

	var batches []scrape.Batch
	for _, siteID := range siteIDs {
		paths := bySite[siteID]
		containers := Containers(len(paths), total, p.budget)
		size := ceilDiv(len(paths), containers)
		for start := 0; start < len(paths); start += size {
			end := start + size
			if end > len(paths) {
				end = len(paths)
			}
			batches = append(batches, scrape.Batch{
				SiteID: siteID,
				Paths:  append([]string(nil), paths[start:end]...),
			})
		}
	}
	return batches
}

// Containers computes the worker allocation for one site: a proportional
// share of the budget, floored at one worker per nonempty site and capped
// at the site's path count.
func Containers(n, total, budget int) int {
	if n <= 0 || total <= 0 {
		return 0
	}
	share := int(math.Round(float64(n) / float64(total) * float64(budget)))
	if share < 1 {
		share = 1
	}
	if share > n {
		share = n
	}
	return share
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
