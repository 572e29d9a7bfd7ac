// Package maintenance places maintenance requirements into concrete time
// windows under two hard constraints: no overlapping tasks on the same
// asset, and shared-resource utilization under its configured limit at
// every instant.
package maintenance

import (
	"fmt"
	"sort"
	"time"

	"fleetopt/internal/model"
)

// Result is the immutable schedule. Requirements that cannot be placed
// before their due date land in Unscheduled, never abort the batch.
type Result struct {
	Tasks         []model.ScheduledMaintenanceTask `json:"tasks"`
	Unscheduled   []string                         `json:"unscheduled,omitempty"`
	TotalDowntime time.Duration                    `json:"totalDowntime"`
	MakespanEnd   time.Time                        `json:"makespanEnd,omitempty"`
}

type window struct {
	start time.Time
	end   time.Time
}

// Schedule orders requirements by priority (higher first) then earliest due
// date and scans forward from now in fixed slot increments for the first
// feasible window. resourceLimits maps resource name to its concurrent
// capacity; resources absent from the map default to capacity 1
// (exclusive).
func Schedule(now time.Time, reqs []model.MaintenanceRequirement, resourceLimits map[string]int, slot time.Duration) (Result, error) {
	if len(reqs) == 0 {
		return Result{}, fmt.Errorf("%w: empty requirement list", model.ErrInvalidInput)
	}
	if slot <= 0 {
		slot = 30 * time.Minute
	}
	for i, r := range reqs {
		if r.AssetID == "" || r.Duration <= 0 {
			return Result{}, fmt.Errorf("%w: requirement[%d] needs an asset and a positive duration", model.ErrInvalidInput, i)
		}
	}

	ordered := append([]model.MaintenanceRequirement(nil), reqs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Due.Before(ordered[j].Due)
	})

	assetBusy := map[string][]window{}
	resourceBusy := map[string][]window{}
	var out Result

	for _, req := range ordered {
		placed := false
		for start := now; !start.Add(req.Duration).After(req.Due); start = start.Add(slot) {
			w := window{start: start, end: start.Add(req.Duration)}
			if overlapsAny(assetBusy[req.AssetID], w) {
				continue
			}
			if !resourcesAvailable(resourceBusy, resourceLimits, req.Resources, w) {
				continue
			}
			assetBusy[req.AssetID] = append(assetBusy[req.AssetID], w)
			for _, res := range req.Resources {
				resourceBusy[res] = append(resourceBusy[res], w)
			}
			out.Tasks = append(out.Tasks, model.ScheduledMaintenanceTask{
				RequirementID: req.ID,
				AssetID:       req.AssetID,
				Type:          req.Type,
				Start:         w.start,
				End:           w.end,
				Resources:     req.Resources,
			})
			out.TotalDowntime += req.Duration
			if w.end.After(out.MakespanEnd) {
				out.MakespanEnd = w.end
			}
			placed = true
			break
		}
		if !placed {
			out.Unscheduled = append(out.Unscheduled, req.ID)
		}
	}
	return out, nil
}

func overlapsAny(busy []window, w window) bool {
	for _, b := range busy {
		if w.start.Before(b.end) && b.start.Before(w.end) {
			return true
		}
	}
	return false
}

// resourcesAvailable checks that adding w keeps every required resource's
// concurrent usage under its limit at every instant of the window.
func resourcesAvailable(busy map[string][]window, limits map[string]int, resources []string, w window) bool {
	for _, res := range resources {
		limit := 1
		if l, ok := limits[res]; ok {
			limit = l
		}
		if limit <= 0 {
			return false
		}
		// concurrent usage only changes at window boundaries, so checking
		// the overlap count at each existing start inside w (plus w.start)
		// covers every instant
		points := []time.Time{w.start}
		for _, b := range busy[res] {
			if !b.start.Before(w.start) && b.start.Before(w.end) {
				points = append(points, b.start)
			}
		}
		for _, p := range points {
			count := 1 // the candidate itself
			for _, b := range busy[res] {
				if !p.Before(b.start) && p.Before(b.end) {
					count++
				}
			}
			if count > limit {
				return false
			}
		}
	}
	return true
}
