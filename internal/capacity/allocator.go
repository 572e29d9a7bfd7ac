// Package capacity packs discrete cargo jobs into asset weight/volume
// headroom with a greedy best-fit heuristic, maximizing utilized value
// without overcommitting either dimension.
package capacity

import (
	"fmt"
	"math"
	"sort"

	"fleetopt/internal/model"
)

// Result is the immutable allocation outcome. Rejected jobs are reported,
// never fatal.
type Result struct {
	Allocations   []model.CapacityAllocation `json:"allocations"`
	Rejected      []string                   `json:"rejected,omitempty"`
	TotalValue    float64                    `json:"totalValue"`
	WastedWeight  float64                    `json:"wastedWeight"`
	WastedVolume  float64                    `json:"wastedVolume"`
	LoadBalance   float64                    `json:"loadBalance"` // 1 - stddev of per-asset utilization
	AssetsUsed    int                        `json:"assetsUsed"`
	JobsAllocated int                        `json:"jobsAllocated"`
}

type headroom struct {
	asset    model.Asset
	weight   float64
	volume   float64
	capW     float64
	capV     float64
	allocCnt int
}

// Allocate assigns jobs to assets best-fit: jobs sorted by descending
// weight, each placed on the feasible asset that leaves the least waste
// after the allocation.
func Allocate(assets []model.Asset, jobs []model.CargoJob) (Result, error) {
	if len(assets) == 0 {
		return Result{}, fmt.Errorf("%w: empty asset list", model.ErrInvalidInput)
	}
	if len(jobs) == 0 {
		return Result{}, fmt.Errorf("%w: empty job list", model.ErrInvalidInput)
	}
	rooms := make([]headroom, len(assets))
	for i, a := range assets {
		if a.Profile == nil {
			return Result{}, fmt.Errorf("%w: asset %q has no profile", model.ErrInvalidInput, a.ID)
		}
		c := a.Profile.Capacity()
		rooms[i] = headroom{asset: a, weight: c.WeightKg, volume: c.VolumeM3, capW: c.WeightKg, capV: c.VolumeM3}
	}

	// heaviest first; stable on id so equal weights keep input order
	ordered := append([]model.CargoJob(nil), jobs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].WeightKg > ordered[j].WeightKg })

	var out Result
	for _, job := range ordered {
		best := -1
		bestWaste := math.Inf(1)
		for i := range rooms {
			if !canAccommodate(&rooms[i], job) {
				continue
			}
			waste := (rooms[i].weight - job.WeightKg) + (rooms[i].volume - job.VolumeM3)
			if waste < bestWaste {
				bestWaste = waste
				best = i
			}
		}
		if best == -1 {
			out.Rejected = append(out.Rejected, job.ID)
			continue
		}
		r := &rooms[best]
		r.weight -= job.WeightKg
		r.volume -= job.VolumeM3
		r.allocCnt++
		out.Allocations = append(out.Allocations, model.CapacityAllocation{
			AssetID:     r.asset.ID,
			JobID:       job.ID,
			WeightKg:    job.WeightKg,
			VolumeM3:    job.VolumeM3,
			Utilization: utilization(*r),
		})
		out.TotalValue += job.Value
	}

	var utils []float64
	for _, r := range rooms {
		out.WastedWeight += r.weight
		out.WastedVolume += r.volume
		if r.allocCnt > 0 {
			out.AssetsUsed++
		}
		utils = append(utils, utilization(r))
	}
	out.JobsAllocated = len(out.Allocations)
	out.LoadBalance = 1 - stddev(utils)
	return out, nil
}

func canAccommodate(r *headroom, job model.CargoJob) bool {
	if len(job.EligibleKinds) > 0 {
		ok := false
		for _, k := range job.EligibleKinds {
			if r.asset.Profile.Kind() == k {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if job.WeightKg > 0 && (r.capW <= 0 || job.WeightKg > r.weight) {
		return false
	}
	if job.VolumeM3 > 0 && (r.capV <= 0 || job.VolumeM3 > r.volume) {
		return false
	}
	return true
}

// utilization averages the filled fraction of the asset's nonzero
// dimensions.
func utilization(r headroom) float64 {
	dims, sum := 0, 0.0
	if r.capW > 0 {
		dims++
		sum += (r.capW - r.weight) / r.capW
	}
	if r.capV > 0 {
		dims++
		sum += (r.capV - r.volume) / r.capV
	}
	if dims == 0 {
		return 0
	}
	return sum / float64(dims)
}

func stddev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	acc := 0.0
	for _, v := range vals {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(vals)))
}
