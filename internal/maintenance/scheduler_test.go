package maintenance

import (
	"errors"
	"testing"
	"time"

	"fleetopt/internal/model"
)

var t0 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func req(id, asset string, due time.Time, dur time.Duration, prio int, resources ...string) model.MaintenanceRequirement {
	return model.MaintenanceRequirement{
		ID: id, AssetID: asset, Type: "inspection",
		Due: due, Duration: dur, Priority: prio, Resources: resources,
	}
}

func TestScheduleEmptyIsInvalid(t *testing.T) {
	if _, err := Schedule(t0, nil, nil, time.Hour); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNoOverlapOnSameAsset(t *testing.T) {
	reqs := []model.MaintenanceRequirement{
		req("m1", "ship1", t0.Add(48*time.Hour), 4*time.Hour, 1),
		req("m2", "ship1", t0.Add(48*time.Hour), 4*time.Hour, 1),
		req("m3", "ship1", t0.Add(48*time.Hour), 4*time.Hour, 1),
	}
	res, err := Schedule(t0, reqs, nil, time.Hour)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(res.Tasks) != 3 || len(res.Unscheduled) != 0 {
		t.Fatalf("expected all scheduled: %+v", res)
	}
	for i := range res.Tasks {
		for j := i + 1; j < len(res.Tasks); j++ {
			a, b := res.Tasks[i], res.Tasks[j]
			if a.AssetID == b.AssetID && a.Start.Before(b.End) && b.Start.Before(a.End) {
				t.Fatalf("overlapping tasks on %s: %+v vs %+v", a.AssetID, a, b)
			}
		}
	}
}

func TestExclusiveResourceSerializesSameDayTasks(t *testing.T) {
	// two requirements on the same asset, same due day, same exclusive dock
	due := t0.Add(10 * time.Hour)
	reqs := []model.MaintenanceRequirement{
		req("m1", "ship1", due, 4*time.Hour, 2, "drydock"),
		req("m2", "ship1", due, 4*time.Hour, 1, "drydock"),
	}
	res, err := Schedule(t0, reqs, map[string]int{"drydock": 1}, time.Hour)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("both fit before the due date when serialized: %+v", res)
	}
	first, second := res.Tasks[0], res.Tasks[1]
	if first.Start.Before(second.End) && second.Start.Before(first.End) {
		t.Fatalf("exclusive resource tasks overlap: %+v %+v", first, second)
	}
	// higher priority got the earlier slot
	if first.RequirementID != "m1" || !first.Start.Equal(t0) {
		t.Fatalf("priority ordering: %+v", first)
	}

	// shrink the horizon so only one fits
	tight := t0.Add(6 * time.Hour)
	reqs[0].Due = tight
	reqs[1].Due = tight
	res, err = Schedule(t0, reqs, map[string]int{"drydock": 1}, time.Hour)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(res.Tasks) != 1 || len(res.Unscheduled) != 1 || res.Unscheduled[0] != "m2" {
		t.Fatalf("second must be reported unscheduled: %+v", res)
	}
}

func TestResourceLimitHoldsAtEveryInstant(t *testing.T) {
	due := t0.Add(24 * time.Hour)
	reqs := []model.MaintenanceRequirement{
		req("m1", "a1", due, 3*time.Hour, 1, "crane"),
		req("m2", "a2", due, 3*time.Hour, 1, "crane"),
		req("m3", "a3", due, 3*time.Hour, 1, "crane"),
	}
	limits := map[string]int{"crane": 2}
	res, err := Schedule(t0, reqs, limits, time.Hour)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(res.Tasks) != 3 {
		t.Fatalf("all three fit within the horizon: %+v", res)
	}
	// sweep every hour and count concurrent crane users
	for h := 0; h < 24; h++ {
		at := t0.Add(time.Duration(h) * time.Hour)
		count := 0
		for _, task := range res.Tasks {
			if !at.Before(task.Start) && at.Before(task.End) {
				count++
			}
		}
		if count > 2 {
			t.Fatalf("crane limit exceeded at %v: %d users", at, count)
		}
	}
}

func TestUnschedulableBeforeDueDateIsReported(t *testing.T) {
	reqs := []model.MaintenanceRequirement{
		req("m1", "ship1", t0.Add(time.Hour), 2*time.Hour, 1),
	}
	res, err := Schedule(t0, reqs, nil, 30*time.Minute)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(res.Unscheduled) != 1 || res.Unscheduled[0] != "m1" {
		t.Fatalf("expected m1 unscheduled: %+v", res)
	}
}

func TestPriorityBeforeDueDateOrdering(t *testing.T) {
	due := t0.Add(8 * time.Hour)
	reqs := []model.MaintenanceRequirement{
		req("low-early", "a1", t0.Add(4*time.Hour), 2*time.Hour, 1, "bay"),
		req("high-late", "a2", due, 2*time.Hour, 5, "bay"),
	}
	res, err := Schedule(t0, reqs, map[string]int{"bay": 1}, time.Hour)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("both must fit: %+v", res)
	}
	if res.Tasks[0].RequirementID != "high-late" {
		t.Fatalf("higher priority must be placed first: %+v", res.Tasks)
	}
}
