package engine

import (
	"sort"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
	"github.com/maintstack/maint-opt/internal/utils"
)

// assumedRepairDelay restarts the survival clock when a failure has no
// recorded corrective action after it.
const assumedRepairDelay = 24 * time.Hour

// observation is one survival sample: time on the clock since the last
// restoration, and whether the episode ended in a failure or was censored.
type observation struct {
	duration float64
	failure  bool
}

// buildObservations turns the chronological event log into survival samples.
// Every event yields one sample measured from the last clock reset. The clock
// restarts at the first restorative action after a failure, or after the
// assumed repair delay when none is logged. The open interval from the last
// reset to the window end becomes a final censored sample.
func buildObservations(events []models.MaintenanceEvent, window models.TimeRange) []observation {
	var observations []observation
	lastReset := window.Start

	for i, e := range events {
		if e.Timestamp.After(lastReset) {
			duration := utils.HoursBetween(lastReset, e.Timestamp)
			observations = append(observations, observation{duration: duration, failure: e.Deviation})
		}
		if e.Deviation {
			reset := e.Timestamp.Add(assumedRepairDelay)
			for _, later := range events[i+1:] {
				if later.IsClockReset() {
					reset = later.Timestamp
					break
				}
			}
			lastReset = reset
		} else if e.IsClockReset() {
			lastReset = e.Timestamp
		}
	}

	if window.End.After(lastReset) {
		observations = append(observations, observation{duration: utils.HoursBetween(lastReset, window.End), failure: false})
	}
	return observations
}

// kaplanMeier computes the product-limit survival estimate. The curve starts
// at (0, 1) and steps down at each distinct failure time.
func kaplanMeier(observations []observation) []models.SurvivalPoint {
	sorted := make([]observation, len(observations))
	copy(sorted, observations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].duration < sorted[j].duration })

	curve := []models.SurvivalPoint{{T: 0, S: 1}}
	survival := 1.0
	atRisk := len(sorted)

	for i := 0; i < len(sorted); {
		t := sorted[i].duration
		deaths := 0
		removed := 0
		for i < len(sorted) && sorted[i].duration == t {
			if sorted[i].failure {
				deaths++
			}
			removed++
			i++
		}
		if deaths > 0 && atRisk > 0 {
			survival *= 1 - float64(deaths)/float64(atRisk)
			curve = append(curve, models.SurvivalPoint{T: t, S: survival})
		}
		atRisk -= removed
	}
	return curve
}

// survivalCrossing finds the time at which the step curve reaches the target
// survival probability, interpolating linearly between the bracketing points.
// Returns nil when the curve never drops that far.
func survivalCrossing(curve []models.SurvivalPoint, target float64) *float64 {
	for i := 1; i < len(curve); i++ {
		if curve[i].S > target {
			continue
		}
		if curve[i].S == target {
			t := curve[i].T
			return &t
		}
		prev, cur := curve[i-1], curve[i]
		if cur.S == prev.S {
			t := cur.T
			return &t
		}
		t := prev.T + (cur.T-prev.T)*(target-prev.S)/(cur.S-prev.S)
		return &t
	}
	return nil
}

func kaplanMeierReliabilityTable(curve []models.SurvivalPoint) models.ReliabilityTable {
	table := make(models.ReliabilityTable)
	for _, target := range models.ReliabilityTargets {
		if t := survivalCrossing(curve, target); t != nil {
			table[int(target*100+0.5)] = *t
		}
	}
	return table
}
