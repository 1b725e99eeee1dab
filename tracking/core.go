package tracking

import (
	"fmt"
)

// core implements the two-stage association shared by both engines: high
// confidence detections are matched first, then unmatched tracks get a
// second chance against the low confidence leftovers before being marked
// lost. Engines differ only in the first-stage cost.
type core struct {
	trackThresh float32
	highThresh  float32
	matchThresh float32
	maxTimeLost int

	frameID int
	lastID  int

	tracked []*Track
	lost    []*Track
	removed []*Track

	// primaryCost builds the stage-1 cost matrix for the given track
	// pool and high confidence detections.
	primaryCost func(pool, dets []*Track) [][]float32

	// newTrack wraps track construction so the appearance engine can
	// attach embedding state.
	newTrack func(obj Object) *Track
}

func newCore(cfg Config) *core {
	c := &core{
		trackThresh: cfg.TrackThresh,
		highThresh:  cfg.HighThresh,
		matchThresh: cfg.MatchThresh,
		maxTimeLost: int(float32(cfg.FrameRate) / 30.0 * float32(cfg.TrackBuffer)),
	}
	c.primaryCost = c.iouCost
	c.newTrack = func(obj Object) *Track {
		return newTrack(obj.Box, obj.Score, obj.DetectionID, obj.Label)
	}
	return c
}

func (c *core) reset() {
	c.frameID = 0
	c.lastID = 0
	c.tracked = nil
	c.lost = nil
	c.removed = nil
}

// step runs one frame of association and returns the confirmed tracks.
func (c *core) step(objects []Object) ([]*Track, error) {
	c.frameID++

	var detsHigh, detsLow []*Track
	for _, obj := range objects {
		t := c.newTrack(obj)
		if obj.Score >= c.trackThresh {
			detsHigh = append(detsHigh, t)
		} else {
			detsLow = append(detsLow, t)
		}
	}

	var active, unconfirmed []*Track
	for _, t := range c.tracked {
		if t.Activated() {
			active = append(active, t)
		} else {
			unconfirmed = append(unconfirmed, t)
		}
	}

	pool := mergeTracks(active, c.lost)
	for _, t := range pool {
		t.predict()
	}

	// first association, high confidence detections
	var nowTracked, leftoverTracked, leftoverDets, refound []*Track

	matches, unmatchedTracks, unmatchedDets, err := assign(
		c.primaryCost(pool, detsHigh), len(pool), len(detsHigh), c.matchThresh)
	if err != nil {
		return nil, fmt.Errorf("first association: %w", err)
	}

	for _, m := range matches {
		track, det := pool[m[0]], detsHigh[m[1]]
		if track.State() == StateTracked {
			if err := track.update(det, c.frameID); err != nil {
				return nil, fmt.Errorf("first association: %w", err)
			}
			nowTracked = append(nowTracked, track)
		} else {
			track.reactivate(det, c.frameID, -1)
			refound = append(refound, track)
		}
	}

	for _, idx := range unmatchedDets {
		leftoverDets = append(leftoverDets, detsHigh[idx])
	}
	for _, idx := range unmatchedTracks {
		if pool[idx].State() == StateTracked {
			leftoverTracked = append(leftoverTracked, pool[idx])
		}
	}

	// second association, low confidence detections recover occlusions
	var nowLost []*Track

	matches, unmatchedTracks, _, err = assign(
		iouCostMatrix(leftoverTracked, detsLow), len(leftoverTracked), len(detsLow), 0.5)
	if err != nil {
		return nil, fmt.Errorf("second association: %w", err)
	}

	for _, m := range matches {
		track, det := leftoverTracked[m[0]], detsLow[m[1]]
		if track.State() == StateTracked {
			if err := track.update(det, c.frameID); err != nil {
				return nil, fmt.Errorf("second association: %w", err)
			}
			nowTracked = append(nowTracked, track)
		} else {
			track.reactivate(det, c.frameID, -1)
			refound = append(refound, track)
		}
	}

	for _, idx := range unmatchedTracks {
		track := leftoverTracked[idx]
		if track.State() != StateLost {
			track.markLost()
			nowLost = append(nowLost, track)
		}
	}

	// match leftover detections against unconfirmed tracks, then start
	// new tracks from the high scoring remainder
	var nowRemoved []*Track

	matches, unmatchedUnconfirmed, unmatchedDets, err := assign(
		iouCostMatrix(unconfirmed, leftoverDets), len(unconfirmed), len(leftoverDets), 0.7)
	if err != nil {
		return nil, fmt.Errorf("unconfirmed association: %w", err)
	}

	for _, m := range matches {
		if err := unconfirmed[m[0]].update(leftoverDets[m[1]], c.frameID); err != nil {
			return nil, fmt.Errorf("unconfirmed association: %w", err)
		}
		nowTracked = append(nowTracked, unconfirmed[m[0]])
	}
	for _, idx := range unmatchedUnconfirmed {
		track := unconfirmed[idx]
		track.markRemoved()
		nowRemoved = append(nowRemoved, track)
	}

	for _, idx := range unmatchedDets {
		det := leftoverDets[idx]
		if det.Score() < c.highThresh {
			continue
		}
		c.lastID++
		det.activate(c.frameID, c.lastID)
		nowTracked = append(nowTracked, det)
	}

	// expire tracks lost longer than the patience window
	for _, t := range c.lost {
		if c.frameID-t.FrameID() > c.maxTimeLost {
			t.markRemoved()
			nowRemoved = append(nowRemoved, t)
		}
	}

	c.tracked = mergeTracks(nowTracked, refound)
	c.lost = subtractTracks(
		mergeTracks(subtractTracks(c.lost, c.tracked), nowLost), c.removed)
	c.removed = mergeTracks(c.removed, nowRemoved)

	c.tracked, c.lost = pruneDuplicates(c.tracked, c.lost)

	var out []*Track
	for _, t := range c.tracked {
		if t.Activated() {
			out = append(out, t)
		}
	}
	return out, nil
}

// iouCost is the default stage-1 cost.
func (c *core) iouCost(pool, dets []*Track) [][]float32 {
	return iouCostMatrix(pool, dets)
}

// iouCostMatrix builds a cost matrix of 1-IoU between two track sets.
func iouCostMatrix(a, b []*Track) [][]float32 {
	if len(a)*len(b) == 0 {
		return nil
	}
	cost := make([][]float32, len(a))
	for i, ta := range a {
		cost[i] = make([]float32, len(b))
		for j, tb := range b {
			cost[i][j] = 1 - tb.Box().IoU(ta.Box())
		}
	}
	return cost
}

// mergeTracks concatenates two track lists, skipping duplicate IDs.
func mergeTracks(a, b []*Track) []*Track {
	seen := make(map[int]bool)
	var res []*Track
	for _, t := range a {
		seen[t.ID()] = true
		res = append(res, t)
	}
	for _, t := range b {
		if !seen[t.ID()] {
			seen[t.ID()] = true
			res = append(res, t)
		}
	}
	return res
}

// subtractTracks removes every track of b from a, keyed by track ID.
func subtractTracks(a, b []*Track) []*Track {
	byID := make(map[int]*Track)
	for _, t := range a {
		byID[t.ID()] = t
	}
	for _, t := range b {
		delete(byID, t.ID())
	}
	var res []*Track
	for _, t := range byID {
		res = append(res, t)
	}
	return res
}

// pruneDuplicates resolves tracked/lost pairs that overlap heavily,
// keeping whichever has the longer history.
func pruneDuplicates(tracked, lost []*Track) (keptTracked, keptLost []*Track) {
	cost := iouCostMatrix(tracked, lost)

	dupTracked := make([]bool, len(tracked))
	dupLost := make([]bool, len(lost))
	for i := range cost {
		for j := range cost[i] {
			if cost[i][j] < 0.15 {
				ageT := tracked[i].FrameID() - tracked[i].StartFrame()
				ageL := lost[j].FrameID() - lost[j].StartFrame()
				if ageT > ageL {
					dupLost[j] = true
				} else {
					dupTracked[i] = true
				}
			}
		}
	}

	for i, dup := range dupTracked {
		if !dup {
			keptTracked = append(keptTracked, tracked[i])
		}
	}
	for j, dup := range dupLost {
		if !dup {
			keptLost = append(keptLost, lost[j])
		}
	}
	return
}
