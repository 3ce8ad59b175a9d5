// Package gating derives per-level lock state from the set of completed levels.
package gating

// Status is a level's position in the Locked -> Unlocked -> Completed lifecycle.
type Status string

const (
	StatusLocked    Status = "locked"
	StatusUnlocked  Status = "unlocked"
	StatusCompleted Status = "completed"
)

// LevelStatus pairs a level with its derived status.
type LevelStatus struct {
	LevelID int    `json:"level_id"`
	Status  Status `json:"status"`
}

// Statuses maps ordered level IDs and a completed set to per-level status.
//
// A level in the completed set is Completed, including one reached through a
// test-out while its predecessor is still open. Otherwise the first level is
// Unlocked and every later level is Locked until its predecessor completes.
func Statuses(levelIDs []int, completed map[int]bool) []LevelStatus {
	if len(levelIDs) == 0 {
		return nil
	}
	out := make([]LevelStatus, len(levelIDs))
	for i, id := range levelIDs {
		out[i] = LevelStatus{LevelID: id, Status: statusAt(levelIDs, completed, i)}
	}
	return out
}

func statusAt(levelIDs []int, completed map[int]bool, i int) Status {
	switch {
	case completed[levelIDs[i]]:
		return StatusCompleted
	case i == 0:
		return StatusUnlocked
	case completed[levelIDs[i-1]]:
		return StatusUnlocked
	default:
		return StatusLocked
	}
}

// StatusOf returns the status of a single level and whether it exists.
func StatusOf(levelIDs []int, completed map[int]bool, levelID int) (Status, bool) {
	for i, id := range levelIDs {
		if id == levelID {
			return statusAt(levelIDs, completed, i), true
		}
	}
	return "", false
}

// CanEnter reports whether the learner may interact with levelID's sections.
func CanEnter(levelIDs []int, completed map[int]bool, levelID int) bool {
	s, ok := StatusOf(levelIDs, completed, levelID)
	return ok && s != StatusLocked
}

// CourseCompleted reports whether every level is Completed. An empty course
// is never complete.
func CourseCompleted(levelIDs []int, completed map[int]bool) bool {
	if len(levelIDs) == 0 {
		return false
	}
	return countCompleted(levelIDs, completed) == len(levelIDs)
}

// Percent returns the completed share of levels in [0,1].
func Percent(levelIDs []int, completed map[int]bool) float64 {
	if len(levelIDs) == 0 {
		return 0
	}
	return float64(countCompleted(levelIDs, completed)) / float64(len(levelIDs))
}

func countCompleted(levelIDs []int, completed map[int]bool) int {
	n := 0
	for _, id := range levelIDs {
		if completed[id] {
			n++
		}
	}
	return n
}
