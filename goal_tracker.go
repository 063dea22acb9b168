package anamnesis

import "sync"

// Goal groups one or more Plans pursuing the same higher-level objective,
// so a caller can track aggregate progress across replanning attempts —
// a feature the distilled spec's single-Plan model left implicit.
type Goal struct {
	ID          string
	Description string
	PlanIDs     []string
}

// GoalTracker is an in-memory registry of Goals and the Plans pursuing
// them. It holds no independent persistence: Plans remain the source of
// truth for step state, and the tracker is rebuilt from them at startup
// if a caller chooses to persist Goal/Plan associations itself.
type GoalTracker struct {
	mu    sync.RWMutex
	goals map[string]*Goal
	plans map[string]*Plan
}

// NewGoalTracker returns an empty tracker.
func NewGoalTracker() *GoalTracker {
	return &GoalTracker{goals: make(map[string]*Goal), plans: make(map[string]*Plan)}
}

// NewGoal registers a goal and returns it.
func (t *GoalTracker) NewGoal(id, description string) *Goal {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := &Goal{ID: id, Description: description}
	t.goals[id] = g
	return g
}

// AttachPlan associates plan with goalID, tagging the plan so Progress
// can later find it.
func (t *GoalTracker) AttachPlan(goalID string, plan *Plan) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.goals[goalID]
	if !ok {
		return newError(KindNotFound, "GoalTracker.AttachPlan", nil, "goal %s", goalID)
	}
	plan.GoalID = goalID
	g.PlanIDs = append(g.PlanIDs, plan.ID)
	t.plans[plan.ID] = plan
	return nil
}

// Progress averages Plan.Progress() across every plan attached to goalID.
// A goal with no attached plans is vacuously 0% complete.
func (t *GoalTracker) Progress(goalID string) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.goals[goalID]
	if !ok {
		return 0, newError(KindNotFound, "GoalTracker.Progress", nil, "goal %s", goalID)
	}
	if len(g.PlanIDs) == 0 {
		return 0, nil
	}
	var sum float64
	for _, id := range g.PlanIDs {
		if plan, ok := t.plans[id]; ok {
			sum += plan.Progress()
		}
	}
	return sum / float64(len(g.PlanIDs)), nil
}

// IsComplete reports whether every plan attached to goalID is complete.
// A goal with no attached plans is not complete — it has no evidence of
// having been acted on yet.
func (t *GoalTracker) IsComplete(goalID string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.goals[goalID]
	if !ok {
		return false, newError(KindNotFound, "GoalTracker.IsComplete", nil, "goal %s", goalID)
	}
	if len(g.PlanIDs) == 0 {
		return false, nil
	}
	for _, id := range g.PlanIDs {
		plan, ok := t.plans[id]
		if !ok || !plan.IsComplete() {
			return false, nil
		}
	}
	return true, nil
}
