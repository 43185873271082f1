// ABOUTME: In-memory snapshot of run progress, replaced wholesale at start and mutated by the worker.
// ABOUTME: Status queries receive deep copies so readers never observe the worker's in-place edits.
package pipeline

// StageNames lists the pipeline stages in execution order.
var StageNames = []string{"generate", "enrich", "compose", "deliver"}

// StageProgress tracks one stage's status within the current run.
type StageProgress struct {
	Status string         `json:"status"` // "pending", "running", "completed"
	Count  int            `json:"count"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// Snapshot is the live view of pipeline progress. Exactly one exists at a
// time; it is written only by the worker and read by status queries.
type Snapshot struct {
	Running      bool                     `json:"running"`
	CurrentStage string                   `json:"current_stage"`
	ShouldStop   bool                     `json:"should_stop"`
	RunID        string                   `json:"run_id"`
	Progress     map[string]StageProgress `json:"progress"`
}

// newSnapshot returns a fresh snapshot with every stage pending.
func newSnapshot() *Snapshot {
	progress := make(map[string]StageProgress, len(StageNames))
	for _, name := range StageNames {
		progress[name] = StageProgress{Status: "pending"}
	}
	return &Snapshot{
		CurrentStage: "",
		Progress:     progress,
	}
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	out.Progress = make(map[string]StageProgress, len(s.Progress))
	for name, p := range s.Progress {
		cp := p
		if p.Extra != nil {
			cp.Extra = make(map[string]any, len(p.Extra))
			for k, v := range p.Extra {
				cp.Extra[k] = v
			}
		}
		out.Progress[name] = cp
	}
	return out
}
