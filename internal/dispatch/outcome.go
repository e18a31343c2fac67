package dispatch

// Outcome is the terminal state of one target for one event.
type Outcome string

const (
	Delivered     Outcome = "delivered"
	Failed        Outcome = "failed"
	SkippedConfig Outcome = "skipped-config"
)

// TargetOutcome records what happened to one "service:target".
type TargetOutcome struct {
	Section string
	Target  string
	Outcome Outcome
	Err     error
}

// Outcomes keeps the declared target order of a dispatch.
type Outcomes []TargetOutcome

// Map returns target -> outcome. When a target appears in several
// bindings the last outcome wins.
func (o Outcomes) Map() map[string]Outcome {
	m := make(map[string]Outcome, len(o))
	for _, to := range o {
		m[to.Target] = to.Outcome
	}
	return m
}

// Count returns how many targets ended in outcome.
func (o Outcomes) Count(outcome Outcome) int {
	n := 0
	for _, to := range o {
		if to.Outcome == outcome {
			n++
		}
	}
	return n
}

// Targets lists targets in dispatch order.
func (o Outcomes) Targets() []string {
	out := make([]string, len(o))
	for i, to := range o {
		out[i] = to.Target
	}
	return out
}
