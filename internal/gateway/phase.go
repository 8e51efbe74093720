package gateway

// Phase is the position of one chat request in its lifecycle:
// Received → CatalogChecked → ContextAssembled → Streaming → Completed|Failed.
type Phase string

const (
	PhaseReceived         Phase = "received"
	PhaseCatalogChecked   Phase = "catalog_checked"
	PhaseContextAssembled Phase = "context_assembled"
	PhaseStreaming        Phase = "streaming"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseFailed }

var transitions = map[Phase][]Phase{
	PhaseReceived:         {PhaseCatalogChecked, PhaseFailed},
	PhaseCatalogChecked:   {PhaseContextAssembled, PhaseFailed},
	PhaseContextAssembled: {PhaseStreaming, PhaseFailed},
	PhaseStreaming:        {PhaseCompleted, PhaseFailed},
}

// canTransition reports whether from → to is a legal step.
func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
