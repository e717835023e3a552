package pipeline

// State is the processing state of one render surface. Exactly one state is
// active at a time per surface.
type State string

const (
	StateIdle        State = "idle"
	StateParsing     State = "parsing"
	StateExpanding   State = "expanding-components"
	StateTypesetting State = "typesetting"
	StateComplete    State = "complete"
	StateError       State = "error"
)
