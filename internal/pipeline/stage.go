package pipeline

// Stage is a point an installation has reached.
type Stage int

const (
	Located Stage = iota
	Cloned
	CommitChecked
	InstallerSelected
	Staged
	DependenciesInstalled
	Tested
	Committed
)

var stageNames = [...]string{
	Located:               "located",
	Cloned:                "cloned",
	CommitChecked:         "commit checked",
	InstallerSelected:     "installer selected",
	Staged:                "staged",
	DependenciesInstalled: "dependencies installed",
	Tested:                "tested",
	Committed:             "committed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Stages lists every stage in order.
func Stages() []Stage {
	out := make([]Stage, 0, len(stageNames))
	for s := Located; s <= Committed; s++ {
		out = append(out, s)
	}
	return out
}

// Event reports progress of one installation. Failed events carry the stage
// that could not be reached.
type Event struct {
	Plugin string
	Stage  Stage
	Failed bool
	Err    error
	Detail string
}

// Observer receives events synchronously, in order.
type Observer func(Event)
