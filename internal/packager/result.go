package packager

// State is a step of a packaging run.
type State int

const (
	StateIdle State = iota
	StateResolvingPaths
	StateWalking
	StateFiltering
	StateWriting
	StateFinalizing
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateResolvingPaths: "resolving_paths",
	StateWalking:        "walking",
	StateFiltering:      "filtering",
	StateWriting:        "writing",
	StateFinalizing:     "finalizing",
	StateSucceeded:      "succeeded",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Status is the overall outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Reasons a file was excluded from the archive.
const (
	ReasonIgnoreFile    = "ignore_file"
	ReasonSecret        = "secret"
	ReasonOutputArchive = "output_archive"
)

// Decision is the include/exclude verdict for one discovered file.
type Decision struct {
	RelPath  string
	Included bool
	Reason   string // empty when Included
}

// Result describes a completed run. It is returned even when the run fails.
type Result struct {
	SourceFolder string
	IgnoreFile   string
	Patterns     []string
	ArchivePath  string
	FilesWritten int
	Decisions    []Decision
	EntryErrors  []*EntryError
	HookErrors   []error

	Status Status
	Err    error

	// State is the terminal state; FailedIn is the state the run was in
	// when it failed.
	State    State
	FailedIn State
}

// Message returns the status line for the run: "SUCCESS!" or the error text.
func (r *Result) Message() string {
	if r.Status == StatusSucceeded {
		return "SUCCESS!"
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return string(r.Status)
}

// Included returns the relative paths selected for the archive, in
// discovery order.
func (r *Result) Included() []string { return included(r.Decisions) }

// Excluded returns the relative paths dropped from the archive, in discovery
// order.
func (r *Result) Excluded() []string { return excluded(r.Decisions) }

func (r *Result) fail(err error) {
	r.FailedIn = r.State
	r.State = StateFailed
	r.Status = StatusFailed
	r.Err = err
}

func included(ds []Decision) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		if d.Included {
			out = append(out, d.RelPath)
		}
	}
	return out
}

func excluded(ds []Decision) []string {
	var out []string
	for _, d := range ds {
		if !d.Included {
			out = append(out, d.RelPath)
		}
	}
	return out
}
