package catalog

// Status is one entry of the closed verdict enumeration.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s.ID >= Accepted.ID
}

var (
	InQueue           = Status{ID: 1, Description: "In Queue"}
	Processing        = Status{ID: 2, Description: "Processing"}
	Accepted          = Status{ID: 3, Description: "Accepted"}
	WrongAnswer       = Status{ID: 4, Description: "Wrong Answer"}
	TimeLimitExceeded = Status{ID: 5, Description: "Time Limit Exceeded"}
	CompilationError  = Status{ID: 6, Description: "Compilation Error"}
	RuntimeSIGSEGV    = Status{ID: 7, Description: "Runtime Error (SIGSEGV)"}
	RuntimeSIGXFSZ    = Status{ID: 8, Description: "Runtime Error (SIGXFSZ)"}
	RuntimeSIGFPE     = Status{ID: 9, Description: "Runtime Error (SIGFPE)"}
	RuntimeSIGABRT    = Status{ID: 10, Description: "Runtime Error (SIGABRT)"}
	RuntimeNZEC       = Status{ID: 11, Description: "Runtime Error (NZEC)"}
	RuntimeOther      = Status{ID: 12, Description: "Runtime Error (Other)"}
	InternalError     = Status{ID: 13, Description: "Internal Error"}
	ExecFormatError   = Status{ID: 14, Description: "Exec Format Error"}
)

var statuses = []Status{
	InQueue,
	Processing,
	Accepted,
	WrongAnswer,
	TimeLimitExceeded,
	CompilationError,
	RuntimeSIGSEGV,
	RuntimeSIGXFSZ,
	RuntimeSIGFPE,
	RuntimeSIGABRT,
	RuntimeNZEC,
	RuntimeOther,
	InternalError,
	ExecFormatError,
}

// StatusByID returns the status with id.
func StatusByID(id int) (Status, bool) {
	if id < 1 || id > len(statuses) {
		return Status{}, false
	}
	return statuses[id-1], true
}

// StatusByName returns the status with the given description.
// Unknown names resolve to InternalError so callers never hold an unmapped status.
func StatusByName(name string) Status {
	for _, s := range statuses {
		if s.Description == name {
			return s
		}
	}
	return InternalError
}

// AllStatuses returns the enumeration in id order.
func AllStatuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}
