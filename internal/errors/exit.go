package errors

// ExitCode is the process exit status.
type ExitCode int

const (
	ExitSuccess ExitCode = 0
	// ExitError covers everything without a more specific code.
	ExitError ExitCode = 1
	// ExitUsage is a usage or argument error.
	ExitUsage         ExitCode = 2
	ExitNoValidInputs ExitCode = 3
	// ExitOutput means the destination failed; the output may be partial.
	ExitOutput ExitCode = 4
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitUsage:
		return "usage"
	case ExitNoValidInputs:
		return "no valid inputs"
	case ExitOutput:
		return "output failure"
	default:
		return "error"
	}
}

// ExitCodeFor maps an error to the exit status kmerge terminates with.
// Runs that only produced diagnostics end with a nil error and ExitSuccess.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	switch CodeOf(err) {
	case InvalidArguments, ConfigInvalid, PlanInvalid:
		return ExitUsage
	case NoValidInputs:
		return ExitNoValidInputs
	case OutputUnwritable:
		return ExitOutput
	default:
		return ExitError
	}
}
