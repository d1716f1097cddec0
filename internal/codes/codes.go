package codes

// Kind classifies why a build attempt did not produce an artifact
type Kind int

const (
	None Kind = iota
	CompileFailure
	LinkFailure
	SpawnFailure
	Cancelled
	ToolchainUnavailable
)

// Descriptions maps failure kinds to their user facing descriptions
var Descriptions = map[Kind]string{
	None:                 "Success",
	CompileFailure:       "Compile errors",
	LinkFailure:          "Link errors",
	SpawnFailure:         "Cannot launch compiler",
	Cancelled:            "Build cancelled",
	ToolchainUnavailable: "Toolchain not installed",
}

// String returns the short identifier used in logs and history records
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case CompileFailure:
		return "compile_failure"
	case LinkFailure:
		return "link_failure"
	case SpawnFailure:
		return "spawn_failure"
	case Cancelled:
		return "cancelled"
	case ToolchainUnavailable:
		return "toolchain_unavailable"
	default:
		return "unknown"
	}
}

// IsSuccess returns true if the compiler exit code indicates success.
// GCC reports warnings on stderr with a zero exit code.
func IsSuccess(code int) bool {
	return code == 0
}

// Describe returns the description for a failure kind, or a generic message if unknown
func Describe(k Kind) string {
	if msg, ok := Descriptions[k]; ok {
		return msg
	}

	return "Unknown error"
}
