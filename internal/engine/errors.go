package engine

const (
	// ErrTypeInvalidConfig is the type of errors returned when a tree cannot
	// be built from its configuration.
	ErrTypeInvalidConfig = "invalid-config"

	// ErrTypeInvalidArgument is the type of errors returned when an operation
	// is called with an argument it cannot work with. The tree is left
	// unchanged.
	ErrTypeInvalidArgument = "invalid-argument"

	// ErrTypeCorrupted is the type of the error a tree panics with when its
	// global index and its nodes disagree.
	ErrTypeCorrupted = "corrupted-tree"
)
