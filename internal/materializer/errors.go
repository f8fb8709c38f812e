package materializer

import "fmt"

// ResourceResolutionError reports a resource whose block is missing from
// the workflow graph.
type ResourceResolutionError struct {
	ResourceID string
	BlockID    string
}

func (e *ResourceResolutionError) Error() string {
	return fmt.Sprintf("resource %s references block %s, which is not in the workflow", e.ResourceID, e.BlockID)
}

// ResourceError wraps the failure of a single resource. Any ResourceError
// aborts the whole instantiation.
type ResourceError struct {
	ResourceID string
	Err        error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.ResourceID, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
