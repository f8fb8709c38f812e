package storage

import "fmt"

// TransferError is a non-2xx response from the storage service. The raw
// response body is kept so quota, auth and validation failures can be
// diagnosed from the error message alone.
type TransferError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}
