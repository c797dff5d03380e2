package renderjobs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("render job not found")
	// ErrArtifactMissing is returned when the job record exists but its file
	// is gone. It matches ErrNotFound with errors.Is.
	ErrArtifactMissing = fmt.Errorf("%w: artifact missing", ErrNotFound)
	ErrIDExhausted     = errors.New("could not allocate a unique render job id")
)
