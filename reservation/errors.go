package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrStationNotFound   = errors.New("station not found for slot")
	ErrReservationFailed = errors.New("reservation failed")
	ErrInvalidRequest    = errors.New("invalid reservation request")
)

// Compensation names the corrective action taken after a partial reservation.
type Compensation string

const (
	// Released means the slot was reserved and has been freed again.
	Released Compensation = "release"
	// Deleted means the slot was created for this reservation and has been removed.
	Deleted Compensation = "delete"
)

type rollbackError struct {
	compensation Compensation
	cause        error
	// compensationErr is set when the corrective action itself failed.
	compensationErr error
}

func (e *rollbackError) Error() string {
	if e.compensationErr != nil {
		return fmt.Sprintf("%s: %v (slot %s failed: %v)", ErrReservationFailed, e.cause, e.compensation, e.compensationErr)
	}
	return fmt.Sprintf("%s: %v (slot %sd)", ErrReservationFailed, e.cause, e.compensation)
}

func (e *rollbackError) Unwrap() []error {
	return []error{ErrReservationFailed, e.cause}
}

// RollbackFromError reports the compensation behind err, if err comes from a reservation that was
// rolled back. ok is false for any other error; clean is false when the compensation failed and a
// slot may be left reserved.
func RollbackFromError(err error) (c Compensation, clean bool, ok bool) {
	var rb *rollbackError
	if !errors.As(err, &rb) {
		return "", false, false
	}
	return rb.compensation, rb.compensationErr == nil, true
}
