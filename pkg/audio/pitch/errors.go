package pitch

import "errors"

var (
	// ErrNotListening is returned by Commit when no reference is selected
	ErrNotListening = errors.New("calibrator is not listening")
	// ErrNoFrequency is returned by Commit before a nonzero frequency was observed
	ErrNoFrequency = errors.New("no frequency observed")
)

func (e *CalibrationError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// CalibrationError reports why Calibrate produced no table
type CalibrationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *CalibrationError) Unwrap() error {
	return e.Cause
}

// Calibration error codes
const (
	ErrCodeIncompleteReferences   = "INCOMPLETE_REFERENCES"
	ErrCodeInconsistentReferences = "INCONSISTENT_REFERENCES"
	ErrCodeInvalidTable           = "INVALID_TABLE"
)

// NewCalibrationError creates a new calibration error
func NewCalibrationError(code, message string, cause error) *CalibrationError {
	return &CalibrationError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
