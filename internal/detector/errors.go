package detector

import "errors"

var (
	// ErrInsufficientData is returned when a training corpus is smaller than
	// the configured minimum. The caller decides whether to keep collecting.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrNotTrained is returned when scoring is attempted before Fit. The
	// detector never trains implicitly.
	ErrNotTrained = errors.New("model not trained")

	// ErrNotFitted is returned when a scaler transform is attempted before Fit.
	ErrNotFitted = errors.New("scaler not fitted")
)
