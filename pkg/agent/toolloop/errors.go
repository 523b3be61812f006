package toolloop

import "errors"

// ErrMaxIterations is returned when the model keeps calling tools past Config.MaxIterations.
var ErrMaxIterations = errors.New("maximum tool iterations exceeded")
