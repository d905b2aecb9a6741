package scan

import "errors"

// ErrTargetNotFound reports a scan target that does not exist.
var ErrTargetNotFound = errors.New("scan target not found")

// ErrNoDetectors reports an orchestrator configured with every engine
// disabled.
var ErrNoDetectors = errors.New("no detectors enabled")
