package stage

import (
	"fmt"
	"strings"
)

// Non-convergence of the compliance fix loop is not an error: the run
// continues with the best-effort architecture and the report carries
// Converged=false plus the outstanding violations.

// DomainRejectionError reports that the submitted diagram describes an
// architecture outside the supported platform. It is terminal: no retry
// or downstream stage can succeed, so the orchestrator stops the run.
type DomainRejectionError struct {
	DetectedPlatforms []string
	Services          []string
	Message           string
}

func (e *DomainRejectionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "diagram describes an unsupported platform"
	}
	if len(e.DetectedPlatforms) > 0 {
		return fmt.Sprintf("stage: %s (detected: %s)", msg, strings.Join(e.DetectedPlatforms, ", "))
	}
	return "stage: " + msg
}
