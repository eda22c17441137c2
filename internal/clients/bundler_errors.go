package clients

import (
	"regexp"
	"strings"
)

// SubmissionFailureKind classifies bundler/EntryPoint rejections into the small
// closed set the gas strategy branches on.
type SubmissionFailureKind int

const (
	// FailureGeneric anything the orchestrator has no fallback for
	FailureGeneric SubmissionFailureKind = iota
	// FailureDeploymentRequired the sender account has no code yet and its
	// deploying operation cannot be sponsored (AA13 / initCode failures)
	FailureDeploymentRequired
	// FailurePaymaster the paymaster refused or could not pay for the operation
	FailurePaymaster
	// FailureTimeout handle acquisition itself timed out
	FailureTimeout
)

func (k SubmissionFailureKind) String() string {
	switch k {
	case FailureDeploymentRequired:
		return "deployment_required"
	case FailurePaymaster:
		return "paymaster"
	case FailureTimeout:
		return "timeout"
	default:
		return "generic"
	}
}

var aaCodePattern = regexp.MustCompile(`AA(\d{2})`)

// deployment failure signatures, checked before the paymaster branch: an
// undeployed account without gas is a funding problem first, not a paymaster one
var deploymentSignatures = []string{
	"aa13",
	"initcode",
	"account not deployed",
}

// ClassifySubmissionError maps a bundler error message onto a failure kind.
func ClassifySubmissionError(err error) SubmissionFailureKind {
	if err == nil {
		return FailureGeneric
	}
	message := strings.ToLower(err.Error())

	for _, signature := range deploymentSignatures {
		if strings.Contains(message, signature) {
			return FailureDeploymentRequired
		}
	}

	if strings.Contains(message, "timed out") || strings.Contains(message, "timeout") {
		return FailureTimeout
	}

	// AA2x sender errors with no paymaster involvement stay generic; AA3x is
	// the paymaster range. Textual fallbacks cover bundlers that do not
	// surface EntryPoint codes.
	if code := aaCodePattern.FindString(err.Error()); code != "" {
		if strings.HasPrefix(code, "AA3") {
			return FailurePaymaster
		}
		return FailureGeneric
	}
	if strings.Contains(message, "paymaster") || strings.Contains(message, "sponsor") {
		return FailurePaymaster
	}

	return FailureGeneric
}

// ExtractAACode returns the EntryPoint AAxx code embedded in the error, if any.
func ExtractAACode(err error) string {
	if err == nil {
		return ""
	}
	return aaCodePattern.FindString(err.Error())
}
