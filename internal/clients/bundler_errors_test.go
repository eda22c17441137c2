package clients

import (
	"errors"
	"testing"
)

func TestClassifySubmissionError(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    SubmissionFailureKind
	}{
		{"aa13 code", "AA13 initCode failed or OOG", FailureDeploymentRequired},
		{"initcode text", "execution failed: initCode reverted", FailureDeploymentRequired},
		{"undeployed text", "sender account not deployed", FailureDeploymentRequired},
		{"deployment beats paymaster", "AA13 initCode failed: paymaster requires deployed sender", FailureDeploymentRequired},
		{"aa31 deposit", "AA31 paymaster deposit too low", FailurePaymaster},
		{"aa33 revert", "AA33 reverted (or OOG)", FailurePaymaster},
		{"aa34 signature", "AA34 signature error", FailurePaymaster},
		{"paymaster text", "request rejected by paymaster service", FailurePaymaster},
		{"sponsor text", "sponsorship policy limit reached", FailurePaymaster},
		{"submission timed out", "user operation submission timed out", FailureTimeout},
		{"rpc timeout", "request timeout after 30s", FailureTimeout},
		{"deployment beats timeout", "AA13 initCode validation timed out", FailureDeploymentRequired},
		{"aa21 sender funds", "AA21 didn't pay prefund", FailureGeneric},
		{"plain revert", "execution reverted: hub inactive", FailureGeneric},
		{"network error", "connection refused", FailureGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifySubmissionError(errors.New(tc.message))
			if got != tc.want {
				t.Fatalf("ClassifySubmissionError(%q) = %s, want %s", tc.message, got, tc.want)
			}
		})
	}
}

func TestClassifySubmissionErrorNil(t *testing.T) {
	if got := ClassifySubmissionError(nil); got != FailureGeneric {
		t.Fatalf("nil error must classify as generic, got %s", got)
	}
}

func TestExtractAACode(t *testing.T) {
	if code := ExtractAACode(errors.New("AA31 paymaster deposit too low")); code != "AA31" {
		t.Fatalf("want AA31, got %q", code)
	}
	if code := ExtractAACode(errors.New("no code here")); code != "" {
		t.Fatalf("want empty, got %q", code)
	}
}
