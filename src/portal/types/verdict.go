package types

// Verdict is the outcome of one verification attempt. Feedback is ordered and
// never nil so it serializes as an empty array rather than null.
type Verdict struct {
	Verified bool     `json:"verified"`
	Feedback []string `json:"feedback"`
}

// Pass returns a successful verdict with no feedback.
func Pass() Verdict {
	return Verdict{Verified: true, Feedback: []string{}}
}

// Fail returns a failed verdict carrying the given feedback messages.
func Fail(feedback ...string) Verdict {
	if feedback == nil {
		feedback = []string{}
	}
	return Verdict{Verified: false, Feedback: feedback}
}
