package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Utterance is one contiguous span of speech attributed to one speaker label.
// Speaker labels are local to a single file, not stable identities
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Combine builds the combined conversation text from utterances.
// The exact form "Speaker {label}: {text}" joined by newlines is embedded
// into the translation and extraction prompts, so it must not change
func Combine(utts []Utterance) string {
	lines := make([]string, 0, len(utts))
	for _, u := range utts {
		lines = append(lines, fmt.Sprintf("Speaker %s: %s", u.Speaker, u.Text))
	}
	return strings.Join(lines, "\n")
}

// Duration returns the conversation span covered by utterances.
// Start/End offsets are milliseconds
func Duration(utts []Utterance) time.Duration {
	if len(utts) == 0 {
		return 0
	}
	return time.Duration(utts[len(utts)-1].End-utts[0].Start) * time.Millisecond
}

// Speakers returns distinct speaker labels in order of first appearance
func Speakers(utts []Utterance) []string {
	res := []string{}
	seen := map[string]bool{}
	for _, u := range utts {
		if !seen[u.Speaker] {
			seen[u.Speaker] = true
			res = append(res, u.Speaker)
		}
	}
	return res
}
