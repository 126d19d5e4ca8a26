package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name string
		args []Utterance
		want string
	}{
		{name: "empty", args: nil, want: ""},
		{name: "one", args: []Utterance{{Speaker: "A", Text: "Contact detected"}},
			want: "Speaker A: Contact detected"},
		{name: "several", args: []Utterance{
			{Speaker: "A", Text: "Contact detected"},
			{Speaker: "B", Text: "Two vehicles"}},
			want: "Speaker A: Contact detected\nSpeaker B: Two vehicles"},
		{name: "keeps order", args: []Utterance{
			{Speaker: "B", Text: "later"},
			{Speaker: "A", Text: "earlier"}},
			want: "Speaker B: later\nSpeaker A: earlier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Combine(tt.args))
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), Duration(nil))
	assert.Equal(t, 2*time.Second, Duration([]Utterance{
		{Start: 0, End: 1000}, {Start: 1000, End: 2000}}))
}

func TestSpeakers(t *testing.T) {
	assert.Equal(t, []string{}, Speakers(nil))
	assert.Equal(t, []string{"A", "B"}, Speakers([]Utterance{
		{Speaker: "A"}, {Speaker: "B"}, {Speaker: "A"}}))
}
