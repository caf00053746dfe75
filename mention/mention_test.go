package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
)

func TestParseSimpleMentions(t *testing.T) {
	res := Parse("I agree with @Alex, and @Blair should weigh in.")
	assert.Equal(t, []string{"Alex", "Blair"}, res.Names)
	assert.False(t, res.IsAll)
	assert.False(t, res.IsEnd)
	assert.False(t, res.IsModerator)
}

func TestParseBracketedNames(t *testing.T) {
	res := Parse("Handing over to @[Data Analyst] for the numbers.")
	assert.Equal(t, []string{"Data Analyst"}, res.Names)
}

func TestParseControlMentions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, res Result)
	}{
		{
			name:    "all",
			content: "Thoughts, @ALL?",
			check: func(t *testing.T, res Result) {
				assert.True(t, res.IsAll)
				assert.Empty(t, res.Names)
			},
		},
		{
			name:    "all lowercase",
			content: "@all please respond",
			check: func(t *testing.T, res Result) {
				assert.True(t, res.IsAll)
			},
		},
		{
			name:    "end",
			content: "Nothing left to cover. @END",
			check: func(t *testing.T, res Result) {
				assert.True(t, res.IsEnd)
				assert.Empty(t, res.Names)
			},
		},
		{
			name:    "moderator english",
			content: "We need a decision from @moderator here",
			check: func(t *testing.T, res Result) {
				assert.True(t, res.IsModerator)
				assert.Empty(t, res.Names)
			},
		},
		{
			name:    "moderator japanese",
			content: "ここは@モデレーターの判断をお願いします",
			check: func(t *testing.T, res Result) {
				assert.True(t, res.IsModerator)
				assert.Empty(t, res.Names)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Parse(tt.content))
		})
	}
}

func TestParseNoMentions(t *testing.T) {
	res := Parse("Just an ordinary message without mentions.")
	assert.False(t, res.HasMention())
	assert.Empty(t, res.Names)
}

func TestHasMention(t *testing.T) {
	assert.True(t, Parse("@Alex hi").HasMention())
	assert.True(t, Parse("@END").HasMention())
	assert.False(t, Parse("hello there").HasMention())
}

func roster() []core.Participant {
	return []core.Participant{
		{ID: "p1", Name: "Mika", IsFacilitator: true},
		{ID: "p2", Name: "Alex"},
		{ID: "p3", Name: "Data Analyst"},
	}
}

func TestFindMentionedResolvesNames(t *testing.T) {
	names := FindMentioned("@alex and @[Data Analyst], your turn", roster(), true)
	assert.Equal(t, []string{"Alex", "Data Analyst"}, names)
}

func TestFindMentionedUnderscoreVariant(t *testing.T) {
	names := FindMentioned("@data_analyst please share", roster(), true)
	assert.Equal(t, []string{"Data Analyst"}, names)
}

func TestFindMentionedDeduplicates(t *testing.T) {
	names := FindMentioned("@Alex, really, @alex!", roster(), true)
	assert.Equal(t, []string{"Alex"}, names)
}

func TestFindMentionedExcludesFacilitator(t *testing.T) {
	assert.Empty(t, FindMentioned("@Mika take it away", roster(), true))
	assert.Equal(t, []string{"Mika"}, FindMentioned("@Mika take it away", roster(), false))
}

func TestFindMentionedAll(t *testing.T) {
	names := FindMentioned("@ALL round-robin please", roster(), true)
	assert.Equal(t, []string{"Alex", "Data Analyst"}, names)
}

func TestFindMentionedUnknownName(t *testing.T) {
	assert.Empty(t, FindMentioned("@Nobody is here", roster(), true))
}
