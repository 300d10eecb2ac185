package reflections

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/silktrader/selah/pkg/ntime"
)

const (
	maxThemes      = 10
	maxThemeLength = 30
)

// themes are single tokens, so that they can be tallied and displayed as tags
var singleToken = regexp.MustCompile(`^\S+$`)

type Reflection struct {
	Id         string      `json:"id"`
	UserId     string      `json:"userId"`
	AuthorName string      `json:"authorName,omitempty"`
	Verse      string      `json:"verse"`
	VerseText  string      `json:"verseText,omitempty"`
	Question   string      `json:"question"`
	Answer     string      `json:"answer"`
	Insight    string      `json:"insight,omitempty"`
	Shared     bool        `json:"shared"`
	Themes     []string    `json:"themes"`
	Likes      int         `json:"likes"`
	LikedBy    []string    `json:"likedBy"`
	Created    ntime.NTime `json:"created"`
}

type AddReflectionData struct {
	Verse     string   `json:"verse"`
	VerseText string   `json:"verseText"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Insight   string   `json:"insight"`
	Shared    bool     `json:"shared"`
	Themes    []string `json:"themes"`
}

func (data AddReflectionData) Validate() error {
	data.Verse = strings.TrimSpace(data.Verse)
	data.Question = strings.TrimSpace(data.Question)
	data.Answer = strings.TrimSpace(data.Answer)
	return validation.ValidateStruct(&data,
		validation.Field(&data.Verse, validation.Required, validation.Length(1, 100)),
		validation.Field(&data.VerseText, validation.Length(0, 5000)),
		validation.Field(&data.Question, validation.Required, validation.Length(1, 1000)),
		validation.Field(&data.Answer, validation.Required, validation.Length(1, 10000)),
		validation.Field(&data.Insight, validation.Length(0, 5000)),
		validation.Field(&data.Themes,
			validation.Length(0, maxThemes),
			validation.Each(
				validation.Required,
				validation.Length(1, maxThemeLength),
				validation.Match(singleToken).Error("themes must be single words"),
			),
		),
	)
}

var ErrNotFound = errors.New("reflection not found")
var ErrUnknownUser = errors.New("unknown user")
