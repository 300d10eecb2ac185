// Package commentary asks a language model for a short study guide on a verse.
package commentary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	themeCount    = 3
	questionCount = 2
)

var ErrMalformed = errors.New("malformed commentary")

type Commentary struct {
	Commentary  string   `json:"commentary"`
	Application string   `json:"application"`
	Themes      []string `json:"themes"`
	Questions   []string `json:"questions"`
}

const systemPrompt = `You are a thoughtful Bible study companion. You write warm, accessible and theologically careful commentary for ordinary readers. You always answer with a single JSON object and nothing else.`

const userPrompt = `Write a study guide for %s.

Verse text:
%s

Respond with a JSON object with exactly these keys:
- "commentary": two or three short paragraphs explaining the verse in its context;
- "application": one paragraph on how to live the verse out today;
- "themes": an array of exactly 3 single-word themes, lower case, no spaces;
- "questions": an array of exactly 2 open reflective questions for the reader.`

type Service struct {
	completer Completer
}

func NewService(completer Completer) *Service {
	return &Service{completer}
}

// Generate produces the commentary on a verse, with exactly three single-word themes and two questions.
func (s *Service) Generate(ctx context.Context, verse, content string) (Commentary, error) {
	raw, err := s.completer.Complete(ctx, Prompt{
		System:    systemPrompt,
		User:      fmt.Sprintf(userPrompt, verse, content),
		JSON:      true,
		MaxTokens: 1200,
	})
	if err != nil {
		return Commentary{}, err
	}
	return Parse(raw)
}

// Parse decodes a model's answer and normalises it: themes are cut to their first word.
func Parse(raw string) (Commentary, error) {
	var commentary Commentary
	if err := json.Unmarshal([]byte(stripFence(raw)), &commentary); err != nil {
		return Commentary{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	commentary.Commentary = strings.TrimSpace(commentary.Commentary)
	commentary.Application = strings.TrimSpace(commentary.Application)
	if commentary.Commentary == "" || commentary.Application == "" {
		return Commentary{}, fmt.Errorf("%w: missing commentary or application", ErrMalformed)
	}

	var themes = make([]string, 0, themeCount)
	for _, theme := range commentary.Themes {
		if theme = firstWord(theme); theme != "" {
			themes = append(themes, theme)
		}
		if len(themes) == themeCount {
			break
		}
	}
	if len(themes) < themeCount {
		return Commentary{}, fmt.Errorf("%w: %d themes", ErrMalformed, len(themes))
	}
	commentary.Themes = themes

	var questions = make([]string, 0, questionCount)
	for _, question := range commentary.Questions {
		if question = strings.TrimSpace(question); question != "" {
			questions = append(questions, question)
		}
		if len(questions) == questionCount {
			break
		}
	}
	if len(questions) < questionCount {
		return Commentary{}, fmt.Errorf("%w: %d questions", ErrMalformed, len(questions))
	}
	commentary.Questions = questions

	return commentary, nil
}

// firstWord keeps the first whitespace delimited token, without surrounding punctuation.
func firstWord(s string) string {
	var fields = strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `.,;:!?"'()`)
}

// stripFence removes markdown code fences some models wrap JSON in, even in JSON mode.
func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	return strings.TrimSpace(strings.TrimSuffix(raw, "```"))
}

// Fallback is served when the model can't be reached, so that study can go on.
func Fallback(verse string) Commentary {
	return Commentary{
		Commentary: fmt.Sprintf("We couldn't prepare a commentary on %s right now. "+
			"Read the passage slowly a few times, noticing the words that stand out to you, "+
			"and consider what it reveals about God and about the people it speaks to.", verse),
		Application: "Choose one phrase from the passage to carry with you today. " +
			"Return to it in quiet moments and ask how it might shape a decision, a conversation or a prayer.",
		Themes: []string{"faith", "hope", "love"},
		Questions: []string{
			"What word or phrase in this passage speaks most directly to you today?",
			"How might this passage change the way you treat someone this week?",
		},
	}
}
