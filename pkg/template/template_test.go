package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethan/neon-realtime/pkg/template"
)

func textQuestion(input template.InputType, required bool) template.Question {
	return template.Question{ID: "q1", Widget: template.WidgetText, Input: input, Required: required}
}

func TestValidateAnswerTextIntegerAccepted(t *testing.T) {
	q := textQuestion(template.InputInteger, true)
	errs := q.ValidateAnswer([]string{"42"})
	assert.Empty(t, errs)
}

func TestValidateAnswerTextIntegerRejectsNonNumeric(t *testing.T) {
	q := textQuestion(template.InputInteger, true)
	errs := q.ValidateAnswer([]string{"not-a-number"})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "unable to parse")
}

func TestValidateAnswerTextFloatAccepted(t *testing.T) {
	q := textQuestion(template.InputFloat, true)
	errs := q.ValidateAnswer([]string{"3.14"})
	assert.Empty(t, errs)
}

func TestValidateAnswerOptionalBlankIsAccepted(t *testing.T) {
	q := textQuestion(template.InputAny, false)
	errs := q.ValidateAnswer([]string{""})
	assert.Empty(t, errs)
}

func TestValidateAnswerRequiredBlankIsRejected(t *testing.T) {
	q := textQuestion(template.InputAny, true)
	errs := q.ValidateAnswer(nil)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "required")
}

func TestValidateAnswerCheckboxListRejectsUnknownChoice(t *testing.T) {
	q := template.Question{
		ID:      "q2",
		Widget:  template.WidgetCheckboxList,
		Choices: []string{"red", "green", "blue"},
	}
	errs := q.ValidateAnswer([]string{"red", "purple"})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "not a valid choice")
}

func TestValidateAnswerRadioListAcceptsSingleChoice(t *testing.T) {
	q := template.Question{
		ID:      "q3",
		Widget:  template.WidgetRadioList,
		Choices: []string{"yes", "no"},
	}
	errs := q.ValidateAnswer([]string{"yes"})
	assert.Empty(t, errs)
}

func TestValidateAnswerRadioListRejectsTooManyAnswers(t *testing.T) {
	q := template.Question{
		ID:      "q4",
		Widget:  template.WidgetRadioList,
		Choices: []string{"yes", "no"},
	}
	errs := q.ValidateAnswer([]string{"yes", "no"})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "should have at most 1")
}

func TestValidateAnswerSectionHeaderAndPageBreakAlwaysValid(t *testing.T) {
	header := template.Question{ID: "h1", Widget: template.WidgetSectionHeader, Required: true}
	assert.Empty(t, header.ValidateAnswer(nil))

	pageBreak := template.Question{ID: "p1", Widget: template.WidgetPageBreak, Required: true}
	assert.Empty(t, pageBreak.ValidateAnswer([]string{"ignored"}))
}

func TestTemplateValidateAnswersCollectsAllErrors(t *testing.T) {
	tmpl := template.Template{
		ID: "tmpl-1",
		Items: []template.Question{
			{ID: "age", Widget: template.WidgetText, Input: template.InputInteger, Required: true},
			{ID: "color", Widget: template.WidgetRadioList, Choices: []string{"red", "blue"}},
		},
	}

	errs := tmpl.ValidateAnswers(map[string][]string{
		"age":   {"not-a-number"},
		"color": {"red", "blue"},
	})

	assert.Len(t, errs, 2)
}

func TestTemplateGetQuestionByID(t *testing.T) {
	tmpl := template.Template{Items: []template.Question{{ID: "q1"}, {ID: "q2"}}}

	q, ok := tmpl.GetQuestionByID("q2")
	assert.True(t, ok)
	assert.Equal(t, "q2", q.ID)

	_, ok = tmpl.GetQuestionByID("missing")
	assert.False(t, ok)
}
