// Package template implements closed-sum-type validation for recording
// template definitions and the answers posted against them
// (pkg/control's GetTemplate/GetTemplateData/PostTemplateData).
//
// Rather than the reference implementation's runtime type dispatch
// across widget_type x input_type, every combination is handled by an
// explicit validator keyed on (WidgetType, InputType), closing the sum
// the same way pkg/models closes the status/control Component sum.
package template

import (
	"fmt"
	"strconv"
)

// WidgetType enumerates the question widgets a template item can use.
type WidgetType string

const (
	WidgetText          WidgetType = "TEXT"
	WidgetParagraph     WidgetType = "PARAGRAPH"
	WidgetCheckboxList  WidgetType = "CHECKBOX_LIST"
	WidgetRadioList     WidgetType = "RADIO_LIST"
	WidgetSectionHeader WidgetType = "SECTION_HEADER"
	WidgetPageBreak     WidgetType = "PAGE_BREAK"
)

// InputType enumerates the expected scalar type of a single answer
// value, for widgets where that is meaningful (TEXT, PARAGRAPH).
type InputType string

const (
	InputAny     InputType = "any"
	InputInteger InputType = "integer"
	InputFloat   InputType = "float"
)

// Question is one item in a template definition.
type Question struct {
	ID        string
	Title     string
	HelpText  string
	Widget    WidgetType
	Input     InputType
	Required  bool
	Choices   []string
}

// Template is a recording template: an ordered list of questions plus
// the recording-name format string.
type Template struct {
	ID                  string
	Name                string
	IsDefault           bool
	Items               []Question
	RecordingNameFormat []string
}

// GetQuestionByID returns the question with the given ID, or ok=false
// if no such question exists.
func (t Template) GetQuestionByID(id string) (Question, bool) {
	for _, q := range t.Items {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// FieldError reports one invalid answer, keyed by question ID.
type FieldError struct {
	QuestionID string
	Message    string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("template: question %s: %s", e.QuestionID, e.Message)
}

// maxAnswers returns how many values a widget accepts, or -1 for
// unbounded (CHECKBOX_LIST, limited only by the number of choices).
func maxAnswers(w WidgetType) int {
	switch w {
	case WidgetSectionHeader, WidgetPageBreak:
		return 0
	case WidgetText, WidgetParagraph, WidgetRadioList:
		return 1
	case WidgetCheckboxList:
		return -1
	default:
		return -1
	}
}

func isChoiceWidget(w WidgetType) bool {
	return w == WidgetCheckboxList || w == WidgetRadioList
}

// ValidateAnswer validates one question's answer values in the wire
// ("api") format: every answer, regardless of widget, is a []string.
func (q Question) ValidateAnswer(values []string) []FieldError {
	max := maxAnswers(q.Widget)
	if max == 0 {
		return nil
	}

	if max == -1 {
		max = len(q.Choices)
	}
	if len(values) > max {
		return []FieldError{{
			QuestionID: q.ID,
			Message:    fmt.Sprintf("should have at most %d answer(s)", max),
		}}
	}

	if isChoiceWidget(q.Widget) {
		return q.validateChoices(values)
	}

	return q.validateScalar(values)
}

func (q Question) validateChoices(values []string) []FieldError {
	choiceSet := make(map[string]struct{}, len(q.Choices))
	for _, c := range q.Choices {
		choiceSet[c] = struct{}{}
	}

	var errs []FieldError
	for _, v := range values {
		if _, ok := choiceSet[v]; !ok {
			errs = append(errs, FieldError{
				QuestionID: q.ID,
				Message:    fmt.Sprintf("%q is not a valid choice", v),
			})
		}
	}
	if len(errs) == 0 && q.Required && len(values) == 0 {
		errs = append(errs, FieldError{QuestionID: q.ID, Message: "answer is required"})
	}
	return errs
}

func (q Question) validateScalar(values []string) []FieldError {
	value := ""
	if len(values) == 1 {
		value = values[0]
	}

	if value == "" {
		if q.Required {
			return []FieldError{{QuestionID: q.ID, Message: "answer is required"}}
		}
		return nil
	}

	switch q.Input {
	case InputInteger:
		if _, err := strconv.Atoi(value); err != nil {
			return []FieldError{{QuestionID: q.ID, Message: fmt.Sprintf("unable to parse %q as integer", value)}}
		}
	case InputFloat:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return []FieldError{{QuestionID: q.ID, Message: fmt.Sprintf("unable to parse %q as float", value)}}
		}
	}
	return nil
}

// ValidateAnswers validates a full answer set, keyed by question ID,
// in the wire ("api") format. Questions in the template with no entry
// in answers are treated as an empty answer.
func (t Template) ValidateAnswers(answers map[string][]string) []FieldError {
	var errs []FieldError
	for _, q := range t.Items {
		values := answers[q.ID]
		errs = append(errs, q.ValidateAnswer(values)...)
	}
	return errs
}
