package core

// validation.go checks one question record.
//
// Rules run in a fixed order (text, type, correct_answer, release_date,
// time_limit) and every failing field is reported, so a correction form can
// show all problems of a row at once. Validation is pure: the record is not
// modified.

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// validationOrder is the order rules are applied and errors are listed.
var validationOrder = []string{
	FieldText, FieldType, FieldCorrectAnswer, FieldReleaseDate, FieldTimeLimit,
}

// releaseDateLayout accepts one or two digit days and months.
const releaseDateLayout = "2/1/2006"

const (
	answerTag      = "answer"
	releaseDateTag = "release_date"
	timeLimitTag   = "time_limit"
)

// questionInput is the validator's view of a record. Values are trimmed,
// and type and answer are lower-cased.
type questionInput struct {
	Text          string `json:"text" validate:"required"`
	Type          string `json:"type" validate:"required,oneof=multiple_choice true_false open_response"`
	CorrectAnswer string `json:"correct_answer" validate:"required_unless=Type open_response,answer"`
	ReleaseDate   string `json:"release_date" validate:"required,release_date"`
	TimeLimit     string `json:"time_limit" validate:"required_unless=Type open_response,time_limit"`
}

func inputFrom(rec RawRecord) questionInput {
	text := func(f string) string { return strings.TrimSpace(rec.Text(f)) }
	return questionInput{
		Text:          text(FieldText),
		Type:          strings.ToLower(text(FieldType)),
		CorrectAnswer: strings.ToLower(text(FieldCorrectAnswer)),
		ReleaseDate:   text(FieldReleaseDate),
		TimeLimit:     text(FieldTimeLimit),
	}
}

// RowValidator validates question records. It is safe for concurrent use.
type RowValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewRowValidator builds a validator with English messages.
func NewRowValidator() *RowValidator {
	v := validator.New()

	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(answerTag, validateAnswer)
	_ = v.RegisterValidation(releaseDateTag, validateReleaseDate)
	_ = v.RegisterValidation(timeLimitTag, validateTimeLimit)

	rv := &RowValidator{validate: v, trans: trans}
	rv.registerMessages(map[string]string{
		"required":        "{0} is required",
		"required_unless": "{0} is required unless type is open_response",
		"oneof":           "{0} must be one of: multiple_choice, true_false, open_response",
		releaseDateTag:    "{0} must be a date in DD/MM/YYYY format",
		timeLimitTag:      "{0} must be a number",
	})
	_ = trans.Add("answer_multiple_choice", "{0} must be one of a, b, c or d", true)
	_ = trans.Add("answer_true_false", "{0} must be true or false", true)

	return rv
}

func (rv *RowValidator) registerMessages(messages map[string]string) {
	for tag, text := range messages {
		text := text
		_ = rv.validate.RegisterTranslation(tag, rv.trans,
			func(t ut.Translator) error { return t.Add(tag, text, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				msg, err := t.T(fe.Tag(), fe.Field())
				if err != nil {
					return fe.Field() + " is invalid"
				}
				return msg
			})
	}
}

// Validate reports whether rec is a valid question and, if not, the message
// for every failing field.
func (rv *RowValidator) Validate(rec RawRecord) (bool, FieldErrors) {
	in := inputFrom(rec)
	errs := rv.check(in)
	return len(errs) == 0, errs
}

// Check validates rec and wraps the outcome as row index.
func (rv *RowValidator) Check(index int, rec RawRecord) ValidatedRow {
	ok, errs := rv.Validate(rec)
	return ValidatedRow{Index: index, Record: rec, Valid: ok, Errors: errs}
}

// Draft validates rec and, when valid, converts it into a typed question.
func (rv *RowValidator) Draft(rec RawRecord) (QuestionDraft, FieldErrors) {
	in := inputFrom(rec)
	if errs := rv.check(in); len(errs) > 0 {
		return QuestionDraft{}, errs
	}

	text := func(f string) string { return strings.TrimSpace(rec.Text(f)) }

	d := QuestionDraft{
		Text:          in.Text,
		Type:          QuestionType(in.Type),
		Options:       [4]string{text(FieldOptionA), text(FieldOptionB), text(FieldOptionC), text(FieldOptionD)},
		CorrectAnswer: in.CorrectAnswer,
		Explanation:   text(FieldExplanation),
		Category:      text(FieldCategory),
	}
	d.ReleaseDate, _ = parseReleaseDate(in.ReleaseDate)
	if in.TimeLimit != "" {
		if n, ok := parseTimeLimit(in.TimeLimit); ok {
			d.TimeLimit = &n
		}
	}
	if d.Category == "" {
		d.Category = DefaultCategory
	}
	d.AllDepartments, d.Departments = parseDepartments(text(FieldDepartment))

	return d, nil
}

func (rv *RowValidator) check(in questionInput) FieldErrors {
	err := rv.validate.Struct(in)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{"": err.Error()}
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		if fe.Tag() == answerTag {
			msg, _ := rv.trans.T("answer_"+in.Type, fe.Field())
			out[fe.Field()] = msg
			continue
		}
		out[fe.Field()] = fe.Translate(rv.trans)
	}
	return out
}

// validateAnswer accepts a-d for multiple choice and true/false for
// true_false questions. Other types and empty values are left to the
// required rules.
func validateAnswer(fl validator.FieldLevel) bool {
	answer := fl.Field().String()
	if answer == "" {
		return true
	}
	switch QuestionType(fl.Parent().FieldByName("Type").String()) {
	case TypeMultipleChoice:
		return len(answer) == 1 && answer >= "a" && answer <= "d"
	case TypeTrueFalse:
		return answer == AnswerTrue || answer == AnswerFalse
	default:
		return true
	}
}

func validateReleaseDate(fl validator.FieldLevel) bool {
	_, err := parseReleaseDate(fl.Field().String())
	return err == nil
}

func validateTimeLimit(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, ok := parseTimeLimit(s)
	return ok
}

func parseReleaseDate(s string) (time.Time, error) {
	return time.Parse(releaseDateLayout, s)
}

// parseTimeLimit parses an integer; float literals are truncated.
func parseTimeLimit(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

// parseDepartments reads the department cell. Empty or "all" targets every
// department; otherwise the cell is a comma-separated list of names.
func parseDepartments(cell string) (all bool, names []string) {
	if cell == "" || strings.EqualFold(cell, AllDepartments) {
		return true, nil
	}
	seen := make(map[string]bool)
	for _, p := range strings.Split(cell, ",") {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, p)
	}
	if len(names) == 0 {
		return true, nil
	}
	return false, names
}
