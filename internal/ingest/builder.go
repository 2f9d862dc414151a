// Package ingest собирает AuditTemplate из строк, уже приведённых к форме вопросов
// (ручной ввод или результат внешнего сервиса извлечения из таблиц), проверяет схему
// и назначает идентификаторы. Свободный текст ячеек здесь не разбирается.
package ingest

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

// OptionRow — вариант ответа кандидата.
type OptionRow struct {
	Label string  `json:"label" yaml:"label" validate:"notblank"`
	Value float64 `json:"value" yaml:"value" validate:"finite,gte=0"`
}

// Row — строка-кандидат в вопрос. Weight приходит числом из JSON/таблицы и должен быть целым
// и помещаться в int32.
type Row struct {
	ID       string      `json:"id,omitempty" yaml:"id,omitempty"`
	Category string      `json:"category" yaml:"category" validate:"notblank"`
	Text     string      `json:"text" yaml:"text" validate:"notblank"`
	Weight   float64     `json:"weight" yaml:"weight" validate:"gt=0,whole,lte=2147483647"`
	Options  []OptionRow `json:"options" yaml:"options" validate:"required,min=1,compliant,dive"`
}

// Candidate — форма {name, questions[]}, которую отдаёт сервис извлечения.
type Candidate struct {
	Name      string `json:"name" yaml:"name" validate:"notblank"`
	Questions []Row  `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

type Builder struct {
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

func NewBuilder() *Builder {
	v := validator.New()
	// Пути ошибок строим по json-именам: questions[2].options[0].value
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("whole", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return f == math.Trunc(f) && !math.IsInf(f, 0)
	})
	// Inf/NaN из CSV ("Inf") или YAML (".inf") ломают расчёт и не сериализуются в JSON
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsInf(f, 0) && !math.IsNaN(f)
	})
	_ = v.RegisterValidation("compliant", hasCompliantOption)

	return &Builder{
		validate: v,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// hasCompliantOption: хотя бы один вариант с положительным баллом («соответствует»).
func hasCompliantOption(fl validator.FieldLevel) bool {
	opts, ok := fl.Field().Interface().([]OptionRow)
	if !ok {
		return false
	}
	for _, o := range opts {
		if o.Value > 0 {
			return true
		}
	}
	return false
}

// BuildFromRows проверяет кандидата и строит шаблон версии 1.
// Все вопросы валидны или не импортируется ничего: при нарушениях возвращается полный список.
func (b *Builder) BuildFromRows(c Candidate) (*domain.AuditTemplate, domain.ValidationErrors) {
	return b.build(c, nil)
}

// BuildManually — то же для вопросов, введённых вручную в форме.
func (b *Builder) BuildManually(name string, questions []domain.QuestionDefinition) (*domain.AuditTemplate, domain.ValidationErrors) {
	return b.build(CandidateFromQuestions(name, questions), nil)
}

// Revise строит новую версию опубликованного шаблона. Старый шаблон не меняется.
func (b *Builder) Revise(prev *domain.AuditTemplate, c Candidate) (*domain.AuditTemplate, domain.ValidationErrors) {
	return b.build(c, prev)
}

// CandidateFromQuestions приводит вопросы формы к строкам-кандидатам.
func CandidateFromQuestions(name string, questions []domain.QuestionDefinition) Candidate {
	c := Candidate{Name: name, Questions: make([]Row, 0, len(questions))}
	for _, q := range questions {
		row := Row{ID: q.ID, Category: q.Category, Text: q.Text, Weight: float64(q.Weight)}
		for _, o := range q.Options {
			row.Options = append(row.Options, OptionRow{Label: o.Label, Value: o.Value})
		}
		c.Questions = append(c.Questions, row)
	}
	return c
}

func (b *Builder) build(c Candidate, prev *domain.AuditTemplate) (*domain.AuditTemplate, domain.ValidationErrors) {
	violations := b.check(c)
	if len(violations) > 0 {
		return nil, violations
	}

	tpl := &domain.AuditTemplate{
		ID:        b.newID(),
		Name:      strings.TrimSpace(c.Name),
		Version:   1,
		Questions: make([]domain.QuestionDefinition, 0, len(c.Questions)),
		CreatedAt: b.now(),
	}
	if prev != nil {
		tpl.Version = prev.Version + 1
		tpl.PreviousID = prev.ID
	}

	ids := assignIDs(c.Questions)
	for i, r := range c.Questions {
		q := domain.QuestionDefinition{
			ID:       ids[i],
			Category: strings.TrimSpace(r.Category),
			Text:     strings.TrimSpace(r.Text),
			Weight:   int(r.Weight),
			Options:  make([]domain.Option, 0, len(r.Options)),
		}
		for _, o := range r.Options {
			q.Options = append(q.Options, domain.Option{Label: strings.TrimSpace(o.Label), Value: o.Value})
		}
		tpl.Questions = append(tpl.Questions, q)
	}
	return tpl, nil
}

// check собирает все нарушения: теги validator плюс уникальность явно заданных ID.
func (b *Builder) check(c Candidate) domain.ValidationErrors {
	violations := make(domain.ValidationErrors, 0)

	if err := b.validate.Struct(c); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return append(violations, domain.ValidationError{Field: "template", Index: -1, Code: "invalid", Message: err.Error()})
		}
		for _, fe := range fieldErrs {
			violations = append(violations, toViolation(fe))
		}
	}

	seen := make(map[string]int)
	for i, r := range c.Questions {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			violations = append(violations, domain.ValidationError{
				Field:   fmt.Sprintf("questions[%d].id", i),
				Index:   i,
				Code:    "unique",
				Message: fmt.Sprintf("duplicate question id %q (first used by question %d)", id, first),
			})
			continue
		}
		seen[id] = i
	}
	return violations
}

// assignIDs сохраняет явно заданные ID и выдаёт стабильные позиционные q001, q002... остальным.
func assignIDs(rows []Row) []string {
	taken := make(map[string]bool, len(rows))
	for _, r := range rows {
		if id := strings.TrimSpace(r.ID); id != "" {
			taken[id] = true
		}
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		if id := strings.TrimSpace(r.ID); id != "" {
			ids[i] = id
			continue
		}
		n := i + 1
		id := fmt.Sprintf("q%03d", n)
		for taken[id] {
			n++
			id = fmt.Sprintf("q%03d", n)
		}
		taken[id] = true
		ids[i] = id
	}
	return ids
}

var questionIndexRe = regexp.MustCompile(`^questions\[(\d+)\]`)

func toViolation(fe validator.FieldError) domain.ValidationError {
	// Namespace: "Candidate.questions[1].options[0].value" -> "questions[1].options[0].value"
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	idx := -1
	if m := questionIndexRe.FindStringSubmatch(field); m != nil {
		idx, _ = strconv.Atoi(m[1])
	}

	return domain.ValidationError{
		Field:   field,
		Index:   idx,
		Code:    fe.Tag(),
		Message: messageFor(fe),
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "whole":
		return "must be an integer"
	case "finite":
		return "must be a finite number"
	case "compliant":
		return "must include at least one option with a positive value"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
