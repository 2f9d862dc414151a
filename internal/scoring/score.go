// Package scoring считает процент соответствия аудита.
//
// Функции пакета чистые: без логирования и побочных эффектов, их безопасно вызывать
// на каждое изменение ответа. Случаи «вопрос не найден в шаблоне» возвращаются
// вызывающему коду в Result.Fallbacks, логирует их движок.
package scoring

import (
	"math"

	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

// DefaultFallbackMax — максимум балла, если вопрос снимка не найден в шаблоне.
const DefaultFallbackMax = 10.0

// Result — детализация расчёта.
type Result struct {
	Score     int      `json:"score"`
	Earned    float64  `json:"earned"`
	Possible  float64  `json:"possible"`
	Fallbacks []string `json:"fallbacks,omitempty"` // ID вопросов, для которых применён DefaultFallbackMax
}

// CategoryResult — частичный результат по категории вопросов.
type CategoryResult struct {
	Category string  `json:"category"`
	Score    int     `json:"score"`
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
	Answered int     `json:"answered"` // Вопросы, вошедшие в расчёт (без NA)
}

// Calculator хранит параметры расчёта. Нулевое значение использует DefaultFallbackMax.
type Calculator struct {
	FallbackMax float64
}

func (c Calculator) fallbackMax() float64 {
	if c.FallbackMax > 0 {
		return c.FallbackMax
	}
	return DefaultFallbackMax
}

// ComputeScore — процент соответствия в диапазоне [0,100].
func ComputeScore(questions []domain.QuestionState, tpl *domain.AuditTemplate) int {
	return Calculator{}.Compute(questions, tpl).Score
}

// Compute выполняет расчёт:
// earned += weight * score, possible += weight * maxVal по всем вопросам без NA,
// где maxVal берётся из шаблона по ID вопроса.
func (c Calculator) Compute(questions []domain.QuestionState, tpl *domain.AuditTemplate) Result {
	maxByID := maxTable(tpl)

	var res Result
	for _, q := range questions {
		if q.NA {
			continue
		}
		maxVal, ok := maxByID[q.ID]
		if !ok {
			maxVal = c.fallbackMax()
			res.Fallbacks = append(res.Fallbacks, q.ID)
		}
		w := float64(q.Weight)
		res.Earned += w * q.Score
		res.Possible += w * maxVal
	}
	res.Score = percent(res.Earned, res.Possible)
	return res
}

// ByCategory раскладывает расчёт по категориям в порядке первого появления категории.
func (c Calculator) ByCategory(questions []domain.QuestionState, tpl *domain.AuditTemplate) []CategoryResult {
	maxByID := maxTable(tpl)

	order := make([]string, 0)
	acc := make(map[string]*CategoryResult)
	for _, q := range questions {
		cr, ok := acc[q.Category]
		if !ok {
			cr = &CategoryResult{Category: q.Category}
			acc[q.Category] = cr
			order = append(order, q.Category)
		}
		if q.NA {
			continue
		}
		maxVal, ok := maxByID[q.ID]
		if !ok {
			maxVal = c.fallbackMax()
		}
		w := float64(q.Weight)
		cr.Earned += w * q.Score
		cr.Possible += w * maxVal
		cr.Answered++
	}

	out := make([]CategoryResult, 0, len(order))
	for _, name := range order {
		cr := acc[name]
		cr.Score = percent(cr.Earned, cr.Possible)
		out = append(out, *cr)
	}
	return out
}

func maxTable(tpl *domain.AuditTemplate) map[string]float64 {
	if tpl == nil {
		return map[string]float64{}
	}
	table := make(map[string]float64, len(tpl.Questions))
	for _, q := range tpl.Questions {
		table[q.ID] = q.MaxValue()
	}
	return table
}

// percent: деление на ноль (все вопросы NA или пустой набор) даёт 0, а не NaN.
func percent(earned, possible float64) int {
	if possible <= 0 {
		return 0
	}
	p := int(math.Round(100 * earned / possible))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
