package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSignature = errors.New("signature is required to finalize an audit")
	ErrSessionFinalized = errors.New("audit session is already finalized")
)

// MissingSignatureError — попытка завершить аудит без подписи. Сессия остаётся в DRAFT.
type MissingSignatureError struct {
	SessionID string
}

func (e *MissingSignatureError) Error() string {
	return fmt.Sprintf("audit %s: %v", e.SessionID, ErrMissingSignature)
}

func (e *MissingSignatureError) Is(target error) bool { return target == ErrMissingSignature }

// SessionFinalizedError — изменение или повторное завершение уже подписанного аудита.
type SessionFinalizedError struct {
	SessionID string
}

func (e *SessionFinalizedError) Error() string {
	return fmt.Sprintf("audit %s: %v", e.SessionID, ErrSessionFinalized)
}

func (e *SessionFinalizedError) Is(target error) bool { return target == ErrSessionFinalized }

// ValidationError описывает одно нарушение схемы шаблона для показа пользователю.
type ValidationError struct {
	Field   string `json:"field"` // Путь к полю, например "questions[2].options[0].value"
	Index   int    `json:"index"` // Индекс вопроса, -1 для полей шаблона
	Code    string `json:"code"`  // Машиночитаемый код: notblank, min, gte, whole, unique, ...
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return v.Field + ": " + v.Message
}

// ValidationErrors — полный список нарушений. Шаблон либо принимается целиком, либо отклоняется.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("template validation failed (%d): %s", len(v), strings.Join(msgs, "; "))
}
