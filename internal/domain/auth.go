package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Скоупы консоли
const (
	ScopeTemplatesWrite = "templates.write" // Публикация и ревизия шаблонов
	ScopeAuditsWrite    = "audits.write"    // Проведение и подписание аудитов
	ScopeAdmin          = "admin"
)

// CustomClaims — токен выдаёт внешний IdP; консоль только проверяет подпись RS256.
// Subject — ID аудитора.
type CustomClaims struct {
	Name   string          `json:"name,omitempty"`
	Units  []string        `json:"units,omitempty"` // Подразделения, где аудитор может работать; пусто — любые
	Scopes map[string]bool `json:"scopes"`          // "admin": true или "audits.write": true
	jwt.RegisteredClaims
}

// HasScope — admin покрывает все скоупы.
func (c *CustomClaims) HasScope(scope string) bool {
	return c.Scopes[ScopeAdmin] || c.Scopes[scope]
}

// CanAuditUnit проверяет доступ к подразделению.
func (c *CustomClaims) CanAuditUnit(unitID string) bool {
	if len(c.Units) == 0 || c.Scopes[ScopeAdmin] {
		return true
	}
	for _, u := range c.Units {
		if u == unitID {
			return true
		}
	}
	return false
}
