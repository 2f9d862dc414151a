package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "compliance"
)

// Ключи коллекций (бэкенд redisstore)
const (
	RedisKeyTemplates   = RedisNamespace + ":collections:templates"
	RedisKeySimulations = RedisNamespace + ":collections:simulations"

	// RedisKeySeedLock — только одна реплика сидирует пустой каталог
	RedisKeySeedLock = RedisNamespace + ":lock:seed"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanTemplatePublished — другая реплика опубликовала шаблон, каталог нужно перечитать.
	RedisChanTemplatePublished = RedisNamespace + ":templates:published"
	// RedisChanAuditFinalized — аудит подписан (payload: audit_id:final_score).
	RedisChanAuditFinalized = RedisNamespace + ":audits:finalized"
)

// GetSessionLeaseKey Ключ аренды аудита на редактирование
func GetSessionLeaseKey(sessionID string) string {
	return fmt.Sprintf("%s:lock:audit:%s", RedisNamespace, sessionID)
}
