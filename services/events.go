package services

// MatchEventPublisher рассылает события матча подключённым клиентам
// (реализация - live.Hub). Публикация best-effort и не возвращает ошибок.
type MatchEventPublisher interface {
	PublishMatchEvent(matchID int, eventType string, payload interface{})
}

// Типы событий, уходящих в websocket-комнаты матчей.
const (
	EventMatchCanceled       = "MATCH_CANCELED"
	EventMatchFinished       = "MATCH_FINISHED"
	EventRegistrationCreated = "REGISTRATION_CREATED"
	EventRegistrationDeleted = "REGISTRATION_DELETED"
)
