package dto

// BaseError универсальный корневой формат ошибки
// Code — машинно-ориентированный код (snake_case)
// Message — краткое человеко-читаемое описание
// Details — дополнительная строка (пояснение от сервиса)
// Retryable — клиент может повторить запрос как есть
// Conflict — подробности отказа по ёмкости (для подбора других дат)
type BaseError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Fields    []FieldError   `json:"fields,omitempty"`
	Conflict  *ConflictError `json:"conflict,omitempty"`
}

// FieldError отдельная ошибка по конкретному полю
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

// ConflictError описывает, что именно не поместилось
// Date/Requested/Available — для bulk, ItemID/HeldBy — для tracked
type ConflictError struct {
	Date      string `json:"date,omitempty"`
	Requested int32  `json:"requested,omitempty"`
	Available *int32 `json:"available,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Status    string `json:"status,omitempty"`
	HeldBy    string `json:"held_by,omitempty"`
}

// ValidationErrorResponse 400
// Code: "validation_error"
type ValidationErrorResponse BaseError

// NotFoundErrorResponse 404
// Code: "not_found"
type NotFoundErrorResponse BaseError

// CapacityErrorResponse 409
// Пример: на дату не хватает bulk или единица уже занята
// Code: "overbooked" / "item_unavailable" / "insufficient_bulk" / "would_oversell"
type CapacityErrorResponse BaseError

// UnavailableErrorResponse 503
// Пример: конкурентная транзакция или таймаут, повторить позже
// Code: "contended" / "timeout"
type UnavailableErrorResponse BaseError

// InternalErrorResponse 500
// Code: "internal_error"
type InternalErrorResponse BaseError

func NewValidationError(msg string, fields []FieldError) BaseError {
	return BaseError{Code: "validation_error", Message: msg, Fields: fields}
}

func NewNotFoundError(msg string) BaseError {
	return BaseError{Code: "not_found", Message: msg}
}

func NewCapacityError(code, msg string, conflict *ConflictError) BaseError {
	return BaseError{Code: code, Message: msg, Conflict: conflict}
}

func NewUnavailableError(code, msg string) BaseError {
	return BaseError{Code: code, Message: msg, Retryable: true}
}

func NewInternalError(details string) BaseError {
	return BaseError{Code: "internal_error", Message: "internal server error", Details: details}
}
