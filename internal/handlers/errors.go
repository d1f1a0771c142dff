package handlers

import (
	"errors"
	"net/http"

	"stock-ledger-service/internal/dto"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// writeError переводит ошибку сервиса в HTTP-ответ. Статус определяется
// классом ошибки: отказ по ёмкости (409) и сбой системы (5xx) UI показывает
// по-разному.
func (h *LedgerHandler) writeError(c *gin.Context, op string, err error) {
	class := service.Classify(err)

	switch class {
	case service.ClassValidation:
		if errors.Is(err, service.ErrSKUAlreadyExists) {
			c.JSON(http.StatusConflict, dto.BaseError{Code: "conflict", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, dto.NewValidationError(err.Error(), nil))

	case service.ClassNotFound:
		c.JSON(http.StatusNotFound, dto.NewNotFoundError(err.Error()))

	case service.ClassCapacity:
		code, conflict := capacityDetails(err)
		c.JSON(http.StatusConflict, dto.NewCapacityError(code, err.Error(), conflict))

	case service.ClassTransient:
		code := "contended"
		if errors.Is(err, service.ErrTimeout) {
			code = "timeout"
		}
		h.log.Warn("Временная ошибка склада", zap.String("op", op), zap.Error(err))
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, dto.NewUnavailableError(code, "ledger is busy, retry the request"))

	default:
		h.log.Error("Внутренняя ошибка", zap.String("op", op), zap.Error(err))
		details := ""
		var cv *service.ConstraintViolationError
		if errors.As(err, &cv) {
			details = cv.Invariant
		}
		c.JSON(http.StatusInternalServerError, dto.NewInternalError(details))
	}
}

func capacityDetails(err error) (string, *dto.ConflictError) {
	var ob *service.OverbookedError
	if errors.As(err, &ob) {
		available := ob.Available
		return "overbooked", &dto.ConflictError{
			Date:      ob.Date.Format(models.DateLayout),
			Requested: ob.Requested,
			Available: &available,
		}
	}

	var iu *service.ItemUnavailableError
	if errors.As(err, &iu) {
		conflict := &dto.ConflictError{ItemID: iu.ItemID.String(), Status: string(iu.Status)}
		if iu.ConflictID != nil {
			conflict.HeldBy = iu.ConflictID.String()
			return "already_reserved", conflict
		}
		return "item_unavailable", conflict
	}

	switch {
	case errors.Is(err, service.ErrWouldOversell):
		return "would_oversell", nil
	case errors.Is(err, service.ErrInsufficientBulk):
		return "insufficient_bulk", nil
	}
	return "capacity", nil
}

func badRequest(c *gin.Context, msg string, fields ...dto.FieldError) {
	c.JSON(http.StatusBadRequest, dto.NewValidationError(msg, fields))
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name, dto.FieldError{Field: name, Message: "must be a UUID", Tag: "uuid"})
		return uuid.Nil, false
	}
	return id, true
}
