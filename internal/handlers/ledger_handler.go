package handlers

import (
	"net/http"
	"strconv"

	"stock-ledger-service/internal/dto"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LedgerHandler struct {
	svc service.LedgerService
	log *zap.Logger
}

func NewLedgerHandler(svc service.LedgerService, log *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		svc: svc,
		log: log,
	}
}

// CreateProduct godoc
// @Summary Регистрация товара
// @Description Создаёт товар с пустым складом (0 bulk, 0 tracked)
// @Tags products
// @Accept json
// @Produce json
// @Param product body dto.CreateProductRequest true "Товар"
// @Success 201 {object} dto.ProductResponse
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 409 {object} dto.CapacityErrorResponse "SKU уже существует"
// @Router /api/v1/products [post]
func (h *LedgerHandler) CreateProduct(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Некорректный запрос создания товара", zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p, err := h.svc.RegisterProduct(c.Request.Context(), service.ProductInput{
		SKU:      req.SKU,
		Name:     req.Name,
		UnitCost: req.UnitCost,
		IsActive: active,
	})
	if err != nil {
		h.writeError(c, "create_product", err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToProduct(p))
}

func (h *LedgerHandler) ListProducts(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	f := service.ProductListFilter{Query: c.Query("q"), Limit: limit, Offset: offset}
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "invalid active", dto.FieldError{Field: "active", Message: "must be true or false"})
			return
		}
		f.OnlyActive = &b
	}

	list, total, err := h.svc.ListProducts(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, "list_products", err)
		return
	}
	out := dto.ListProductsResponse{Products: make([]dto.ProductResponse, 0, len(list)), Total: total}
	for i := range list {
		out.Products = append(out.Products, dto.ToProduct(&list[i]))
	}
	out.NextOffset = dto.NextOffset(offset, len(list), total)
	c.JSON(http.StatusOK, out)
}

func (h *LedgerHandler) GetProduct(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_product", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToProduct(p))
}

func (h *LedgerHandler) GetStock(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	st, err := h.svc.GetStock(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_stock", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToStock(st))
}

// ConvertBulkToTracked godoc
// @Summary Перевод bulk единиц в tracked
// @Tags stock
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param body body dto.QuantityRequest true "Количество"
// @Success 200 {object} dto.StockResultResponse
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 409 {object} dto.CapacityErrorResponse "insufficient_bulk / would_oversell"
// @Failure 503 {object} dto.UnavailableErrorResponse
// @Router /api/v1/products/{id}/stock/convert [post]
func (h *LedgerHandler) ConvertBulkToTracked(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.svc.ConvertBulkToTracked(c.Request.Context(), id, req.Quantity, req.Reason)
	if err != nil {
		h.writeError(c, "convert", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToStockResult(res))
}

func (h *LedgerHandler) AddTrackedStock(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.svc.AddTrackedStock(c.Request.Context(), id, req.Quantity, req.Reason)
	if err != nil {
		h.writeError(c, "add_tracked", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToStockResult(res))
}

func (h *LedgerHandler) AdjustBulkStock(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.AdjustBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.svc.AdjustBulkStock(c.Request.Context(), id, req.Delta, req.Reason)
	if err != nil {
		h.writeError(c, "adjust_bulk", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToStockResult(res))
}

// ReconcileStock отвечает 200 и при расхождении: сам отчёт и есть результат,
// consistent=false.
func (h *LedgerHandler) ReconcileStock(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	rep, err := h.svc.ReconcileStock(c.Request.Context(), id)
	if err != nil && rep == nil {
		h.writeError(c, "reconcile", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToReconcile(rep))
}

func (h *LedgerHandler) ListAdjustments(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	list, total, err := h.svc.ListAdjustments(c.Request.Context(), id, limit, offset)
	if err != nil {
		h.writeError(c, "list_adjustments", err)
		return
	}
	out := dto.ListAdjustmentsResponse{Adjustments: make([]dto.AdjustmentResponse, 0, len(list)), Total: total}
	for i := range list {
		out.Adjustments = append(out.Adjustments, dto.ToAdjustment(&list[i]))
	}
	out.NextOffset = dto.NextOffset(offset, len(list), total)
	c.JSON(http.StatusOK, out)
}

func (h *LedgerHandler) ListItems(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var status *models.ItemStatus
	if v := c.Query("status"); v != "" {
		s := models.ItemStatus(v)
		status = &s
	}
	items, err := h.svc.ListItems(c.Request.Context(), id, status)
	if err != nil {
		h.writeError(c, "list_items", err)
		return
	}
	out := make([]dto.ItemResponse, 0, len(items))
	for i := range items {
		out = append(out, dto.ToItem(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *LedgerHandler) TransitionItem(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.TransitionItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	it, err := h.svc.TransitionItem(c.Request.Context(), id, models.ItemStatus(req.Status), req.Reason)
	if err != nil {
		h.writeError(c, "transition_item", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToItem(it))
}

// GetAvailability godoc
// @Summary Доступность товара по дням
// @Tags availability
// @Produce json
// @Param id path string true "Product ID"
// @Param from query string true "YYYY-MM-DD"
// @Param to query string true "YYYY-MM-DD"
// @Success 200 {object} dto.AvailabilityResponse
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 404 {object} dto.NotFoundErrorResponse
// @Router /api/v1/products/{id}/availability [get]
func (h *LedgerHandler) GetAvailability(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	r, ok := rangeParams(c, c.Query("from"), c.Query("to"))
	if !ok {
		return
	}
	days, err := h.svc.GetAvailability(c.Request.Context(), id, r)
	if err != nil {
		h.writeError(c, "availability", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToAvailability(id, r, days))
}

// Reserve godoc
// @Summary Резерв под заказ
// @Description Все запрошенные удержания создаются вместе или не создаётся ни одно
// @Tags reservations
// @Accept json
// @Produce json
// @Param body body dto.ReserveRequest true "Резерв"
// @Success 201 {object} dto.ReserveResponse
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 409 {object} dto.CapacityErrorResponse "overbooked / already_reserved / item_unavailable"
// @Failure 503 {object} dto.UnavailableErrorResponse
// @Router /api/v1/reservations [post]
func (h *LedgerHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Некорректный запрос резерва", zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}
	r, ok := rangeParams(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	in := service.ReserveInput{
		ProductID:      uuid.MustParse(req.ProductID),
		JobID:          uuid.MustParse(req.JobID),
		JobNumber:      req.JobNumber,
		CustomerName:   req.CustomerName,
		Range:          r,
		BulkQuantity:   req.BulkQuantity,
		TrackedItemIDs: make([]uuid.UUID, 0, len(req.TrackedItemIDs)),
	}
	for _, s := range req.TrackedItemIDs {
		in.TrackedItemIDs = append(in.TrackedItemIDs, uuid.MustParse(s))
	}

	res, err := h.svc.Reserve(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, "reserve", err)
		return
	}
	out := dto.ReserveResponse{Assignments: make([]dto.AssignmentResponse, 0, len(res.Assignments))}
	for i := range res.Assignments {
		out.Assignments = append(out.Assignments, dto.ToAssignment(&res.Assignments[i]))
	}
	c.JSON(http.StatusCreated, out)
}

func (h *LedgerHandler) GetAssignment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	a, err := h.svc.GetAssignment(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_assignment", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToAssignment(a))
}

// Release идемпотентен: повторный вызов отвечает 200 с released=false.
func (h *LedgerHandler) Release(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	released, err := h.svc.Release(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "release", err)
		return
	}
	c.JSON(http.StatusOK, dto.ReleaseResponse{Released: released})
}

func (h *LedgerHandler) ReleaseJob(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	n, err := h.svc.ReleaseJob(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "release_job", err)
		return
	}
	c.JSON(http.StatusOK, dto.ReleaseJobResponse{Released: n})
}

func pageParams(c *gin.Context) (limit, offset int, ok bool) {
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			badRequest(c, "invalid limit", dto.FieldError{Field: "limit", Message: "must be a non-negative integer"})
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			badRequest(c, "invalid offset", dto.FieldError{Field: "offset", Message: "must be a non-negative integer"})
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func rangeParams(c *gin.Context, from, to string) (models.DateRange, bool) {
	start, err := models.ParseDay(from)
	if err != nil {
		badRequest(c, "invalid start date", dto.FieldError{Field: "from", Message: "expected " + models.DateLayout})
		return models.DateRange{}, false
	}
	end, err := models.ParseDay(to)
	if err != nil {
		badRequest(c, "invalid end date", dto.FieldError{Field: "to", Message: "expected " + models.DateLayout})
		return models.DateRange{}, false
	}
	return models.DateRange{Start: start, End: end}, true
}
