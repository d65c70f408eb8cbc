package controller

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/ikkim/marketplace-ingest/internal/middleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type StoreController struct {
	storeService   service.StoreService
	productService service.ProductService
}

func NewStoreController(storeService service.StoreService, productService service.ProductService) *StoreController {
	return &StoreController{
		storeService:   storeService,
		productService: productService,
	}
}

// pagination reads page/page_size query parameters.
func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 0, 0, false
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		return 0, 0, false
	}
	return page, pageSize, true
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (ctrl *StoreController) ListStores(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	page, pageSize, ok := pagination(c)
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidRange, "페이지 값이 올바르지 않습니다")
		return
	}

	opts := service.StoreListOptions{
		Type:     model.StoreType(c.Query("type")),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	}

	stores, total, err := ctrl.storeService.ListStores(opts)
	if err != nil {
		log.Error("Failed to list stores", err, nil)
		errors.InternalError(c, "")
		return
	}

	log.Info("Stores listed", map[string]interface{}{
		"count": len(stores),
		"total": total,
	})

	c.JSON(http.StatusOK, gin.H{
		"stores":    stores,
		"count":     len(stores),
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (ctrl *StoreController) GetStoreByID(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidID, "잘못된 매장 ID입니다")
		return
	}

	store, err := ctrl.storeService.GetStoreByID(id)
	if err != nil {
		if stderrors.Is(err, service.ErrStoreNotFound) {
			errors.NotFound(c, errors.StoreNotFound, "매장을 찾을 수 없습니다")
			return
		}
		log.Error("Failed to fetch store", err, map[string]interface{}{
			"store_id": id,
		})
		errors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"store": store,
	})
}

// ListStoreProducts 매장 상품 목록 (tag, search 필터)
func (ctrl *StoreController) ListStoreProducts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidID, "잘못된 매장 ID입니다")
		return
	}
	page, pageSize, ok := pagination(c)
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidRange, "페이지 값이 올바르지 않습니다")
		return
	}

	if _, err := ctrl.storeService.GetStoreByID(id); err != nil {
		if stderrors.Is(err, service.ErrStoreNotFound) {
			errors.NotFound(c, errors.StoreNotFound, "매장을 찾을 수 없습니다")
			return
		}
		log.Error("Failed to fetch store", err, map[string]interface{}{
			"store_id": id,
		})
		errors.InternalError(c, "")
		return
	}

	products, total, err := ctrl.productService.ListProducts(service.ProductListOptions{
		StoreID: &id,
		Tag:     c.Query("tag"),
		Search:  c.Query("search"),
		Limit:   pageSize,
		Offset:  (page - 1) * pageSize,
	})
	if err != nil {
		log.Error("Failed to list store products", err, map[string]interface{}{
			"store_id": id,
		})
		errors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products":  products,
		"count":     len(products),
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// DeleteStore 상품이 없는 매장만 삭제 (운영자 전용)
func (ctrl *StoreController) DeleteStore(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidID, "잘못된 매장 ID입니다")
		return
	}

	if err := ctrl.storeService.DeleteStore(id); err != nil {
		switch {
		case stderrors.Is(err, service.ErrStoreNotFound):
			errors.NotFound(c, errors.StoreNotFound, "매장을 찾을 수 없습니다")
		case stderrors.Is(err, service.ErrStoreHasProducts):
			errors.Conflict(c, errors.ResourceConflict, err.Error())
		default:
			log.Error("Failed to delete store", err, map[string]interface{}{
				"store_id": id,
			})
			errors.ParseAndRespond(c, http.StatusInternalServerError, err, "delete store")
		}
		return
	}

	operator, _ := middleware.GetOperator(c)
	log.Info("Store deleted", map[string]interface{}{
		"store_id": id,
		"operator": operator,
	})
	c.JSON(http.StatusOK, gin.H{
		"message": "매장이 삭제되었습니다",
	})
}
