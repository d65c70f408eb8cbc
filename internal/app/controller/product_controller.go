package controller

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/ikkim/marketplace-ingest/internal/middleware"
)

type ProductController struct {
	productService service.ProductService
}

func NewProductController(productService service.ProductService) *ProductController {
	return &ProductController{productService: productService}
}

func (ctrl *ProductController) ListProducts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	page, pageSize, ok := pagination(c)
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidRange, "페이지 값이 올바르지 않습니다")
		return
	}

	opts := service.ProductListOptions{
		Tag:    c.Query("tag"),
		Search: c.Query("search"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if raw := c.Query("store_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			errors.BadRequest(c, errors.ValidationInvalidID, "잘못된 매장 ID입니다")
			return
		}
		storeID := uint(id)
		opts.StoreID = &storeID
	}

	products, total, err := ctrl.productService.ListProducts(opts)
	if err != nil {
		log.Error("Failed to list products", err, nil)
		errors.ParseAndRespond(c, http.StatusInternalServerError, err, "list products")
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

func (ctrl *ProductController) GetProductByID(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidID, "잘못된 상품 ID입니다")
		return
	}

	product, err := ctrl.productService.GetProductByID(id)
	if err != nil {
		if stderrors.Is(err, service.ErrProductNotFound) {
			errors.NotFound(c, errors.ProductNotFound, "상품을 찾을 수 없습니다")
			return
		}
		log.Error("Failed to fetch product", err, map[string]interface{}{
			"product_id": id,
		})
		errors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product": product,
	})
}

// GetProductImage 저장된 이미지 원본 반환
func (ctrl *ProductController) GetProductImage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidID, "잘못된 상품 ID입니다")
		return
	}

	product, err := ctrl.productService.GetProductByID(id)
	if err != nil {
		if stderrors.Is(err, service.ErrProductNotFound) {
			errors.NotFound(c, errors.ProductNotFound, "상품을 찾을 수 없습니다")
			return
		}
		errors.InternalError(c, "")
		return
	}

	if product.ImageMirrorURL != "" {
		c.Redirect(http.StatusFound, product.ImageMirrorURL)
		return
	}
	if len(product.ImageData) == 0 {
		errors.NotFound(c, errors.ResourceNotFound, "저장된 이미지가 없습니다")
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, product.ImageContentType, product.ImageData)
}
