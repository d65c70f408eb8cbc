package controller

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/ikkim/marketplace-ingest/internal/middleware"
)

type TagController struct {
	tagService     service.TagService
	productService service.ProductService
}

func NewTagController(tagService service.TagService, productService service.ProductService) *TagController {
	return &TagController{
		tagService:     tagService,
		productService: productService,
	}
}

// ListTags 태그 목록 조회 (?category=category|provenance)
func (ctrl *TagController) ListTags(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	category := c.Query("category")
	if category != "" && category != model.TagCategoryCategory && category != model.TagCategoryProvenance {
		errors.BadRequest(c, errors.ValidationInvalidInput, "알 수 없는 태그 분류입니다")
		return
	}

	tags, err := ctrl.tagService.ListTags(category)
	if err != nil {
		log.Error("Failed to list tags", err, nil)
		errors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tags":  tags,
		"count": len(tags),
	})
}

type addTagsRequest struct {
	Tags []string `json:"tags" binding:"required,min=1,dive,required,max=100"`
}

// AddProductTags 운영자가 상품에 태그를 수동으로 붙임 (이미 있는 연결은 유지)
func (ctrl *TagController) AddProductTags(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		errors.BadRequest(c, errors.ValidationInvalidID, "잘못된 상품 ID입니다")
		return
	}

	var req addTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "tags 항목이 필요합니다")
		return
	}

	if _, err := ctrl.productService.GetProductByID(id); err != nil {
		if stderrors.Is(err, service.ErrProductNotFound) {
			errors.NotFound(c, errors.ProductNotFound, "상품을 찾을 수 없습니다")
			return
		}
		errors.InternalError(c, "")
		return
	}

	linked, err := ctrl.tagService.TagProduct(c.Request.Context(), id, req.Tags)
	if err != nil {
		log.Error("Failed to tag product", err, map[string]interface{}{
			"product_id": id,
		})
		errors.ParseAndRespond(c, http.StatusInternalServerError, err, "create tag")
		return
	}

	tags, err := ctrl.tagService.GetProductTags(id)
	if err != nil {
		errors.InternalError(c, "")
		return
	}

	log.Info("Product tagged by operator", map[string]interface{}{
		"product_id": id,
		"linked":     linked,
	})
	c.JSON(http.StatusOK, gin.H{
		"linked": linked,
		"tags":   tags,
	})
}
