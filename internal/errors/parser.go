package errors

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
)

// ErrorInfo 에러 정보 구조
type ErrorInfo struct {
	Code    string // 에러 코드 (codes.go 참조)
	Message string // 사용자 친화적 메시지
}

// IsUniqueViolation reports whether err is a unique-constraint violation from
// either database the service runs on. TranslateError covers most cases; the
// pgconn code and the SQLite message catch errors raised before translation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ParseError 에러를 파싱하여 사용자 친화적인 메시지와 코드로 변환
// 보안상 민감한 정보는 숨기되, 운영자가 문제를 해결할 수 있는 정보 제공
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Code:    InternalServerError,
			Message: "서버 오류가 발생했습니다",
		}
	}

	// 1. GORM 기본 에러
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{
			Code:    ResourceNotFound,
			Message: getNotFoundMessage(context),
		}
	}

	errStr := err.Error()
	errStrLower := strings.ToLower(errStr)

	// 2. 제약 조건 위반
	if IsUniqueViolation(err) || strings.Contains(errStrLower, "duplicate key") {
		return parseDuplicateKeyError(errStrLower)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return parseForeignKeyError(strings.ToLower(pgErr.ConstraintName+" "+pgErr.Detail), context)
		case pgNotNullViolation:
			return ErrorInfo{Code: ValidationRequired, Message: pgErr.ColumnName + " 값은 필수 항목입니다"}
		}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) || strings.Contains(errStrLower, "foreign key constraint") {
		return parseForeignKeyError(errStrLower, context)
	}

	// 3. 네트워크/연결 에러
	if strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "timeout") {
		return ErrorInfo{
			Code:    InternalExternalAPI,
			Message: "외부 서비스 연결에 실패했습니다. 잠시 후 다시 시도해주세요",
		}
	}

	// 4. 기본 내부 서버 오류
	return ErrorInfo{
		Code:    InternalServerError,
		Message: getDefaultErrorMessage(context),
	}
}

// parseDuplicateKeyError Unique constraint 위반 에러 파싱
func parseDuplicateKeyError(errLower string) ErrorInfo {
	switch {
	case strings.Contains(errLower, "slug"):
		return ErrorInfo{Code: StoreSlugExists, Message: "이미 사용 중인 매장 식별자입니다"}
	case strings.Contains(errLower, "idx_products_store_sku") || strings.Contains(errLower, "products.sku"):
		return ErrorInfo{Code: ProductSKUExists, Message: "매장에 같은 SKU의 상품이 이미 있습니다"}
	case strings.Contains(errLower, "match_key"):
		return ErrorInfo{Code: ProductNameExists, Message: "매장에 같은 이름의 상품이 이미 있습니다"}
	case strings.Contains(errLower, "tags.name") || strings.Contains(errLower, "idx_tags_name"):
		return ErrorInfo{Code: TagAlreadyExists, Message: "이미 존재하는 태그입니다"}
	}
	return ErrorInfo{
		Code:    ResourceAlreadyExists,
		Message: "이미 존재하는 데이터입니다",
	}
}

// parseForeignKeyError Foreign key constraint 위반 에러 파싱
func parseForeignKeyError(errLower string, context string) ErrorInfo {
	// 상품이 남아있는 매장 삭제 시도
	if strings.Contains(context, "delete") || strings.Contains(errLower, "still referenced") {
		return ErrorInfo{
			Code:    ResourceConflict,
			Message: "연결된 상품이 있어 삭제할 수 없습니다",
		}
	}
	if strings.Contains(errLower, "store") {
		return ErrorInfo{Code: StoreNotFound, Message: "존재하지 않는 매장입니다"}
	}
	if strings.Contains(errLower, "product") {
		return ErrorInfo{Code: ProductNotFound, Message: "존재하지 않는 상품입니다"}
	}
	return ErrorInfo{
		Code:    ResourceNotFound,
		Message: "참조하는 데이터를 찾을 수 없습니다",
	}
}

// getNotFoundMessage context에 따른 Not Found 메시지
func getNotFoundMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "store") || strings.Contains(contextLower, "매장"):
		return "매장을 찾을 수 없습니다"
	case strings.Contains(contextLower, "product") || strings.Contains(contextLower, "상품"):
		return "상품을 찾을 수 없습니다"
	case strings.Contains(contextLower, "tag") || strings.Contains(contextLower, "태그"):
		return "태그를 찾을 수 없습니다"
	}
	return "요청한 데이터를 찾을 수 없습니다"
}

// getDefaultErrorMessage context에 따른 기본 에러 메시지
func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	if strings.Contains(contextLower, "scrape") || strings.Contains(contextLower, "수집") {
		return "수집 실행 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요"
	}
	if strings.Contains(contextLower, "create") || strings.Contains(contextLower, "생성") {
		return "등록 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요"
	}
	return "서버 오류가 발생했습니다. 잠시 후 다시 시도해주세요"
}

// ParseAndRespond 에러를 파싱하여 응답 반환 (헬퍼 함수)
// controller에서 간편하게 사용할 수 있도록
func ParseAndRespond(c interface{ JSON(int, interface{}) }, statusCode int, err error, context string) {
	errorInfo := ParseError(err, context)
	c.JSON(statusCode, ErrorResponse{
		Error:   errorInfo.Code,
		Message: errorInfo.Message,
	})
}
