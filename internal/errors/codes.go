package errors

// 에러 코드 상수 정의
// 형식: CATEGORY_SPECIFIC_DETAIL
// 운영 도구/프론트엔드에서 이 코드를 기반으로 메시지를 매핑함

const (
	// ==================== 인증 (AUTH_) ====================
	AuthUnauthorized  = "AUTH_UNAUTHORIZED"   // API 키 필요
	AuthKeyInvalid    = "AUTH_KEY_INVALID"    // 잘못된 API 키
	AuthKeyRevoked    = "AUTH_KEY_REVOKED"    // 폐기된 API 키
	AuthzForbidden    = "AUTHZ_FORBIDDEN"     // 접근 권한 없음

	// ==================== 검증 (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT" // 잘못된 입력
	ValidationInvalidID    = "VALIDATION_INVALID_ID"    // 잘못된 ID
	ValidationInvalidRange = "VALIDATION_INVALID_RANGE" // 범위 초과
	ValidationRequired     = "VALIDATION_REQUIRED"      // 필수 항목

	// ==================== 리소스 (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"      // 리소스 없음
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS" // 이미 존재
	ResourceConflict      = "RESOURCE_CONFLICT"       // 충돌

	// ==================== 매장/상품/태그 ====================
	StoreNotFound      = "STORE_NOT_FOUND"       // 매장 없음
	StoreSlugExists    = "STORE_SLUG_EXISTS"     // 매장 식별자 중복
	ProductNotFound    = "PRODUCT_NOT_FOUND"     // 상품 없음
	ProductSKUExists   = "PRODUCT_SKU_EXISTS"    // 매장 내 SKU 중복
	ProductNameExists  = "PRODUCT_NAME_EXISTS"   // 매장 내 상품명 중복
	TagAlreadyExists   = "TAG_ALREADY_EXISTS"    // 태그 중복

	// ==================== 수집 (SCRAPE_) ====================
	ScrapeProfileNotFound = "SCRAPE_PROFILE_NOT_FOUND" // 셀렉터 프로필 없음
	ScrapeProfileInvalid  = "SCRAPE_PROFILE_INVALID"   // 프로필 설정 오류
	ScrapeRunInProgress   = "SCRAPE_RUN_IN_PROGRESS"   // 같은 사이트 수집 진행 중
	ScrapeRunFailed       = "SCRAPE_RUN_FAILED"        // 수집 실행 실패

	// ==================== 내부 오류 (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"   // 서버 오류
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR" // DB 오류
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"   // 외부 API 오류
	InternalConfigError   = "INTERNAL_CONFIG_ERROR"   // 설정 오류
)
