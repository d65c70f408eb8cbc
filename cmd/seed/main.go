package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/ikkim/marketplace-ingest/config"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/db"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"github.com/ikkim/marketplace-ingest/pkg/util"
	"github.com/xuri/excelize/v2"
)

const usage = `Usage:
  go run cmd/seed/main.go stores <xlsx_file_path>   매장 목록 가져오기
  go run cmd/seed/main.go products <store_id> <xlsx_file_path>
                                                    매장 상품 목록 가져오기
  go run cmd/seed/main.go apikey <operator>         운영자 API 키 발급
  go run cmd/seed/main.go revoke <key_id>           API 키 폐기`

// 시트 컬럼 순서: 상호명, 유형, 주소, 홈페이지, 위도, 경도
const (
	colName = iota
	colType
	colAddress
	colHomepage
	colLatitude
	colLongitude
)

// 상품 시트 컬럼 순서: 상품명, 가격, 통화, SKU, 설명, 태그(쉼표 구분)
const (
	colProductName = iota
	colProductPrice
	colProductCurrency
	colProductSKU
	colProductDescription
	colProductTags
)

// productRow is one spreadsheet product ready for the catalog.
type productRow struct {
	Record scraper.Normalized
	Tags   []string
}

var (
	numOnlyReg     = regexp.MustCompile(`^[0-9]+$`)
	specialOnlyReg = regexp.MustCompile(`^[\p{P}\p{S}\s]+$`)
)

func main() {
	// 명령줄 인자 확인
	if len(os.Args) < 3 {
		log.Fatal(usage)
	}

	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.Initialize(logger.Config{
		Level:       cfg.Server.LogLevel,
		Format:      "console",
		EnableColor: true,
	})

	// DB 연결
	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	ctx := context.Background()
	switch os.Args[1] {
	case "stores":
		err = importStores(ctx, cfg, os.Args[2])
	case "products":
		if len(os.Args) < 4 {
			log.Fatal(usage)
		}
		err = importProducts(ctx, os.Args[2], os.Args[3])
	case "apikey":
		err = issueKey(ctx, os.Args[2])
	case "revoke":
		err = revokeKey(ctx, os.Args[2])
	default:
		log.Fatal(usage)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func importStores(ctx context.Context, cfg *config.Config, filePath string) error {
	// XLSX 파일 읽기
	fmt.Printf("Reading XLSX file: %s\n", filePath)
	specs, err := readStoresFromXLSX(filePath)
	if err != nil {
		return fmt.Errorf("failed to read XLSX: %w", err)
	}

	fmt.Printf("Total stores to import: %d\n", len(specs))

	// 사용자 확인
	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return nil
	}

	var geocoder service.Geocoder
	if cfg.Geocode.KakaoAPIKey != "" {
		geocoder = util.NewKakaoGeocoder(cfg.Geocode.KakaoAPIKey)
	}
	stores := service.NewStoreService(db.GetDB(), repository.NewStoreRepository(db.GetDB()), geocoder)

	// slug 기준으로 이미 있는 매장은 빈 항목만 채워짐
	failed := 0
	for i, spec := range specs {
		if _, err := stores.EnsureStore(ctx, spec, "seed"); err != nil {
			failed++
			fmt.Printf("  %s: %v\n", spec.Name, err)
			continue
		}
		if (i+1)%100 == 0 {
			fmt.Printf("Processed %d stores...\n", i+1)
		}
	}

	fmt.Println("Import completed!")
	fmt.Printf("Total stores imported: %d (failed: %d)\n", len(specs)-failed, failed)
	return nil
}

func importProducts(ctx context.Context, rawStoreID, filePath string) error {
	storeID, err := strconv.ParseUint(rawStoreID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid store id %q", rawStoreID)
	}

	database := db.GetDB()
	stores := service.NewStoreService(database, repository.NewStoreRepository(database), nil)
	store, err := stores.GetStoreByID(uint(storeID))
	if err != nil {
		return fmt.Errorf("failed to load store %d: %w", storeID, err)
	}

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return fmt.Errorf("no data found in XLSX file")
	}

	products := service.NewProductService(database, repository.NewProductRepository(database))
	tags := service.NewTagService(database, repository.NewTagRepository(database))

	counts := map[scraper.Outcome]int{}
	failed := 0
	for i, row := range rows[1:] {
		item, warnings, ok := productFromRow(row, "KRW")
		if !ok {
			continue
		}
		for _, w := range warnings {
			fmt.Printf("  row %d: %s\n", i+2, w)
		}

		// 매장 상품 1건씩 개별 트랜잭션
		result, err := products.Upsert(ctx, store.ID, item.Record, nil, "seed")
		if err != nil {
			failed++
			fmt.Printf("  row %d (%s): %v\n", i+2, item.Record.Name, err)
			continue
		}
		if _, err := tags.TagProduct(ctx, result.ProductID, item.Tags); err != nil {
			failed++
			fmt.Printf("  row %d (%s): tagging failed: %v\n", i+2, item.Record.Name, err)
			continue
		}
		counts[result.Outcome]++
	}

	fmt.Printf("Products for %s: inserted %d, updated %d, skipped %d, failed %d\n",
		store.Name, counts[scraper.OutcomeInserted], counts[scraper.OutcomeUpdated], counts[scraper.OutcomeSkipped], failed)
	return nil
}

// productFromRow 가격을 읽지 못하면 가격 없이 저장하고 경고를 남김
func productFromRow(row []string, defaultCurrency string) (productRow, []string, bool) {
	item := productRow{
		Record: scraper.Normalized{
			Name:        strings.Join(strings.Fields(cell(row, colProductName)), " "),
			Description: cell(row, colProductDescription),
			SKU:         cell(row, colProductSKU),
			Currency:    strings.ToUpper(cell(row, colProductCurrency)),
		},
	}
	if !isValidStoreName(item.Record.Name) {
		return item, nil, false
	}
	if item.Record.Currency == "" {
		item.Record.Currency = defaultCurrency
	}

	var warnings []string
	if raw := cell(row, colProductPrice); raw != "" {
		price, err := scraper.ParsePrice(raw)
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			item.Record.Price = &price
		}
	}

	for _, t := range strings.Split(cell(row, colProductTags), ",") {
		if t = strings.TrimSpace(t); t != "" {
			item.Tags = append(item.Tags, t)
		}
	}
	return item, warnings, true
}

func readStoresFromXLSX(filePath string) ([]scraper.StoreSpec, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	// 첫 번째 시트 이름 가져오기
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}

	fmt.Printf("Reading sheet: %s\n", sheetName)

	// 모든 행 읽기
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in XLSX file")
	}

	var specs []scraper.StoreSpec
	seen := make(map[string]bool) // 중복 제거용
	skippedCount := 0

	// 첫 행은 헤더이므로 스킵
	for _, row := range rows[1:] {
		spec, ok := storeFromRow(row)
		if !ok {
			skippedCount++
			continue
		}

		// 중복 체크 (이름+주소 기준)
		key := spec.Name + "|" + spec.Address
		if seen[key] {
			skippedCount++
			continue
		}
		seen[key] = true
		specs = append(specs, spec)
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Total rows: %d\n", len(rows)-1)
	fmt.Printf("  Valid stores: %d\n", len(specs))
	fmt.Printf("  Skipped rows: %d\n", skippedCount)

	return specs, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func storeFromRow(row []string) (scraper.StoreSpec, bool) {
	spec := scraper.StoreSpec{
		Name:        cell(row, colName),
		Type:        strings.ToLower(cell(row, colType)),
		Address:     cell(row, colAddress),
		HomepageURL: cell(row, colHomepage),
	}
	if !isValidStoreName(spec.Name) {
		return spec, false
	}
	if spec.Type == "" {
		spec.Type = "physical"
	}

	// 좌표는 둘 다 있을 때만 사용, 없으면 지오코딩
	lat, errLat := strconv.ParseFloat(cell(row, colLatitude), 64)
	lng, errLng := strconv.ParseFloat(cell(row, colLongitude), 64)
	if errLat == nil && errLng == nil && lat != 0 && lng != 0 {
		spec.Latitude = &lat
		spec.Longitude = &lng
	}
	return spec, true
}

// isValidStoreName은 상호명이 유효한지 검증합니다
func isValidStoreName(name string) bool {
	// 1. 최소 길이 체크 (2글자 미만 제외)
	if len([]rune(name)) < 2 {
		return false
	}

	// 2. 숫자만 있는 경우 제외
	if numOnlyReg.MatchString(name) {
		return false
	}

	// 3. 특수문자만 있는 경우 제외 (공백, 구두점, 기호만)
	return !specialOnlyReg.MatchString(name)
}

func issueKey(ctx context.Context, operator string) error {
	creds := service.NewCredentialService(repository.NewAPIKeyRepository(db.GetDB()), nil)
	issued, err := creds.Issue(ctx, operator)
	if err != nil {
		return fmt.Errorf("failed to issue API key: %w", err)
	}

	fmt.Printf("API key issued for %s (id=%d)\n", issued.Operator, issued.ID)
	fmt.Printf("  %s\n", issued.Key)
	fmt.Println("이 키는 다시 표시되지 않습니다. 안전한 곳에 보관하세요.")
	return nil
}

func revokeKey(ctx context.Context, rawID string) error {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid key id %q", rawID)
	}
	creds := service.NewCredentialService(repository.NewAPIKeyRepository(db.GetDB()), nil)
	if err := creds.Revoke(ctx, uint(id)); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	fmt.Printf("API key %d revoked\n", id)
	return nil
}
