package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Schedule ScheduleConfig
	S3       S3Config
	Geocode  GeocodeConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
	LogLevel    string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// ScraperConfig 수집 파이프라인 설정
type ScraperConfig struct {
	ProfilesPath       string        // 셀렉터 프로필 YAML 파일 또는 디렉터리
	UserAgent          string        // 일반 HTTP 요청 User-Agent
	HTTPTimeout        time.Duration // 페이지 1건 GET 제한 시간
	ItemTimeout        time.Duration // 상품 1건 처리(fetch) 제한 시간
	RunTimeout         time.Duration // 매장 1회 수집 전체 제한 시간
	MaxPages           int           // 목록 페이지 최대 탐색 수 (프로필 값이 없을 때)
	Workers            int           // 상품 페이지 동시 fetch 수 (1 = 순차)
	MaxConcurrentRuns  int           // 서로 다른 사이트 동시 수집 수
	Actor              string        // 스케줄러/CLI 실행 시 기록되는 작성자
	PlaceholderDomains []string      // 운영 데이터에 들어가면 안 되는 도메인
	RunLockTTL         time.Duration // Redis 실행 락 만료 (수집 제한 시간보다 길어야 함)
}

// runLockMargin 락은 실행 제한 시간보다 이만큼 더 유지
const runLockMargin = 15 * time.Minute

type BrowserConfig struct {
	Enabled     bool
	BinPath     string
	Headless    bool
	PageTimeout time.Duration
	IdleTimeout time.Duration
}

type ScheduleConfig struct {
	Enabled bool
	Cron    string   // 예: "0 4 * * *"
	Sites   []string // 비어 있으면 전체 프로필
}

type S3Config struct {
	Enabled         bool
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	BaseURL         string // CloudFront or S3 direct URL
	Folder          string
}

type GeocodeConfig struct {
	KakaoAPIKey string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "admin"),
			Password:     getEnv("DB_PASSWORD", "1234"),
			DBName:       getEnv("DB_NAME", "marketplace"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxIdleConns: parseInt(getEnv("DB_MAX_IDLE_CONNS", "10"), 10),
			MaxOpenConns: parseInt(getEnv("DB_MAX_OPEN_CONNS", "50"), 50),
		},
		Redis: RedisConfig{
			Enabled:  parseBool(getEnv("REDIS_ENABLED", "false")),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Scraper: ScraperConfig{
			ProfilesPath:       getEnv("SCRAPER_PROFILES_PATH", "./profiles"),
			UserAgent:          getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
			HTTPTimeout:        parseDuration(getEnv("SCRAPER_HTTP_TIMEOUT", "20s"), 20*time.Second),
			ItemTimeout:        parseDuration(getEnv("SCRAPER_ITEM_TIMEOUT", "45s"), 45*time.Second),
			RunTimeout:         parseDuration(getEnv("SCRAPER_RUN_TIMEOUT", "30m"), 30*time.Minute),
			MaxPages:           parseInt(getEnv("SCRAPER_MAX_PAGES", "20"), 20),
			Workers:            parseInt(getEnv("SCRAPER_WORKERS", "1"), 1),
			MaxConcurrentRuns:  parseInt(getEnv("SCRAPER_MAX_CONCURRENT_RUNS", "4"), 4),
			Actor:              getEnv("SCRAPER_ACTOR", "scraper"),
			PlaceholderDomains: parseSlice(getEnv("SCRAPER_PLACEHOLDER_DOMAINS", "")),
			RunLockTTL:         parseDuration(getEnv("SCRAPER_RUN_LOCK_TTL", "45m"), 45*time.Minute),
		},
		Browser: BrowserConfig{
			Enabled:     parseBool(getEnv("BROWSER_ENABLED", "false")),
			BinPath:     getEnv("BROWSER_BIN", ""),
			Headless:    parseBool(getEnv("BROWSER_HEADLESS", "true")),
			PageTimeout: parseDuration(getEnv("BROWSER_PAGE_TIMEOUT", "40s"), 40*time.Second),
			IdleTimeout: parseDuration(getEnv("BROWSER_IDLE_TIMEOUT", "8s"), 8*time.Second),
		},
		Schedule: ScheduleConfig{
			Enabled: parseBool(getEnv("SCRAPE_SCHEDULE_ENABLED", "false")),
			Cron:    getEnv("SCRAPE_CRON", "0 4 * * *"),
			Sites:   parseSlice(getEnv("SCRAPE_SITES", "")),
		},
		S3: S3Config{
			Enabled:         parseBool(getEnv("IMAGE_MIRROR_ENABLED", "false")),
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			Bucket:          getEnv("AWS_S3_BUCKET", "marketplace-images"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BaseURL:         getEnv("AWS_S3_BASE_URL", ""),
			Folder:          getEnv("AWS_S3_FOLDER", "products"),
		},
		Geocode: GeocodeConfig{
			KakaoAPIKey: getEnv("KAKAO_CLIENT_ID", ""),
		},
	}

	if err := config.Scraper.checkRunLock(config.Redis.Enabled); err != nil {
		return nil, err
	}
	return config, nil
}

// checkRunLock keeps the shared run lock alive for the whole run. A run
// without a time limit could outlive any TTL, so it is refused with Redis.
func (c *ScraperConfig) checkRunLock(redisEnabled bool) error {
	if !redisEnabled {
		return nil
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("SCRAPER_RUN_TIMEOUT must be positive when REDIS_ENABLED=true (run lock TTL %s)", c.RunLockTTL)
	}
	if minTTL := c.RunTimeout + runLockMargin; c.RunLockTTL < minTTL {
		log.Printf("SCRAPER_RUN_LOCK_TTL %s is shorter than run timeout %s, using %s", c.RunLockTTL, c.RunTimeout, minTTL)
		c.RunLockTTL = minTTL
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return b
}

func parseSlice(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
