package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	Timezone              string
	ReportTTLSeconds      int
	EstimatedCostRatio    float64
	OperationalCostRatio  float64
	MonthlyTarget         float64
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("REPORT_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	costRatio := getEnvFloat("ESTIMATED_COST_RATIO", 0.75)
	if costRatio < 0 || costRatio >= 1 {
		costRatio = 0.75
	}
	opexRatio := getEnvFloat("OPERATIONAL_COST_RATIO", 0.05)
	if opexRatio < 0 || opexRatio >= 1 {
		opexRatio = 0.05
	}
	target := getEnvFloat("MONTHLY_SALES_TARGET", 0)
	if target < 0 {
		target = 0
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		Timezone:              getEnv("TIMEZONE", "Asia/Jakarta"),
		ReportTTLSeconds:      ttl,
		EstimatedCostRatio:    costRatio,
		OperationalCostRatio:  opexRatio,
		MonthlyTarget:         target,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvFloat(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
