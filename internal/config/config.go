// Package config 提供配置管理
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config 应用配置
type Config struct {
	App         AppConfig         `yaml:"app"`
	Database    DatabaseConfig    `yaml:"database"`
	API         APIConfig         `yaml:"api"`
	Solver      SolverConfig      `yaml:"solver"`
	Postprocess PostprocessConfig `yaml:"postprocess"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// APIConfig API配置
type APIConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SolverConfig 求解器配置
type SolverConfig struct {
	// DefaultSolver 默认后端：ortools/cpsat走CP-SAT，highs走MILP，hybrid先CP-SAT失败后降级HiGHS
	DefaultSolver   string        `yaml:"default_solver"`
	MaxSolveTime    time.Duration `yaml:"max_solve_time"`
	MultiRunEnabled bool          `yaml:"multi_run_enabled"`
}

// PostprocessConfig 局部搜索修复配置（请求内cspSettings可逐项覆盖）
type PostprocessConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	TimeLimitMs   int     `yaml:"time_limit_ms"`
	TabuSize      int     `yaml:"tabu_size"`
	MaxSameShift  int     `yaml:"max_same_shift"`
	OffTolerance  int     `yaml:"off_tolerance"`
	AnnealTemp    float64 `yaml:"anneal_temp"`
	AnnealCool    float64 `yaml:"anneal_cool"`
}

// JobsConfig 异步任务配置
type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	ResultTTL    time.Duration `yaml:"result_ttl"`
	SweepPeriod  time.Duration `yaml:"sweep_period"`
	SolveTimeout time.Duration `yaml:"solve_timeout"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "lunban"),
			Env:      getEnv("APP_ENV", "development"),
			Port:     getEnvInt("APP_PORT", 7021),
			LogLevel: getEnv("APP_LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "lunban"),
			User:            getEnv("DB_USER", "lunban"),
			Password:        getEnv("DB_PASSWORD", "lunban123"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		API: APIConfig{
			Timeout: getEnvDuration("API_TIMEOUT", 30*time.Second),
		},
		Solver: SolverConfig{
			DefaultSolver:   getEnv("MILP_DEFAULT_SOLVER", "hybrid"),
			MaxSolveTime:    getEnvDuration("MILP_MAX_SOLVE_TIME", 60*time.Second),
			MultiRunEnabled: getEnvBool("MILP_MULTI_RUN_ENABLED", true),
		},
		Postprocess: PostprocessConfig{
			MaxIterations: getEnvInt("MILP_POSTPROCESS_MAX_ITERATIONS", 400),
			TimeLimitMs:   getEnvInt("MILP_POSTPROCESS_TIME_LIMIT_MS", 4000),
			TabuSize:      getEnvInt("MILP_POSTPROCESS_TABU_SIZE", 32),
			MaxSameShift:  getEnvInt("MILP_POSTPROCESS_MAX_SAME_SHIFT", 2),
			OffTolerance:  getEnvInt("MILP_POSTPROCESS_OFF_TOLERANCE", 2),
			AnnealTemp:    getEnvFloat("MILP_POSTPROCESS_ANNEAL_TEMP", 5.0),
			AnnealCool:    getEnvFloat("MILP_POSTPROCESS_ANNEAL_COOL", 0.92),
		},
		Jobs: JobsConfig{
			Workers:      getEnvInt("JOBS_WORKERS", 2),
			QueueSize:    getEnvInt("JOBS_QUEUE_SIZE", 64),
			ResultTTL:    getEnvDuration("JOBS_RESULT_TTL", 2*time.Hour),
			SweepPeriod:  getEnvDuration("JOBS_SWEEP_PERIOD", 10*time.Minute),
			SolveTimeout: getEnvDuration("JOBS_SOLVE_TIMEOUT", 10*time.Minute),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	return cfg, nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
