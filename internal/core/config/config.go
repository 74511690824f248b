package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type EventsCfg struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	QueueSize int
}

type Config struct {
	Addr              string
	LogLevel          string
	LogConsole        bool
	LogSampleN        int
	StoreDriver       string
	RedisAddr         string
	RedisPoolSize     int
	WarehouseDSN      string
	StoreOpTimeout    time.Duration
	H3Res             int
	GridMaxCells      int
	GridLockTTL       time.Duration
	GeometryCacheSize int
	Events            EventsCfg
	MetricsEnabled    bool
	MetricsAddr       string
	SeedFile          string
	ShutdownTimeout   time.Duration
}

func FromEnv() Config {
	res := getint("SPATIAL_H3_RES", 7)
	if res < 0 || res > 15 {
		res = 7
	}

	driver := strings.ToLower(strings.TrimSpace(getenv("STORE_DRIVER", "memory")))
	switch driver {
	case "memory", "redis":
	default:
		driver = "memory"
	}

	return Config{
		Addr:              getenv("ADDR", ":8090"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogConsole:        getbool("LOG_CONSOLE", false),
		LogSampleN:        getint("LOG_SAMPLE_N", 0),
		StoreDriver:       driver,
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize:     getint("REDIS_POOL_SIZE", 0),
		WarehouseDSN:      getenv("WAREHOUSE_DSN", ""),
		StoreOpTimeout:    getduration("STORE_OP_TIMEOUT", 2*time.Second),
		H3Res:             res,
		GridMaxCells:      getint("GRID_MAX_CELLS", 20000),
		GridLockTTL:       getduration("GRID_LOCK_TTL", 30*time.Second),
		GeometryCacheSize: getint("GEOMETRY_CACHE_SIZE", 4096),
		Events: EventsCfg{
			Enabled:   getbool("EVENTS_ENABLED", false),
			Brokers:   splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:     getenv("KAFKA_TOPIC", "zonegrid.zone-events"),
			QueueSize: getint("EVENTS_QUEUE_SIZE", 1024),
		},
		MetricsEnabled:  getbool("METRICS_ENABLED", false),
		MetricsAddr:     getenv("METRICS_ADDR", ":9090"),
		SeedFile:        getenv("SEED_FILE", ""),
		ShutdownTimeout: getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// split "a:9092, b:9092" into trimmed non-empty parts
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
