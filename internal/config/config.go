// Package config loads spatialwatch's process-wide configuration from
// the environment, following the typed-default-helper pattern of the
// teacher's internal/core/config/config.go.
package config

import (
	"os"
	"strconv"
	"time"
)

// Thresholds enumerates every numeric knob the Spatial Test Engine and
// confidence scorer consult (spec.md §4.G, §6).
type Thresholds struct {
	MaxCoordinateMagnitude float64

	SmallAreaThreshold float64
	LargeAreaThreshold float64
	ZeroAreaEpsilon    float64

	SmallLengthThreshold float64
	LargeLengthThreshold float64

	CompactnessThreshold float64
	DensityMin           float64
	DensityMax           float64

	ComplexPointCount     int
	VeryComplexPointCount int

	ProblematicThreshold float64
	DefaultConfidence    float64
}

// CategoryToggles enables or disables individual Spatial Test Engine
// categories at the configuration level (spec.md §6: "geometry-category
// toggles"), not per call.
type CategoryToggles struct {
	Validity  bool
	Topology  bool
	Area      bool
	Duplicate bool
	Polygon   bool
	LineString bool
	Point     bool
}

// Config is spatialwatch's single process-wide configuration object.
type Config struct {
	Addr     string
	LogLevel string
	LogJSON  bool

	LocalDatabaseURL string
	MetricsEnabled   bool

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	PreserveConnectionsOnRestart bool

	ChangeDetectionCadenceMinutes int
	ChangeLoopTickSeconds         int
	QualityCheckStatusTTLSeconds  int

	Thresholds Thresholds
	Categories CategoryToggles
}

// FromEnv loads Config from the process environment, applying the
// defaults spec.md §6 names.
func FromEnv() Config {
	return Config{
		Addr:     getenv("SPATIALWATCH_ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		LogJSON:  getbool("LOG_JSON", false),

		LocalDatabaseURL: getenv("SPATIALWATCH_DATABASE_URL", "postgres://localhost:5432/spatialwatch?sslmode=disable"),
		MetricsEnabled:   getbool("METRICS_ENABLED", true),

		KafkaEnabled: getbool("KAFKA_ENABLED", false),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getenv("KAFKA_DIFF_TOPIC", "spatialwatch.diffs"),

		PreserveConnectionsOnRestart: getbool("PRESERVE_CONNECTIONS_ON_RESTART", true),

		ChangeDetectionCadenceMinutes: getint("CHANGE_DETECTION_CADENCE_MINUTES", 60),
		ChangeLoopTickSeconds:         getint("CHANGE_LOOP_TICK_SECONDS", 60),
		QualityCheckStatusTTLSeconds:  getint("QUALITY_CHECK_STATUS_TTL_SECONDS", 300),

		Thresholds: Thresholds{
			MaxCoordinateMagnitude: getfloat("MAX_COORDINATE_MAGNITUDE", 2e7),

			SmallAreaThreshold: getfloat("SMALL_AREA_THRESHOLD", 1e-6),
			LargeAreaThreshold: getfloat("LARGE_AREA_THRESHOLD", 1e8),
			ZeroAreaEpsilon:    getfloat("ZERO_AREA_EPSILON", 0),

			SmallLengthThreshold: getfloat("SMALL_LENGTH_THRESHOLD", 1e-6),
			LargeLengthThreshold: getfloat("LARGE_LENGTH_THRESHOLD", 1e6),

			CompactnessThreshold: getfloat("COMPACTNESS_THRESHOLD", 0.01),
			DensityMin:           getfloat("DENSITY_MIN", 1e-4),
			DensityMax:           getfloat("DENSITY_MAX", 1e4),

			ComplexPointCount:     getint("COMPLEX_POINT_COUNT", 1000),
			VeryComplexPointCount: getint("VERY_COMPLEX_POINT_COUNT", 10000),

			ProblematicThreshold: getfloat("PROBLEMATIC_THRESHOLD", 0.75),
			DefaultConfidence:    getfloat("DEFAULT_CONFIDENCE", 0.5),
		},

		Categories: CategoryToggles{
			Validity:   getbool("CATEGORY_VALIDITY_ENABLED", true),
			Topology:   getbool("CATEGORY_TOPOLOGY_ENABLED", true),
			Area:       getbool("CATEGORY_AREA_ENABLED", true),
			Duplicate:  getbool("CATEGORY_DUPLICATE_ENABLED", true),
			Polygon:    getbool("CATEGORY_POLYGON_ENABLED", true),
			LineString: getbool("CATEGORY_LINESTRING_ENABLED", true),
			Point:      getbool("CATEGORY_POINT_ENABLED", true),
		},
	}
}

func (c Config) ChangeDetectionCadence() time.Duration {
	return time.Duration(c.ChangeDetectionCadenceMinutes) * time.Minute
}

func (c Config) ChangeLoopTick() time.Duration {
	return time.Duration(c.ChangeLoopTickSeconds) * time.Second
}

func (c Config) QualityCheckStatusTTL() time.Duration {
	return time.Duration(c.QualityCheckStatusTTLSeconds) * time.Second
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

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
