// Package config provides typed configuration for the curator backend with
// layered loading (defaults, YAML file, environment variables) and startup
// validation. Threshold ordering violations are configuration errors that
// abort startup rather than degrade silently.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "curator-backend/internal/errors"
)

// Config is the root configuration for the service.
type Config struct {
	Environment string     `yaml:"environment" validate:"oneof=development staging production"`
	Server      Server     `yaml:"server"`
	Routing     Routing    `yaml:"routing"`
	Matching    Matching   `yaml:"matching"`
	Clustering  Clustering `yaml:"clustering"`
	Discovery   Discovery  `yaml:"discovery"`
	Retry       Retry      `yaml:"retry"`
	Embedding   Embedding  `yaml:"embedding"`
	Database    Database   `yaml:"database"`
	Cache       Cache      `yaml:"cache"`
	Logging     Logging    `yaml:"logging"`
	Metrics     Metrics    `yaml:"metrics"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Routing holds the decision-engine thresholds and state boundaries.
type Routing struct {
	// DuplicateThreshold gates near-identity matches on title vectors.
	DuplicateThreshold float64 `yaml:"duplicateThreshold" validate:"gt=0,lte=1"`
	// HighConfidenceThreshold is the minimum composite score for an
	// automatic route decision.
	HighConfidenceThreshold float64 `yaml:"highConfidenceThreshold" validate:"gt=0,lt=1"`
	// LowConfidenceThreshold is the floor below which no folder is
	// considered a candidate at all.
	LowConfidenceThreshold float64 `yaml:"lowConfidenceThreshold" validate:"gt=0,lt=1"`
	// TieEpsilon bounds the score band treated as a tie at the top rank.
	TieEpsilon float64 `yaml:"tieEpsilon" validate:"gte=0,lt=1"`

	// BootstrapThreshold and MatureThreshold partition total concept count
	// into bootstrap / growing / mature system states.
	BootstrapThreshold int `yaml:"bootstrapThreshold" validate:"min=1"`
	MatureThreshold    int `yaml:"matureThreshold" validate:"min=1"`

	// BootstrapBatchCap limits the batch size eligible for clustering-based
	// folder creation during bootstrap.
	BootstrapBatchCap int `yaml:"bootstrapBatchCap" validate:"min=1"`

	// MaxHierarchyDepth bounds folder paths. The hierarchy model caps it at 4;
	// it is configurable only downward.
	MaxHierarchyDepth int `yaml:"maxHierarchyDepth" validate:"min=1,max=4"`

	// ReviewAlternatives is the number of top folder candidates attached to
	// an ambiguous-routing review item.
	ReviewAlternatives int `yaml:"reviewAlternatives" validate:"min=1"`

	// BatchConcurrency bounds concurrent candidate routing within a batch.
	BatchConcurrency int `yaml:"batchConcurrency" validate:"min=1"`
}

// Matching configures folder-candidate scoring.
type Matching struct {
	// SearchBreadth is the vector search limit for context matches.
	SearchBreadth int `yaml:"searchBreadth" validate:"min=1"`
	// DuplicateSearchLimit is the top-K for identity-vector search.
	DuplicateSearchLimit int `yaml:"duplicateSearchLimit" validate:"min=1"`

	// Composite score weights. AvgWeight + MaxWeight + CountWeight must not
	// exceed 1 so the composite stays in [0,1].
	AvgWeight   float64 `yaml:"avgWeight" validate:"gte=0,lte=1"`
	MaxWeight   float64 `yaml:"maxWeight" validate:"gte=0,lte=1"`
	CountWeight float64 `yaml:"countWeight" validate:"gte=0,lte=1"`
	// CountCap saturates the match-count bonus.
	CountCap int `yaml:"countCap" validate:"min=1"`
}

// Clustering configures bootstrap grouping and reorganization analysis.
type Clustering struct {
	SimilarityThreshold float64 `yaml:"similarityThreshold" validate:"gt=0,lt=1"`
	MinimumClusterSize  int     `yaml:"minimumClusterSize" validate:"min=2"`
	MaximumClusterSize  int     `yaml:"maximumClusterSize" validate:"min=2"`

	// ReorganizationWindow is how many recent decisions the out-of-band
	// reorganization check inspects.
	ReorganizationWindow int `yaml:"reorganizationWindow" validate:"min=1"`
	// CoherenceFloor is the intra-folder coherence below which a
	// concentrated folder becomes a reorganization candidate.
	CoherenceFloor float64 `yaml:"coherenceFloor" validate:"gt=0,lt=1"`
	// ConcentrationMinimum is the minimum share of windowed decisions that
	// must target one folder before reorganization is considered.
	ConcentrationMinimum float64 `yaml:"concentrationMinimum" validate:"gt=0,lte=1"`
}

// Discovery configures cross-folder related-concept search.
type Discovery struct {
	RelevanceThreshold float64       `yaml:"relevanceThreshold" validate:"gt=0,lt=1"`
	Limit              int           `yaml:"limit" validate:"min=1"`
	CacheTTL           time.Duration `yaml:"cacheTTL"`
	CacheMaxItems      int           `yaml:"cacheMaxItems" validate:"min=1"`
}

// Retry bounds retries against network dependencies.
type Retry struct {
	MaxAttempts   int           `yaml:"maxAttempts" validate:"min=1"`
	InitialDelay  time.Duration `yaml:"initialDelay"`
	MaxDelay      time.Duration `yaml:"maxDelay"`
	BackoffFactor float64       `yaml:"backoffFactor" validate:"gte=1"`
	JitterFactor  float64       `yaml:"jitterFactor" validate:"gte=0,lte=1"`
	// CallTimeout bounds each individual vector search / embedding call.
	CallTimeout time.Duration `yaml:"callTimeout"`
}

// Embedding configures the embedding provider client.
type Embedding struct {
	Provider          string        `yaml:"provider" validate:"oneof=stub http"`
	Dimensions        int           `yaml:"dimensions" validate:"min=1"`
	Model             string        `yaml:"model"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"min=1"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Database configures the persistence layer.
type Database struct {
	Provider      string `yaml:"provider" validate:"oneof=memory dynamodb"`
	Region        string `yaml:"region"`
	FolderTable   string `yaml:"folderTable"`
	ArtifactTable string `yaml:"artifactTable"`
	AuditTable    string `yaml:"auditTable"`
	Endpoint      string `yaml:"endpoint"` // local override, empty in AWS
}

// Cache configures in-memory caches.
type Cache struct {
	MaxItems  int           `yaml:"maxItems" validate:"min=1"`
	MaxMemory int64         `yaml:"maxMemory" validate:"min=1024"`
	TTL       time.Duration `yaml:"ttl"`
}

// Logging configures zap.
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

var validate = validator.New()

// Validate checks structural constraints and the cross-field invariants the
// decision engine depends on. Any violation is fatal at startup.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.Configuration("CONFIG_INVALID", "configuration failed structural validation").
			WithCause(err)
	}

	r := c.Routing
	if !(r.DuplicateThreshold > r.HighConfidenceThreshold &&
		r.HighConfidenceThreshold > r.LowConfidenceThreshold) {
		return apperrors.Configuration("THRESHOLD_ORDER",
			"thresholds must satisfy duplicate > highConfidence > lowConfidence").
			WithContext("duplicateThreshold", r.DuplicateThreshold).
			WithContext("highConfidenceThreshold", r.HighConfidenceThreshold).
			WithContext("lowConfidenceThreshold", r.LowConfidenceThreshold)
	}

	if r.MatureThreshold <= r.BootstrapThreshold {
		return apperrors.Configuration("STATE_THRESHOLD_ORDER",
			"matureThreshold must exceed bootstrapThreshold").
			WithContext("bootstrapThreshold", r.BootstrapThreshold).
			WithContext("matureThreshold", r.MatureThreshold)
	}

	m := c.Matching
	if m.AvgWeight+m.MaxWeight+m.CountWeight > 1.0+1e-9 {
		return apperrors.Configuration("WEIGHT_SUM",
			"matching weights must sum to at most 1 so composite scores stay in [0,1]").
			WithContext("avgWeight", m.AvgWeight).
			WithContext("maxWeight", m.MaxWeight).
			WithContext("countWeight", m.CountWeight)
	}

	cl := c.Clustering
	if cl.MaximumClusterSize < cl.MinimumClusterSize {
		return apperrors.Configuration("CLUSTER_SIZE_ORDER",
			"maximumClusterSize must be >= minimumClusterSize").
			WithContext("minimumClusterSize", cl.MinimumClusterSize).
			WithContext("maximumClusterSize", cl.MaximumClusterSize)
	}

	return nil
}

// Default returns the configuration the service runs with when no file or
// environment overrides are present.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Routing: Routing{
			DuplicateThreshold:      0.95,
			HighConfidenceThreshold: 0.80,
			LowConfidenceThreshold:  0.60,
			TieEpsilon:              0.02,
			BootstrapThreshold:      50,
			MatureThreshold:         500,
			BootstrapBatchCap:       25,
			MaxHierarchyDepth:       4,
			ReviewAlternatives:      3,
			BatchConcurrency:        8,
		},
		Matching: Matching{
			SearchBreadth:        50,
			DuplicateSearchLimit: 5,
			AvgWeight:            0.5,
			MaxWeight:            0.3,
			CountWeight:          0.2,
			CountCap:             5,
		},
		Clustering: Clustering{
			SimilarityThreshold:  0.70,
			MinimumClusterSize:   3,
			MaximumClusterSize:   15,
			ReorganizationWindow: 100,
			CoherenceFloor:       0.55,
			ConcentrationMinimum: 0.4,
		},
		Discovery: Discovery{
			RelevanceThreshold: 0.65,
			Limit:              10,
			CacheTTL:           5 * time.Minute,
			CacheMaxItems:      500,
		},
		Retry: Retry{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
			CallTimeout:   10 * time.Second,
		},
		Embedding: Embedding{
			Provider:          "stub",
			Dimensions:        384,
			Model:             "stub-hash-v1",
			RequestsPerSecond: 10,
			Burst:             20,
			Timeout:           15 * time.Second,
		},
		Database: Database{
			Provider:      "memory",
			Region:        "us-east-1",
			FolderTable:   "curator-folders",
			ArtifactTable: "curator-artifacts",
			AuditTable:    "curator-audit",
		},
		Cache: Cache{
			MaxItems:  1000,
			MaxMemory: 32 * 1024 * 1024,
			TTL:       5 * time.Minute,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "curator",
			Path:      "/metrics",
		},
	}
}
