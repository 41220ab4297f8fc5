package reconstruct

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
)

// Config holds the tuning knobs of the Initializer and the Updater.
//
// Distances are in the units of the observed point clouds, and times are in the
// units of their timestamps.
type Config struct {
	// Policy selects how a point cloud becomes Gaussians.
	Policy Policy `json:"policy"`
	// DefaultScale is the extent of a Gaussian seeded from a single point, and
	// the smallest extent of one seeded from many.
	DefaultScale float32 `json:"default_scale"`
	// DefaultOpacity is the opacity of every seeded Gaussian.
	DefaultOpacity float32 `json:"default_opacity"`
	// DefaultColor is used for points that carry no color.
	DefaultColor [3]float32 `json:"default_color"`
	// GridSize is the voxel edge length of the GridDownsample policy.
	GridSize float64 `json:"grid_size"`
	// ClusterEps is the neighbourhood radius of the Cluster policy.
	ClusterEps float64 `json:"cluster_eps"`
	// ClusterMinPoints is the number of neighbours (the point included) that
	// makes a point a cluster core in the Cluster policy.
	ClusterMinPoints int `json:"cluster_min_points"`
	// ParallelThreshold is the cloud size above which OnePerPoint converts
	// points concurrently. Zero disables concurrency.
	ParallelThreshold int `json:"parallel_threshold"`

	// MergeDistance is the radius within which a candidate matches an existing
	// splat, either to fuse into it (Merge) or to inherit its identity
	// (Replace, Track).
	MergeDistance float64 `json:"merge_distance"`
	// MergeTimeTolerance is how far from the requested time Merge may look for
	// a keyframe to fuse into.
	MergeTimeTolerance float64 `json:"merge_time_tolerance"`
	// MaxObservationWeight caps the weight an existing splat carries against a
	// new candidate, so long-lived splats can still move.
	MaxObservationWeight uint32 `json:"max_observation_weight"`
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() Config {
	return Config{
		Policy:               OnePerPoint,
		DefaultScale:         0.01,
		DefaultOpacity:       1,
		DefaultColor:         [3]float32{1, 1, 1},
		GridSize:             0.05,
		ClusterEps:           0.05,
		ClusterMinPoints:     4,
		ParallelThreshold:    1 << 14,
		MergeDistance:        0.02,
		MergeTimeTolerance:   0.05,
		MaxObservationWeight: 64,
	}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max
// file size. Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadConfig(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	const maxFileSize = 1 << 20 // 1MiB
	if fileInfo.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every setting that is out of range.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Policy.MarshalText(); err != nil {
		errs = append(errs, err)
	}
	if !(c.DefaultScale > 0) || math.IsInf(float64(c.DefaultScale), 0) {
		errs = append(errs, fmt.Errorf("default_scale must be positive, got %v", c.DefaultScale))
	}
	if !(c.DefaultOpacity >= 0 && c.DefaultOpacity <= 1) {
		errs = append(errs, fmt.Errorf("default_opacity must be between 0 and 1, got %v", c.DefaultOpacity))
	}
	for _, v := range c.DefaultColor {
		if !(v >= 0 && v <= 1) {
			errs = append(errs, fmt.Errorf("default_color channels must be between 0 and 1, got %v", c.DefaultColor))
			break
		}
	}
	if !positive(c.GridSize) {
		errs = append(errs, fmt.Errorf("grid_size must be positive, got %v", c.GridSize))
	}
	if !positive(c.ClusterEps) {
		errs = append(errs, fmt.Errorf("cluster_eps must be positive, got %v", c.ClusterEps))
	}
	if c.ClusterMinPoints < 1 {
		errs = append(errs, fmt.Errorf("cluster_min_points must be at least 1, got %d", c.ClusterMinPoints))
	}
	if c.ParallelThreshold < 0 {
		errs = append(errs, fmt.Errorf("parallel_threshold must be non-negative, got %d", c.ParallelThreshold))
	}
	if !(c.MergeDistance >= 0) || math.IsInf(c.MergeDistance, 0) {
		errs = append(errs, fmt.Errorf("merge_distance must be non-negative, got %v", c.MergeDistance))
	}
	if !(c.MergeTimeTolerance >= 0) || math.IsInf(c.MergeTimeTolerance, 0) {
		errs = append(errs, fmt.Errorf("merge_time_tolerance must be non-negative, got %v", c.MergeTimeTolerance))
	}
	if c.MaxObservationWeight < 1 {
		errs = append(errs, fmt.Errorf("max_observation_weight must be at least 1, got %d", c.MaxObservationWeight))
	}
	return errors.Join(errs...)
}

func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

// Initializer returns the Initializer configured by c.
func (c Config) Initializer() Initializer {
	return Initializer{
		Policy:            c.Policy,
		DefaultScale:      c.DefaultScale,
		DefaultOpacity:    c.DefaultOpacity,
		DefaultColor:      mgl32.Vec3(c.DefaultColor),
		GridSize:          c.GridSize,
		ClusterEps:        c.ClusterEps,
		ClusterMinPoints:  c.ClusterMinPoints,
		ParallelThreshold: c.ParallelThreshold,
	}
}
