// Package config loads the deployment profile: detector tuning, face
// margins, recognizer settings and model file locations.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/andresmejia3/gaze/internal/geometry"
	"github.com/andresmejia3/gaze/internal/locate"
	"github.com/andresmejia3/gaze/internal/pipeline"
	"github.com/andresmejia3/gaze/internal/recognizer"
	"github.com/andresmejia3/gaze/internal/render"
	"github.com/andresmejia3/gaze/internal/types"
	"gopkg.in/yaml.v3"
)

// Detector backends.
const (
	DetectorCascade = "cascade" // OpenCV Haar cascades
	DetectorPigo    = "pigo"    // pure Go faces, OpenCV eyes
	DetectorProcess = "process" // external process for both
)

// Back-projection modes.
const (
	ProjectAffine = "affine"
	ProjectLegacy = "legacy"
)

type Config struct {
	Eyes            types.DetectParams `yaml:"eyes"`
	Faces           types.DetectParams `yaml:"faces"`
	MaxEyeWidth     int                `yaml:"max_eye_width"`
	PairRatio       float64            `yaml:"pair_ratio"`
	Margins         geometry.Margins   `yaml:"margins"`
	MinFaceFraction float64            `yaml:"min_face_fraction"`
	Downscale       float64            `yaml:"downscale"`
	BackProjection  string             `yaml:"back_projection"`
	// FrameAngles adds whole-frame face searches at these rotations in
	// degrees, e.g. [0, -40, 40]. Empty relies on eye pairs alone.
	FrameAngles []float64 `yaml:"frame_angles"`

	Detector        string   `yaml:"detector"`
	DetectorCommand []string `yaml:"detector_command"`
	Cascades        Cascades `yaml:"cascades"`

	Recognizer recognizer.Config `yaml:"recognizer"`
	Camera     Camera            `yaml:"camera"`
	// Render redacts unknown faces in annotated output when set.
	Render render.Style `yaml:"render"`

	CommandBuffer int `yaml:"command_buffer"`
}

// Cascades are model file paths. An empty Profile disables profile passes.
type Cascades struct {
	Eye     string `yaml:"eye"`
	Face    string `yaml:"face"`
	Profile string `yaml:"profile"`
	Pigo    string `yaml:"pigo"`
}

type Camera struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"` // video files only, 0 keeps the native rate
}

// Default is the profile used when no file is given.
func Default() Config {
	loc := locate.DefaultConfig()
	return Config{
		Eyes:            loc.Eyes,
		Faces:           loc.Faces,
		MaxEyeWidth:     loc.MaxEyeWidth,
		PairRatio:       loc.PairRatio,
		Margins:         loc.Margins,
		MinFaceFraction: loc.MinFaceFraction,
		Downscale:       loc.Downscale,
		BackProjection:  ProjectAffine,
		Detector:        DetectorCascade,
		Cascades: Cascades{
			Eye:  "data/haarcascade_eye.xml",
			Face: "data/haarcascade_frontalface_alt.xml",
			Pigo: "data/facefinder",
		},
		Recognizer:    recognizer.DefaultConfig(),
		Camera:        Camera{Width: 640, Height: 480},
		Render:        render.Style{Strength: 12},
		CommandBuffer: pipeline.DefaultConfig().CommandBuffer,
	}
}

// Load returns the defaults overlaid by the YAML profile at path (if any)
// and then by GAZE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read profile: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse profile %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid profile: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("GAZE_DETECTOR", &c.Detector)
	envString("GAZE_BACK_PROJECTION", &c.BackProjection)
	envString("GAZE_EYE_CASCADE", &c.Cascades.Eye)
	envString("GAZE_FACE_CASCADE", &c.Cascades.Face)
	envString("GAZE_PROFILE_CASCADE", &c.Cascades.Profile)
	envString("GAZE_PIGO_CASCADE", &c.Cascades.Pigo)
	envString("GAZE_REDACT", &c.Render.Redact)

	return errors.Join(
		envInt("GAZE_MAX_EYE_WIDTH", &c.MaxEyeWidth),
		envInt("GAZE_CAMERA_WIDTH", &c.Camera.Width),
		envInt("GAZE_CAMERA_HEIGHT", &c.Camera.Height),
		envFloat("GAZE_DOWNSCALE", &c.Downscale),
		envFloat("GAZE_FPS", &c.Camera.FPS),
		envFloat("GAZE_THRESHOLD", &c.Recognizer.Threshold),
	)
}

func envString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Eyes.ScaleFactor > 1, "eyes.scale_factor must be above 1, got %v", c.Eyes.ScaleFactor)
	check(c.Faces.ScaleFactor > 1, "faces.scale_factor must be above 1, got %v", c.Faces.ScaleFactor)
	check(c.PairRatio > 0, "pair_ratio must be positive, got %v", c.PairRatio)
	check(c.Margins.Width > 0 && c.Margins.Height > 0, "margins.width and margins.height must be positive")
	check(c.MinFaceFraction >= 0 && c.MinFaceFraction <= 1, "min_face_fraction must be within [0, 1], got %v", c.MinFaceFraction)
	check(c.Downscale >= 0, "downscale must not be negative, got %v", c.Downscale)
	for _, a := range c.FrameAngles {
		check(a > -90 && a < 90, "frame_angles must be within (-90, 90), got %v", a)
	}
	check(c.BackProjection == ProjectAffine || c.BackProjection == ProjectLegacy,
		"back_projection must be %q or %q, got %q", ProjectAffine, ProjectLegacy, c.BackProjection)

	switch c.Detector {
	case DetectorCascade, DetectorPigo:
	case DetectorProcess:
		check(len(c.DetectorCommand) > 0, "detector_command is required for the process detector")
	default:
		errs = append(errs, fmt.Errorf("unknown detector %q", c.Detector))
	}

	check(c.Recognizer.Threshold > 0, "recognizer.threshold must be positive, got %v", c.Recognizer.Threshold)
	check(c.Recognizer.FaceSize >= 16, "recognizer.face_size must be at least 16, got %d", c.Recognizer.FaceSize)
	check(c.Recognizer.Grid >= 1 && c.Recognizer.Grid <= c.Recognizer.FaceSize,
		"recognizer.grid must be within [1, face_size], got %d", c.Recognizer.Grid)

	if err := c.Render.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Locator returns the locator settings of the profile.
func (c Config) Locator() locate.Config {
	return locate.Config{
		Eyes:            c.Eyes,
		Faces:           c.Faces,
		MaxEyeWidth:     c.MaxEyeWidth,
		PairRatio:       c.PairRatio,
		Margins:         c.Margins,
		MinFaceFraction: c.MinFaceFraction,
		Downscale:       c.Downscale,
		Legacy:          c.BackProjection == ProjectLegacy,
	}
}

// Pipeline returns the controller settings of the profile.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{CommandBuffer: c.CommandBuffer, Style: c.Render}
}
