// Package config provides configuration management for the easyclips agent.
// Configuration is loaded from environment variables with sensible defaults;
// a .env file, when present, is applied first without overriding variables
// already set in the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".easyclips"

	// Environment variable names
	EnvPort     = "EASYCLIPS_PORT"
	EnvLogLevel = "EASYCLIPS_LOG_LEVEL"
	EnvLogFile  = "EASYCLIPS_LOG_FILE"
	EnvDataDir  = "EASYCLIPS_DATA_DIR"
	EnvHeadless = "EASYCLIPS_HEADLESS"
	EnvEnvFile  = "EASYCLIPS_ENV_FILE"

	EnvFFmpegPath  = "EASYCLIPS_FFMPEG_PATH"
	EnvFFprobePath = "EASYCLIPS_FFPROBE_PATH"

	// Pipeline environment variable names
	EnvPipelinesPython = "EASYCLIPS_PIPELINES_PYTHON"
	EnvPipelinesModule = "EASYCLIPS_PIPELINES_MODULE"

	// Remote transcription
	EnvTranscribeURL   = "EASYCLIPS_TRANSCRIBE_URL"
	EnvTranscribeToken = "EASYCLIPS_TRANSCRIBE_TOKEN"
	EnvTranscribeModel = "EASYCLIPS_TRANSCRIBE_MODEL"

	// Database filename
	DBFilename = "easyclips.db"

	// Pipeline defaults
	DefaultPipelinesModule        = "easyclips_speech"
	DefaultTranscribeModel        = "small.en"
	DefaultPipelinesTimeoutDoctor = 30   // seconds
	DefaultPipelinesTimeoutSpeech = 1800 // 30 minutes
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFile() string
	DataDir() string
	DBPath() string
	ExportsDir() string
	WorkDir() string
	ArtifactsDir() string
	Headless() bool
	FFmpegPath() string
	FFprobePath() string
	PipelinesPython() string
	PipelinesModule() string
	PipelinesTimeoutDoctor() time.Duration
	PipelinesTimeoutSpeech() time.Duration
	TranscribeURL() string
	TranscribeToken() string
	TranscribeModel() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	logFile  string
	dataDir  string
	headless bool

	ffmpegPath  string
	ffprobePath string

	pipelinesPython string
	pipelinesModule string

	transcribeURL   string
	transcribeToken string
	transcribeModel string
}

// New loads the .env file (EASYCLIPS_ENV_FILE or ./.env) and then creates an
// EnvConfig with defaults and environment variable overrides.
func New() (*EnvConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	cfg.logFile = os.Getenv(EnvLogFile)

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = expandHome(dd)
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	cfg.pipelinesPython = os.Getenv(EnvPipelinesPython)
	cfg.pipelinesModule = os.Getenv(EnvPipelinesModule)

	cfg.transcribeURL = strings.TrimRight(os.Getenv(EnvTranscribeURL), "/")
	cfg.transcribeToken = os.Getenv(EnvTranscribeToken)
	cfg.transcribeModel = os.Getenv(EnvTranscribeModel)

	return cfg, nil
}

func loadEnvFile() error {
	path := os.Getenv(EnvEnvFile)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFile returns the rotating log file path, or "" for stdout only.
func (c *EnvConfig) LogFile() string {
	return c.logFile
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ExportsDir is where finished exports are delivered.
func (c *EnvConfig) ExportsDir() string {
	return filepath.Join(c.dataDir, "exports")
}

// WorkDir holds in-progress renders.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

func (c *EnvConfig) ArtifactsDir() string {
	return filepath.Join(c.dataDir, "artifacts")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) PipelinesPython() string {
	return c.pipelinesPython
}

func (c *EnvConfig) PipelinesModule() string {
	if c.pipelinesModule != "" {
		return c.pipelinesModule
	}
	return DefaultPipelinesModule
}

func (c *EnvConfig) PipelinesTimeoutDoctor() time.Duration {
	return time.Duration(DefaultPipelinesTimeoutDoctor) * time.Second
}

func (c *EnvConfig) PipelinesTimeoutSpeech() time.Duration {
	return time.Duration(DefaultPipelinesTimeoutSpeech) * time.Second
}

// TranscribeURL is the remote transcription service; empty selects the
// local speech pipeline.
func (c *EnvConfig) TranscribeURL() string {
	return c.transcribeURL
}

func (c *EnvConfig) TranscribeToken() string {
	return c.transcribeToken
}

func (c *EnvConfig) TranscribeModel() string {
	if c.transcribeModel != "" {
		return c.transcribeModel
	}
	return DefaultTranscribeModel
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
