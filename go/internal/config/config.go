package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// roundNamespace seeds deterministic IDs for rounds declared without one, so
// the server and the seed tool agree on them.
var roundNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://quizclock/rounds"))

// Config is the server's runtime configuration
type Config struct {
	Port      string
	LogLevel  zerolog.Level
	QuizFile  string
	NATSURL   string // empty runs without a message bus
	Stream    string
	DBEnabled bool
	// RoundQueueSize buffers countdown events between timers and sinks
	RoundQueueSize int
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  level,
		QuizFile:  getEnv("QUIZ_FILE", "quiz.yaml"),
		NATSURL:   os.Getenv("NATS_URL"),
		Stream:    getEnv("NATS_STREAM", "QUIZ_EVENTS"),
		DBEnabled: getEnvAsBool("DB_ENABLED", true),

		RoundQueueSize: getEnvAsInt("ROUND_QUEUE_SIZE", 1024),
	}, nil
}

// QuizFile is the YAML description of a quiz
type QuizFile struct {
	Title  string     `yaml:"title"`
	Rounds []RoundDef `yaml:"rounds"`
}

// RoundDef declares one round
type RoundDef struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name"`
	DurationSec int                    `yaml:"duration_sec"`
	Description string                 `yaml:"description"`
	Metadata    map[string]interface{} `yaml:"metadata"`
}

// LoadQuiz reads and validates a quiz file
func LoadQuiz(path string) (*QuizFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quiz file: %w", err)
	}
	return ParseQuiz(data)
}

// ParseQuiz decodes and validates quiz YAML
func ParseQuiz(data []byte) (*QuizFile, error) {
	var quiz QuizFile
	if err := yaml.Unmarshal(data, &quiz); err != nil {
		return nil, fmt.Errorf("failed to parse quiz file: %w", err)
	}
	if _, err := quiz.RoundList(); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// RoundID returns the declared ID, or one derived from the round name.
func (d RoundDef) RoundID() (uuid.UUID, error) {
	if d.ID == "" {
		return uuid.NewSHA1(roundNamespace, []byte(d.Name)), nil
	}
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("round %q: invalid id: %w", d.Name, err)
	}
	return id, nil
}

// RoundList converts the definitions into rounds, in file order.
func (q *QuizFile) RoundList() ([]rounds.Round, error) {
	seen := make(map[uuid.UUID]string, len(q.Rounds))
	list := make([]rounds.Round, 0, len(q.Rounds))

	for i, def := range q.Rounds {
		if strings.TrimSpace(def.Name) == "" {
			return nil, fmt.Errorf("round #%d: name is required", i+1)
		}
		if def.DurationSec <= 0 {
			return nil, fmt.Errorf("round %q: duration_sec must be positive, got %d", def.Name, def.DurationSec)
		}
		id, err := def.RoundID()
		if err != nil {
			return nil, err
		}
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("round %q: %w with %q", def.Name, ErrDuplicateRound, other)
		}
		seen[id] = def.Name

		list = append(list, rounds.Round{ID: id, Name: def.Name, DurationSec: def.DurationSec})
	}
	return list, nil
}

// ErrDuplicateRound is returned when two rounds resolve to the same ID
var ErrDuplicateRound = errors.New("duplicate round id")

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid positive integer")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid boolean")
	}
	return defaultValue
}
