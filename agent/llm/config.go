package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
	openrouterx "github.com/wiroonsak/accountiq/pkg/openrouter"
)

// Role names the LLM-backed jobs in the pipeline; each can run on its own
// model and temperature.
type Role string

const (
	RoleClassifier Role = "classifier"
	RoleSQLGen     Role = "sqlgen"
	RoleGraphGen   Role = "graphgen"
	RoleAnswer     Role = "answer"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	EmbeddingModel     string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ClassifierModel       string  `envconfig:"CLASSIFIER_MODEL" split_words:"true"`
	SQLGenModel           string  `envconfig:"SQLGEN_MODEL" split_words:"true"`
	GraphGenModel         string  `envconfig:"GRAPHGEN_MODEL" split_words:"true"`
	AnswerModel           string  `envconfig:"ANSWER_MODEL" split_words:"true"`
	ClassifierTemperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" split_words:"true" default:"-1"`
	SQLGenTemperature     float32 `envconfig:"SQLGEN_TEMPERATURE" split_words:"true" default:"-1"`
	GraphGenTemperature   float32 `envconfig:"GRAPHGEN_TEMPERATURE" split_words:"true" default:"-1"`
	AnswerTemperature     float32 `envconfig:"ANSWER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// ModelFor returns the model name serving a role, falling back to the
// process-wide default.
func (c Config) ModelFor(role Role) string {
	modelName := strings.TrimSpace(c.Model)
	switch role {
	case RoleClassifier:
		if v := strings.TrimSpace(c.ClassifierModel); v != "" {
			modelName = v
		}
	case RoleSQLGen:
		if v := strings.TrimSpace(c.SQLGenModel); v != "" {
			modelName = v
		}
	case RoleGraphGen:
		if v := strings.TrimSpace(c.GraphGenModel); v != "" {
			modelName = v
		}
	case RoleAnswer:
		if v := strings.TrimSpace(c.AnswerModel); v != "" {
			modelName = v
		}
	}
	return modelName
}

// OpenRouterFor maps a role onto an OpenRouter client config.
func (c Config) OpenRouterFor(role Role) openrouterx.OpenRouterConfig {
	temp := c.Temperature
	switch role {
	case RoleClassifier:
		if c.ClassifierTemperature >= 0 {
			temp = c.ClassifierTemperature
		}
	case RoleSQLGen:
		if c.SQLGenTemperature >= 0 {
			temp = c.SQLGenTemperature
		}
	case RoleGraphGen:
		if c.GraphGenTemperature >= 0 {
			temp = c.GraphGenTemperature
		}
	case RoleAnswer:
		if c.AnswerTemperature >= 0 {
			temp = c.AnswerTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.OpenRouterConfig{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              c.ModelFor(role),
		EmbeddingModel:     strings.TrimSpace(c.EmbeddingModel),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
