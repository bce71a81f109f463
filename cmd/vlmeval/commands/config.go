package commands

import (
	"errors"

	"github.com/spf13/viper"
)

type Config struct {
	Shots        []int   `mapstructure:"shots"`
	NumTrials    int     `mapstructure:"num_trials"`
	TrialSeeds   []int64 `mapstructure:"trial_seeds"`
	NumSamples   int     `mapstructure:"num_samples"`
	QuerySetSize int     `mapstructure:"query_set_size"`
	BatchSize    int     `mapstructure:"batch_size"`

	Provider  string `mapstructure:"provider"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	LogDir    string `mapstructure:"log_dir"`
	LogFormat string `mapstructure:"log_format"`
	CacheDir  string `mapstructure:"cache_dir"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	Model     ModelConfig     `mapstructure:"model"`
	Server    ServerConfig    `mapstructure:"server"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`

	Coco     CaptionTaskConfig        `mapstructure:"coco"`
	Flickr   CaptionTaskConfig        `mapstructure:"flickr"`
	VQAv2    VQATaskConfig            `mapstructure:"vqav2"`
	OKVQA    VQATaskConfig            `mapstructure:"ok_vqa"`
	ImageNet ClassificationTaskConfig `mapstructure:"imagenet"`
}

type ModelConfig struct {
	Name          string  `mapstructure:"name"`
	MaxNewTokens  int     `mapstructure:"max_new_tokens"`
	NumBeams      int     `mapstructure:"num_beams"`
	LengthPenalty float64 `mapstructure:"length_penalty"`
}

type ServerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffMillis  int    `mapstructure:"backoff_millis"`
}

type OpenAIConfig struct {
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffMillis  int    `mapstructure:"backoff_millis"`
}

type AnthropicConfig struct {
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffMillis  int    `mapstructure:"backoff_millis"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

type GeminiConfig struct {
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffMillis  int    `mapstructure:"backoff_millis"`
}

type CaptionTaskConfig struct {
	TrainImageDir   string   `mapstructure:"train_image_dir"`
	ValImageDir     string   `mapstructure:"val_image_dir"`
	AnnotationsPath string   `mapstructure:"annotations_path"`
	ScorerPath      string   `mapstructure:"scorer_path"`
	ScorerArgs      []string `mapstructure:"scorer_args"`
	ScorerKey       string   `mapstructure:"scorer_key"`
}

type VQATaskConfig struct {
	TrainImageDir        string   `mapstructure:"train_image_dir"`
	TestImageDir         string   `mapstructure:"test_image_dir"`
	TrainQuestionsPath   string   `mapstructure:"train_questions_path"`
	TrainAnnotationsPath string   `mapstructure:"train_annotations_path"`
	TestQuestionsPath    string   `mapstructure:"test_questions_path"`
	TestAnnotationsPath  string   `mapstructure:"test_annotations_path"`
	ImagePrefix          string   `mapstructure:"image_prefix"`
	TestImagePrefix      string   `mapstructure:"test_image_prefix"`
	ScorerPath           string   `mapstructure:"scorer_path"`
	ScorerArgs           []string `mapstructure:"scorer_args"`
	ScorerKey            string   `mapstructure:"scorer_key"`
}

type ClassificationTaskConfig struct {
	TrainRoot string `mapstructure:"train_root"`
	ValRoot   string `mapstructure:"val_root"`
	Budget    int    `mapstructure:"budget"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".vlmeval")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
