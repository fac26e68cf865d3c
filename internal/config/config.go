// Package config provides configuration management for the companion core
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Audio      AudioConfig      `mapstructure:"audio"`
	LipSync    LipSyncConfig    `mapstructure:"lipsync"`
	Expression ExpressionConfig `mapstructure:"expression"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Chat       ChatConfig       `mapstructure:"chat"`
	History    HistoryConfig    `mapstructure:"history"`
	Render     RenderConfig     `mapstructure:"render"`
}

// AudioConfig tunes the spectrum analyzer feeding lip-sync
type AudioConfig struct {
	SampleRate       int     `mapstructure:"sample_rate"`
	FFTSize          int     `mapstructure:"fft_size"`
	BlockSize        int     `mapstructure:"block_size"`
	Smoothing        float64 `mapstructure:"smoothing"`         // analyser smoothing time constant
	VolumeSmoothing  float64 `mapstructure:"volume_smoothing"`  // EMA alpha for the volume envelope
	MinVolume        float64 `mapstructure:"min_volume"`
	MaxVolume        float64 `mapstructure:"max_volume"`
	CalibrationTime  time.Duration `mapstructure:"calibration_time"`
}

// LipSyncConfig tunes viseme classification and mouth blending
type LipSyncConfig struct {
	BrightnessThreshold float64       `mapstructure:"brightness_threshold"`
	FullnessThreshold   float64       `mapstructure:"fullness_threshold"`
	FricativeThreshold  float64       `mapstructure:"fricative_threshold"`
	AttackTime          time.Duration `mapstructure:"attack_time"`
	ReleaseTime         time.Duration `mapstructure:"release_time"`
	MouthGain           float64       `mapstructure:"mouth_gain"` // ceiling for envelope-driven weights
}

// ExpressionConfig tunes emotion blending and idle behavior
type ExpressionConfig struct {
	BlendTau      time.Duration `mapstructure:"blend_tau"`       // time constant for weight ramps
	ReleaseTau    time.Duration `mapstructure:"release_tau"`     // time constant for zeroing old emotions
	BlinkMinGap   time.Duration `mapstructure:"blink_min_gap"`
	BlinkMaxGap   time.Duration `mapstructure:"blink_max_gap"`
	BlinkDuration time.Duration `mapstructure:"blink_duration"`
	WinkDuration  time.Duration `mapstructure:"wink_duration"`
	IdleJitter    bool          `mapstructure:"idle_jitter"`
}

// TTSConfig configures text-to-speech
type TTSConfig struct {
	Provider   string  `mapstructure:"provider"` // elevenlabs, local
	APIKey     string  `mapstructure:"api_key"`
	VoiceID    string  `mapstructure:"voice_id"`
	ModelID    string  `mapstructure:"model_id"`
	Stability  float64 `mapstructure:"stability"`
	Similarity float64 `mapstructure:"similarity_boost"`
	// Local fallback synthesis
	FallbackCommand string `mapstructure:"fallback_command"`
	FallbackRate    int    `mapstructure:"fallback_rate"`
}

// ChatConfig configures the chat completion provider
type ChatConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	SystemPrompt string        `mapstructure:"system_prompt"`
}

// HistoryConfig configures the persistence API client
type HistoryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	UserID  string        `mapstructure:"user_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RenderConfig configures the renderer websocket binding
type RenderConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	TickRate   int    `mapstructure:"tick_rate"` // update loop frequency in Hz
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:      44100,
			FFTSize:         1024,
			BlockSize:       4096,
			Smoothing:       0.4,
			VolumeSmoothing: 0.3,
			MinVolume:       0.05,
			MaxVolume:       0.8,
			CalibrationTime: 2 * time.Second,
		},
		LipSync: LipSyncConfig{
			BrightnessThreshold: 1.5,
			FullnessThreshold:   2.0,
			FricativeThreshold:  100.0 / 255.0,
			AttackTime:          100 * time.Millisecond,
			ReleaseTime:         200 * time.Millisecond,
			MouthGain:           0.8,
		},
		Expression: ExpressionConfig{
			BlendTau:      120 * time.Millisecond,
			ReleaseTau:    60 * time.Millisecond,
			BlinkMinGap:   1 * time.Second,
			BlinkMaxGap:   5 * time.Second,
			BlinkDuration: 200 * time.Millisecond,
			WinkDuration:  300 * time.Millisecond,
			IdleJitter:    true,
		},
		TTS: TTSConfig{
			Provider:        "elevenlabs",
			VoiceID:         "gllMMawbYGTja23oQ3Vu",
			ModelID:         "eleven_monolingual_v1",
			Stability:       0.5,
			Similarity:      0.75,
			FallbackCommand: "espeak-ng",
			FallbackRate:    160,
		},
		Chat: ChatConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-3.5-turbo",
			Temperature:  0.7,
			MaxRetries:   3,
			RetryBackoff: 1 * time.Second,
			SystemPrompt: defaultSystemPrompt,
		},
		History: HistoryConfig{
			BaseURL: "http://localhost:3005/api",
			UserID:  "default-user",
			Timeout: 10 * time.Second,
		},
		Render: RenderConfig{
			ListenAddr: "localhost:8765",
			TickRate:   60,
		},
	}
}

const defaultSystemPrompt = "You are Safa, a sweet and caring virtual companion. " +
	"Speak warmly and naturally, using short sentences and varied replies. " +
	"Express emotions openly: greet with a wave and a smile, be cheerful when happy, " +
	"gentle when sad, curious when thinking, and playful when asked to dance."

// Load reads configuration from ~/.safaavatar/config.yaml, falling back to
// defaults for anything unset. API keys may also come from the environment
// (ELEVENLABS_API_KEY, OPENAI_API_KEY) so they never live in the repo.
func Load() (*Config, *viper.Viper, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve home directory: %w", err)
	}
	configDir := filepath.Join(home, ".safaavatar")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine, defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.TTS.APIKey == "" {
		cfg.TTS.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, v, nil
}

// Watch re-unmarshals the config whenever the file changes and hands the
// fresh copy to onChange. Only tunables should be consumed from reloads;
// listen addresses and credentials are read once at startup.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err == nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.fft_size", d.Audio.FFTSize)
	v.SetDefault("audio.block_size", d.Audio.BlockSize)
	v.SetDefault("audio.smoothing", d.Audio.Smoothing)
	v.SetDefault("audio.volume_smoothing", d.Audio.VolumeSmoothing)
	v.SetDefault("audio.min_volume", d.Audio.MinVolume)
	v.SetDefault("audio.max_volume", d.Audio.MaxVolume)
	v.SetDefault("audio.calibration_time", d.Audio.CalibrationTime)
	v.SetDefault("lipsync.brightness_threshold", d.LipSync.BrightnessThreshold)
	v.SetDefault("lipsync.fullness_threshold", d.LipSync.FullnessThreshold)
	v.SetDefault("lipsync.fricative_threshold", d.LipSync.FricativeThreshold)
	v.SetDefault("lipsync.attack_time", d.LipSync.AttackTime)
	v.SetDefault("lipsync.release_time", d.LipSync.ReleaseTime)
	v.SetDefault("lipsync.mouth_gain", d.LipSync.MouthGain)
	v.SetDefault("expression.blend_tau", d.Expression.BlendTau)
	v.SetDefault("expression.release_tau", d.Expression.ReleaseTau)
	v.SetDefault("expression.blink_min_gap", d.Expression.BlinkMinGap)
	v.SetDefault("expression.blink_max_gap", d.Expression.BlinkMaxGap)
	v.SetDefault("expression.blink_duration", d.Expression.BlinkDuration)
	v.SetDefault("expression.wink_duration", d.Expression.WinkDuration)
	v.SetDefault("expression.idle_jitter", d.Expression.IdleJitter)
	v.SetDefault("tts.provider", d.TTS.Provider)
	v.SetDefault("tts.voice_id", d.TTS.VoiceID)
	v.SetDefault("tts.model_id", d.TTS.ModelID)
	v.SetDefault("tts.stability", d.TTS.Stability)
	v.SetDefault("tts.similarity_boost", d.TTS.Similarity)
	v.SetDefault("tts.fallback_command", d.TTS.FallbackCommand)
	v.SetDefault("tts.fallback_rate", d.TTS.FallbackRate)
	v.SetDefault("chat.base_url", d.Chat.BaseURL)
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.temperature", d.Chat.Temperature)
	v.SetDefault("chat.max_retries", d.Chat.MaxRetries)
	v.SetDefault("chat.retry_backoff", d.Chat.RetryBackoff)
	v.SetDefault("chat.system_prompt", d.Chat.SystemPrompt)
	v.SetDefault("history.base_url", d.History.BaseURL)
	v.SetDefault("history.user_id", d.History.UserID)
	v.SetDefault("history.timeout", d.History.Timeout)
	v.SetDefault("render.listen_addr", d.Render.ListenAddr)
	v.SetDefault("render.tick_rate", d.Render.TickRate)
}
