// safaavatar runs the companion core: it reads user text on stdin, talks
// to the chat model, and drives a renderer over websocket with morph
// frames, animation clips and synthesized speech lip-sync.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/abubokkor/safaavatar/internal/audio"
	"github.com/abubokkor/safaavatar/internal/bus"
	"github.com/abubokkor/safaavatar/internal/chat"
	"github.com/abubokkor/safaavatar/internal/config"
	"github.com/abubokkor/safaavatar/internal/dsp"
	"github.com/abubokkor/safaavatar/internal/expression"
	"github.com/abubokkor/safaavatar/internal/history"
	"github.com/abubokkor/safaavatar/internal/logging"
	"github.com/abubokkor/safaavatar/internal/morph"
	"github.com/abubokkor/safaavatar/internal/render"
	"github.com/abubokkor/safaavatar/internal/speech"
	"github.com/abubokkor/safaavatar/internal/tts"
	"github.com/abubokkor/safaavatar/internal/viseme"
)

// loadEnvFile loads API keys from ~/.safaavatar/.env into the process
// environment without overriding variables already set.
func loadEnvFile() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}

	file, err := os.Open(filepath.Join(home, ".safaavatar", ".env"))
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// app holds the wired components for the run loop and the REPL.
type app struct {
	logger      zerolog.Logger
	cfg         atomic.Pointer[config.Config]
	events      *bus.EventBus
	analyzer    *dsp.Analyzer
	engine      *expression.Engine
	blinker     *expression.Blinker
	lips        *viseme.Controller
	coordinator *speech.Coordinator
	companion   *speech.Companion
	render      *render.Server
	history     *history.Client
	conv        *chat.Conversation

	setupMode bool
}

// runLoop is the fixed-tick heart of the avatar: expression blending,
// blink/wink, lip-sync and frame broadcast. Layer order is fixed —
// expression first, then ambient eyes, then mouth — with additive
// accumulation clamped per target.
func (a *app) runLoop(ctx context.Context) {
	cfg := a.cfg.Load()
	tickRate := cfg.Render.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}

	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	last := time.Now()
	var frame morph.Weights
	lastClass := viseme.ClassNeutral

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			lipCfg := a.cfg.Load().LipSync

			frame.Reset()
			a.engine.Update(dt, &frame)

			speaking := a.coordinator.Speaking()
			a.blinker.SetSpeaking(speaking)
			a.blinker.Update(dt, &frame)

			snap := a.analyzer.Snapshot()
			class := viseme.Classify(snap.Bands, snap.SmoothedVolume, snap.MinVolume, lipCfg)
			a.lips.Observe(class)
			if class != lastClass {
				lastClass = class
				a.events.Publish(bus.Event{Type: bus.EventTypeVisemeChanged, Data: map[string]any{
					"class": class.String(),
				}})
			}

			envelope := float32(dsp.MouthWeightFor(snap.SmoothedVolume, snap.MinVolume, snap.MaxVolume, 1))
			frame.Accumulate(morph.JawOpen, float32(dsp.MouthWeightFor(snap.SmoothedVolume, snap.MinVolume, snap.MaxVolume, lipCfg.MouthGain)))
			a.lips.Update(dt, &frame, envelope)

			a.render.BroadcastFrame(frame.ToMap())
		}
	}
}

// repl reads user text from stdin. Lines starting with '/' are commands;
// everything else goes through the companion pipeline.
func (a *app) repl(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("safaavatar ready. Type to talk, /help for commands.")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := a.command(ctx, line); quit {
				return
			}
			continue
		}

		reply := a.companion.Respond(ctx, line)
		fmt.Printf("safa> %s\n", reply)
	}
}

func (a *app) command(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/stop":
		a.companion.Interrupt()

	case "/wink":
		side := expression.WinkLeft
		if len(args) > 0 && args[0] == "right" {
			side = expression.WinkRight
		}
		a.blinker.TriggerWink(side)

	case "/setup":
		// Toggle manual posing: expression blending suspends so a renderer
		// can adjust morph targets without the engine fighting back.
		a.setupMode = !a.setupMode
		a.engine.SetSetupMode(a.setupMode)
		fmt.Printf("setup mode %v\n", a.setupMode)

	case "/resume":
		if a.history == nil || len(args) == 0 {
			fmt.Println("usage: /resume <conversation-id>")
			return false
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Println("usage: /resume <conversation-id>")
			return false
		}
		a.resumeConversation(ctx, id)

	case "/search":
		if a.history == nil || len(args) == 0 {
			fmt.Println("usage: /search <term>")
			return false
		}
		hits, err := a.history.Search(ctx, strings.Join(args, " "))
		if err != nil {
			a.logger.Warn().Err(err).Msg("search failed")
			return false
		}
		for _, h := range hits {
			fmt.Printf("[%d] %s: %s\n", h.ConversationID, h.Title, h.Content)
		}

	case "/help":
		fmt.Println("/stop  /wink [right]  /setup  /resume <id>  /search <term>  /quit")

	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	return false
}

// resumeConversation reloads a stored conversation into the live chat
// history, so the assistant remembers it.
func (a *app) resumeConversation(ctx context.Context, id int64) {
	msgs, err := a.history.Messages(ctx, id)
	if err != nil {
		a.logger.Warn().Err(err).Int64("conversationID", id).Msg("loading conversation failed")
		return
	}
	a.conv.Seed(history.ToChatMessages(msgs))
	a.companion.SetConversationID(id)
	fmt.Printf("resumed conversation %d (%d messages)\n", id, len(msgs))
}

func main() {
	loadEnvFile()

	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	syslog, err := logging.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer syslog.Close()

	logger := syslog.Base()
	logger.Info().Str("logFile", syslog.Path()).Msg("safaavatar starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &app{
		logger: syslog.Component("main"),
		events: bus.NewEventBus(),
	}
	a.cfg.Store(cfg)

	// Faces and mouth.
	a.analyzer = dsp.NewAnalyzer(cfg.Audio)
	a.engine = expression.NewEngine(cfg.Expression, logger)
	a.blinker = expression.NewBlinker(cfg.Expression, time.Now().UnixNano())
	a.lips = viseme.NewController(cfg.LipSync)

	// Voice.
	elevenLabs := tts.NewElevenLabsProvider(logger, &tts.ElevenLabsConfig{
		APIKey:       cfg.TTS.APIKey,
		DefaultVoice: cfg.TTS.VoiceID,
		ModelID:      cfg.TTS.ModelID,
		Stability:    cfg.TTS.Stability,
		Similarity:   cfg.TTS.Similarity,
	})
	local := tts.NewLocalProvider(logger, &tts.LocalConfig{
		Command: cfg.TTS.FallbackCommand,
		Rate:    cfg.TTS.FallbackRate,
	})
	var chain *tts.Chain
	if cfg.TTS.Provider == "local" {
		chain = tts.NewChain(logger, local, elevenLabs)
	} else {
		chain = tts.NewChain(logger, elevenLabs, local)
	}

	player := audio.NewPlayer(cfg.Audio.BlockSize, logger)
	a.coordinator = speech.NewCoordinator(logger, a.events, chain, a.analyzer, player, speech.Options{
		SettleDelay:     250 * time.Millisecond,
		CalibrationTime: cfg.Audio.CalibrationTime,
		BlockSize:       cfg.Audio.BlockSize,
	})

	// Renderer binding.
	a.render = render.NewServer(logger)
	if err := a.render.Start(ctx, cfg.Render.ListenAddr); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Render.ListenAddr).Msg("render server failed to start")
	}

	a.render.BindSpeechEvents(a.events)

	// Conversation.
	chatClient := chat.NewClient(logger, chat.Config{
		BaseURL:      cfg.Chat.BaseURL,
		APIKey:       cfg.Chat.APIKey,
		Model:        cfg.Chat.Model,
		Temperature:  cfg.Chat.Temperature,
		MaxRetries:   cfg.Chat.MaxRetries,
		RetryBackoff: cfg.Chat.RetryBackoff,
	})
	a.conv = chat.NewConversation(cfg.Chat.SystemPrompt, 40)

	var recorder speech.Recorder
	if cfg.History.BaseURL != "" {
		a.history = history.NewClient(logger, history.Config{
			BaseURL: cfg.History.BaseURL,
			UserID:  cfg.History.UserID,
			Timeout: cfg.History.Timeout,
		})
		recorder = a.history
	}

	a.companion = speech.NewCompanion(logger, a.events, chatClient, a.conv, a.engine, a.render, a.coordinator, recorder)

	// Best effort: open a fresh conversation for this session.
	if a.history != nil {
		startCtx, done := context.WithTimeout(ctx, 5*time.Second)
		id, err := a.history.CreateConversation(startCtx, "", history.NewTopicID())
		done()
		if err != nil {
			logger.Warn().Err(err).Msg("history unavailable, running without persistence")
		} else {
			a.companion.SetConversationID(id)
			a.events.Publish(bus.Event{Type: bus.EventTypeConversationCreated, Data: map[string]any{
				"conversationID": id,
			}})
		}
	}

	// Live reload of tunables.
	config.Watch(v, func(updated *config.Config) {
		a.cfg.Store(updated)
		logger.Info().Msg("configuration reloaded")
	})

	go a.runLoop(ctx)

	// Shut down cleanly on SIGINT/SIGTERM or /quit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	replDone := make(chan struct{})
	go func() {
		a.repl(ctx)
		close(replDone)
	}()

	select {
	case <-sigCh:
	case <-replDone:
	}

	logger.Info().Msg("shutting down")
	cancel()
	a.coordinator.StopSpeaking()
	a.render.Stop()
}
