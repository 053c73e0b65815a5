package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voicecal/backend/internal/config"
	"github.com/zhouzirui/voicecal/backend/internal/handler"
	"github.com/zhouzirui/voicecal/backend/internal/normalize"
	"github.com/zhouzirui/voicecal/backend/internal/service/calendar"
	"github.com/zhouzirui/voicecal/backend/internal/service/identity"
	"github.com/zhouzirui/voicecal/backend/internal/service/nlu"
	"github.com/zhouzirui/voicecal/backend/internal/service/session"
	"github.com/zhouzirui/voicecal/backend/internal/service/speech"
	"github.com/zhouzirui/voicecal/backend/internal/service/speech/deepgram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	verifier := identity.NewClient(cfg.Identity.VerifyURL, cfg.Identity.Timeout)
	backend := calendar.NewClient(cfg.Calendar.BaseURL, cfg.Calendar.CalendarID, cfg.Calendar.Timeout)

	// The interpreter is LLM-backed when model credentials are present and
	// rule-based otherwise; the LLM path itself falls back to rules per turn.
	var interpreter normalize.Interpreter = normalize.Rules{}
	if cfg.AI.Enabled() {
		extractor, err := nlu.NewExtractor(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize slot extractor: %v", err)
			log.Println("continuing with rule-based interpretation only")
		} else {
			interpreter = extractor
			log.Println("LLM slot extractor initialized successfully")
		}
	} else {
		log.Println("model credentials not configured, using rule-based interpretation")
	}

	var recognizer speech.Recognizer
	var synthesizer speech.Synthesizer
	if cfg.Speech.Enabled {
		recognizer = deepgram.NewSTTClient(cfg.Speech.APIKey, cfg.Speech.STTModel, cfg.Speech.Language, "")
		synthesizer = deepgram.NewTTSClient(cfg.Speech.APIKey, cfg.Speech.TTSVoice, "", 30*time.Second)
		log.Println("Deepgram speech clients initialized successfully")
	} else {
		log.Println("speech credentials not configured, sessions run text-only")
	}

	sessions := session.NewManager(interpreter, verifier, backend, session.Config{
		Location:          cfg.Session.Location(),
		MaxExecuteRetries: cfg.Calendar.MaxRetries,
	})

	router := handler.NewRouter(sessions, recognizer, synthesizer, cfg.Session.IdleTimeout)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("VoiceCal backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
