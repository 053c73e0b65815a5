// Command voicetester exercises the Deepgram speech clients from the shell:
// transcribe an audio file or synthesize a phrase without starting the server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voicecal/backend/internal/config"
	"github.com/zhouzirui/voicecal/backend/internal/service/speech/deepgram"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if !cfg.Speech.Enabled {
		log.Fatal("speech is not configured; set DEEPGRAM_API_KEY first")
	}

	mode := flag.String("mode", "", "test mode: stt or tts")
	audioPath := flag.String("audio", "", "input audio file for stt")
	text := flag.String("text", "", "input text for tts")
	outputPath := flag.String("out", "reply.mp3", "output audio file for tts")
	voice := flag.String("voice", "", "tts voice, defaults to the configured one")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "stt":
		runSTT(ctx, cfg, *audioPath)
	case "tts":
		runTTS(ctx, cfg, *voice, *text, *outputPath, *timeout)
	default:
		flag.Usage()
		log.Fatal("specify -mode=stt or -mode=tts")
	}
}

func runSTT(ctx context.Context, cfg *config.Config, audioPath string) {
	if audioPath == "" {
		log.Fatal("stt mode requires -audio")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("failed to read audio file: %v", err)
	}

	client := deepgram.NewSTTClient(cfg.Speech.APIKey, cfg.Speech.STTModel, cfg.Speech.Language, "")

	start := time.Now()
	transcript, err := client.Recognize(ctx, audio)
	if err != nil {
		log.Fatalf("recognition failed: %v", err)
	}

	log.Printf("recognized in %s (%d bytes in)", time.Since(start).Round(time.Millisecond), len(audio))
	log.Printf("transcript: %s", transcript)
}

func runTTS(ctx context.Context, cfg *config.Config, voice, text, outputPath string, timeout time.Duration) {
	if text == "" {
		log.Fatal("tts mode requires -text")
	}
	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}

	client := deepgram.NewTTSClient(cfg.Speech.APIKey, voice, "", timeout)

	start := time.Now()
	audio, err := client.Synthesize(ctx, text)
	if err != nil {
		log.Fatalf("synthesis failed: %v", err)
	}

	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatalf("failed to write output file: %v", err)
	}
	log.Printf("synthesized in %s: %d bytes of %s written to %s",
		time.Since(start).Round(time.Millisecond), len(audio), client.Format(), outputPath)
}
