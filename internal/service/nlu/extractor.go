// Package nlu extracts scheduling fields from an utterance with a chat
// model. The model only proposes raw field text; dates and times still go
// through the deterministic parser, and any model failure falls back to the
// rule-based interpreter so a session never depends on the model being up.
package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/voicecal/backend/internal/config"
	scheduleModel "github.com/zhouzirui/voicecal/backend/internal/model/schedule"
	"github.com/zhouzirui/voicecal/backend/internal/normalize"
)

const systemPrompt = `You extract meeting-scheduling fields from one user utterance.
Respond with a single JSON object and nothing else, using exactly these keys:
{"counterpart": "person to meet, or empty", "datetime_text": "the date/time phrase verbatim, or empty", "title": "meeting subject, or empty", "confirmation": "yes|no|cancel|none"}
Never invent values that are not in the utterance.`

// Extractor interprets utterances with a chat model, falling back to the
// rule-based interpreter on any failure.
type Extractor struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	fallback normalize.Interpreter
	timeout  time.Duration
	retries  int
}

// NewExtractor compiles the extraction chain for the configured model.
func NewExtractor(ctx context.Context, cfg config.AIConfig) (*Extractor, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{utterance}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction chain: %w", err)
	}

	retries := cfg.ExtractRetries
	if retries < 1 {
		retries = 1
	}

	return &Extractor{
		chain:    runnable,
		fallback: normalize.Rules{},
		timeout:  cfg.ExtractTimeout,
		retries:  retries,
	}, nil
}

type extractionFields struct {
	Counterpart  string `json:"counterpart"`
	DatetimeText string `json:"datetime_text"`
	Title        string `json:"title"`
	Confirmation string `json:"confirmation"`
}

// Interpret asks the model for fields and maps them onto a slot update.
// ref anchors relative date resolution to session start.
func (e *Extractor) Interpret(ctx context.Context, text string, ref time.Time) normalize.Result {
	fields, err := e.extract(ctx, text)
	if err != nil {
		log.Printf("[nlu] extraction failed, using rules: %v", err)
		return e.fallback.Interpret(ctx, text, ref)
	}

	result := e.mapFields(fields, ref)
	if result.Update.Empty() && result.Intent == scheduleModel.IntentUnknown {
		// The model saw nothing; the rules occasionally do better on
		// short confirmations and bare dates.
		return e.fallback.Interpret(ctx, text, ref)
	}
	return result
}

func (e *Extractor) extract(ctx context.Context, text string) (extractionFields, error) {
	input := map[string]any{
		"system":    systemPrompt,
		"utterance": text,
	}

	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		response, err := e.chain.Invoke(callCtx, input)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		fields, err := parseFields(response.Content)
		if err != nil {
			lastErr = err
			continue
		}
		return fields, nil
	}
	return extractionFields{}, fmt.Errorf("after %d attempts: %w", e.retries, lastErr)
}

func (e *Extractor) mapFields(fields extractionFields, ref time.Time) normalize.Result {
	var update scheduleModel.SlotUpdate

	if fields.DatetimeText != "" {
		parsed := normalize.Interpret(fields.DatetimeText, ref)
		update.Date = parsed.Update.Date
		update.Time = parsed.Update.Time
	}
	if name := normalize.ValidName(fields.Counterpart); name != "" {
		update.Counterpart = &name
	}
	if title := normalize.ValidTitle(fields.Title); title != "" {
		update.Title = &title
	}

	intent := scheduleModel.IntentUnknown
	switch strings.ToLower(strings.TrimSpace(fields.Confirmation)) {
	case "yes":
		intent = scheduleModel.IntentConfirm
	case "no":
		intent = scheduleModel.IntentDeny
	case "cancel":
		intent = scheduleModel.IntentCancel
	default:
		if !update.Empty() {
			intent = scheduleModel.IntentProvideInfo
		}
	}

	return normalize.Result{Update: update, Intent: intent}
}

// parseFields decodes the model output, salvaging the first JSON object when
// the model wraps it in prose.
func parseFields(content string) (extractionFields, error) {
	var fields extractionFields
	if err := json.Unmarshal([]byte(content), &fields); err == nil {
		return fields, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &fields); err == nil {
			return fields, nil
		}
	}
	return extractionFields{}, fmt.Errorf("no JSON object in model output: %q", truncate(content))
}

func truncate(s string) string {
	const limit = 120
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
