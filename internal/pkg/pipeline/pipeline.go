package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/tacint/sparrow/internal/pkg/analysis"
	"github.com/tacint/sparrow/internal/pkg/persistence"
	"github.com/tacint/sparrow/internal/pkg/step"
	"github.com/tacint/sparrow/internal/pkg/transcript"
	"github.com/tacint/sparrow/internal/pkg/translator"
)

// Transcriber converts audio to text
type Transcriber interface {
	Transcribe(ctx context.Context, name string, data []byte) (string, error)
}

// Diarizer splits audio into speaker attributed utterances
type Diarizer interface {
	Diarize(ctx context.Context, name string, data []byte) ([]transcript.Utterance, error)
}

// Translator translates text to English
type Translator interface {
	Translate(ctx context.Context, prompt string) (*translator.Result, error)
}

// Extractor turns a conversation into a structured analysis
type Extractor interface {
	Extract(ctx context.Context, text string) (*analysis.ConversationAnalysis, error)
}

// AnalysisWriter persists the final analysis record
type AnalysisWriter interface {
	InsertAnalysis(ctx context.Context, item *persistence.Analysis) error
}

// StepStore keeps outputs of completed steps for resume after redelivery
type StepStore interface {
	SaveStepOutput(ctx context.Context, id, stepName string, output []byte) error
	LoadStepOutputs(ctx context.Context, id string) (map[string][]byte, error)
}

// Timeouts configures per step time limits
type Timeouts struct {
	Transcribe time.Duration
	Translate  time.Duration
	Diarize    time.Duration
	Extract    time.Duration
	Persist    time.Duration
}

const defaultStepTimeout = 2 * time.Minute

func orDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultStepTimeout
}

// Step names as persisted in the step store
const (
	StepTranscribe = "transcribe"
	StepTranslate  = "translate"
	StepDiarize    = "diarize"
	StepTranslate2 = "translate2"
	StepExtract    = "extract"
	StepPersist    = "persist"
)

// Runner drives the audio analysis pipeline for one file
type Runner struct {
	transcriber Transcriber
	diarizer    Diarizer
	translator  Translator
	extractor   Extractor
	writer      AnalysisWriter
	steps       StepStore
	timeouts    Timeouts
}

// Data is the pipeline configuration
type Data struct {
	Transcriber    Transcriber
	Diarizer       Diarizer
	Translator     Translator
	Extractor      Extractor
	AnalysisWriter AnalysisWriter
	StepStore      StepStore
	Timeouts       Timeouts
}

// NewRunner creates the pipeline runner
func NewRunner(data *Data) (*Runner, error) {
	if data.Transcriber == nil {
		return nil, fmt.Errorf("no transcriber")
	}
	if data.Diarizer == nil {
		return nil, fmt.Errorf("no diarizer")
	}
	if data.Translator == nil {
		return nil, fmt.Errorf("no translator")
	}
	if data.Extractor == nil {
		return nil, fmt.Errorf("no extractor")
	}
	if data.AnalysisWriter == nil {
		return nil, fmt.Errorf("no analysis writer")
	}
	if data.StepStore == nil {
		return nil, fmt.Errorf("no step store")
	}
	res := &Runner{transcriber: data.Transcriber, diarizer: data.Diarizer,
		translator: data.Translator, extractor: data.Extractor,
		writer: data.AnalysisWriter, steps: data.StepStore, timeouts: data.Timeouts}
	return res, nil
}

// Result collects outputs of all pipeline steps
type Result struct {
	Transcription      string
	Translation        string
	Utterances         []transcript.Utterance
	CombinedTranscript string
	Translation2       string
	Analysis           *analysis.ConversationAnalysis
}

// Run executes all pipeline steps for one file in order.
// Steps already completed during a previous delivery of the same job are
// skipped using the step store
func (r *Runner) Run(ctx context.Context, id, fileName string, data []byte) (*Result, error) {
	saved, err := r.steps.LoadStepOutputs(ctx, id)
	if err != nil {
		goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't load completed steps - redo all")
		saved = map[string][]byte{}
	}
	res := &Result{}

	res.Transcription, err = runStep(ctx, r, id, StepTranscribe, saved, orDefault(r.timeouts.Transcribe),
		func(sCtx context.Context) (string, error) {
			return r.transcriber.Transcribe(sCtx, fileName, data)
		})
	if err != nil {
		return nil, err
	}

	res.Translation, err = runStep(ctx, r, id, StepTranslate, saved, orDefault(r.timeouts.Translate),
		func(sCtx context.Context) (string, error) {
			tr, err := r.translator.Translate(sCtx, translator.MakePrompt(res.Transcription))
			if err != nil {
				return "", err
			}
			return tr.Content, nil
		})
	if err != nil {
		return nil, err
	}

	res.Utterances, err = runStep(ctx, r, id, StepDiarize, saved, orDefault(r.timeouts.Diarize),
		func(sCtx context.Context) ([]transcript.Utterance, error) {
			return r.diarizer.Diarize(sCtx, fileName, data)
		})
	if err != nil {
		return nil, err
	}
	res.CombinedTranscript = transcript.Combine(res.Utterances)

	res.Translation2, err = runStep(ctx, r, id, StepTranslate2, saved, orDefault(r.timeouts.Translate),
		func(sCtx context.Context) (string, error) {
			tr, err := r.translator.Translate(sCtx,
				translator.MakePrompt(translator.FormatConversation(res.CombinedTranscript)))
			if err != nil {
				return "", err
			}
			return tr.Content, nil
		})
	if err != nil {
		return nil, err
	}

	res.Analysis, err = runStep(ctx, r, id, StepExtract, saved, orDefault(r.timeouts.Extract),
		func(sCtx context.Context) (*analysis.ConversationAnalysis, error) {
			return r.extractor.Extract(sCtx, res.Translation2)
		})
	if err != nil {
		return nil, err
	}
	checkAnalysis(id, res)

	_, err = runStep(ctx, r, id, StepPersist, saved, orDefault(r.timeouts.Persist),
		func(sCtx context.Context) (*persistence.Analysis, error) {
			rec, err := toRecord(id, res.Analysis)
			if err != nil {
				return nil, err
			}
			if err := r.writer.InsertAnalysis(sCtx, rec); err != nil {
				return nil, err
			}
			return rec, nil
		})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// checkAnalysis compares the extracted record against the diarized audio.
// The record is the model's assessment, a mismatch is logged, never failed
func checkAnalysis(id string, res *Result) {
	if speakerMismatch(res.Utterances, res.Analysis) {
		goapp.Log.Warn().Str("ID", id).Strs("diarized", transcript.Speakers(res.Utterances)).
			Strs("extracted", res.Analysis.Speakers).Msg("speaker mismatch")
	}
	goapp.Log.Info().Str("ID", id).Dur("audio", transcript.Duration(res.Utterances)).
		Str("estimated", res.Analysis.ConversationDuration).Msg("conversation duration")
}

// speakerMismatch reports whether the extracted speaker list disagrees with
// the diarized one. Labels differ between the two (the extractor sees
// translated text), so only the count is compared
func speakerMismatch(utts []transcript.Utterance, item *analysis.ConversationAnalysis) bool {
	return len(transcript.Speakers(utts)) != len(item.Speakers)
}

func toRecord(id string, item *analysis.ConversationAnalysis) (*persistence.Analysis, error) {
	at, err := analysis.ParseAnalyzedAt(item.AnalyzedAt)
	if err != nil {
		return nil, fmt.Errorf("can't parse analyzed_at: %w", err)
	}
	return &persistence.Analysis{
		FileID:                 id,
		PriorityLevel:          item.PriorityLevel,
		RiskAssessment:         item.RiskAssessment,
		KeyInsights:            item.KeyInsights,
		CriticalEntities:       item.CriticalEntities,
		LocationsMentioned:     item.LocationsMentioned,
		SentimentSummary:       item.SentimentSummary,
		SourceReliability:      item.SourceReliability,
		InformationCredibility: item.InformationCredibility,
		RecommendedActions:     item.RecommendedActions,
		EntityRelationships:    item.EntityRelationships,
		Speakers:               item.Speakers,
		ConversationDuration:   item.ConversationDuration,
		AnalyzedAt:             at,
	}, nil
}

func runStep[O any](ctx context.Context, r *Runner, id, name string, saved map[string][]byte,
	timeout time.Duration, fn func(context.Context) (O, error)) (O, error) {
	if data, ok := saved[name]; ok {
		var res O
		if err := json.Unmarshal(data, &res); err == nil {
			goapp.Log.Info().Str("ID", id).Str("step", name).Msg("skip completed step")
			return res, nil
		}
		goapp.Log.Warn().Str("ID", id).Str("step", name).Msg("can't decode saved output - redo")
	}
	res, err := step.Run(ctx, name, timeout, fn)
	if err != nil {
		return res, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return res, step.NewError(name, err)
	}
	if err := r.steps.SaveStepOutput(ctx, id, name, data); err != nil {
		return res, step.NewError(name, err)
	}
	return res, nil
}
