package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"github.com/tacint/sparrow/internal/pkg/analysis"
	"github.com/tacint/sparrow/internal/pkg/persistence"
	"github.com/tacint/sparrow/internal/pkg/transcript"
	"github.com/tacint/sparrow/internal/pkg/translator"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return to[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertBatch(ctx context.Context, req *persistence.BatchData) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *DB) LoadBatch(ctx context.Context, id string) (*persistence.BatchData, error) {
	args := m.Called(ctx, id)
	return to[*persistence.BatchData](args.Get(0)), args.Error(1)
}

func (m *DB) InsertStatus(ctx context.Context, item *persistence.Status) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LoadStatus(ctx context.Context, id string) (*persistence.Status, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Status](args.Get(0)), args.Error(1)
}

func (m *DB) LoadBatchStatuses(ctx context.Context, batchID string) ([]*persistence.Status, error) {
	args := m.Called(ctx, batchID)
	return to[[]*persistence.Status](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateStatus(ctx context.Context, item *persistence.Status) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	args := m.Called(ctx, id, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	args := m.Called(ctx, id, msgType, value)
	return args.Error(0)
}

func (m *DB) ListAnalyses(ctx context.Context) []*persistence.Analysis {
	args := m.Called(ctx)
	return to[[]*persistence.Analysis](args.Get(0))
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg interface{}, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Transcriber is transcription client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Transcribe(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

// Diarizer is diarization client mock
type Diarizer struct{ mock.Mock }

func (m *Diarizer) Diarize(ctx context.Context, name string, data []byte) ([]transcript.Utterance, error) {
	args := m.Called(ctx, name, data)
	return to[[]transcript.Utterance](args.Get(0)), args.Error(1)
}

// Translator is LLM translation mock
type Translator struct{ mock.Mock }

func (m *Translator) Translate(ctx context.Context, prompt string) (*translator.Result, error) {
	args := m.Called(ctx, prompt)
	return to[*translator.Result](args.Get(0)), args.Error(1)
}

// Extractor is LLM structured extraction mock
type Extractor struct{ mock.Mock }

func (m *Extractor) Extract(ctx context.Context, text string) (*analysis.ConversationAnalysis, error) {
	args := m.Called(ctx, text)
	return to[*analysis.ConversationAnalysis](args.Get(0)), args.Error(1)
}

// AnalysisWriter is analysis persistence mock
type AnalysisWriter struct{ mock.Mock }

func (m *AnalysisWriter) InsertAnalysis(ctx context.Context, item *persistence.Analysis) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

// StepStore is pipeline step persistence mock
type StepStore struct{ mock.Mock }

func (m *StepStore) SaveStepOutput(ctx context.Context, id, stepName string, output []byte) error {
	args := m.Called(ctx, id, stepName, output)
	return args.Error(0)
}

func (m *StepStore) LoadStepOutputs(ctx context.Context, id string) (map[string][]byte, error) {
	args := m.Called(ctx, id)
	return to[map[string][]byte](args.Get(0)), args.Error(1)
}

// To casts a mock arg allowing nil value
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}

func to[T interface{}](val interface{}) T {
	return To[T](val)
}
