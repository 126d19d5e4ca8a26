package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/tacint/sparrow/internal/pkg/messages"
	"github.com/tacint/sparrow/internal/pkg/persistence"
	"github.com/tacint/sparrow/internal/pkg/pipeline"
	"github.com/tacint/sparrow/internal/pkg/status"
	"github.com/tacint/sparrow/internal/pkg/step"
	"github.com/tacint/sparrow/internal/pkg/utils"
	"github.com/tacint/sparrow/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(ctx context.Context, message interface{}, name string) error
}

// DB provides persistence functionality
type DB interface {
	LoadBatch(ctx context.Context, id string) (*persistence.BatchData, error)
	InsertStatus(ctx context.Context, item *persistence.Status) error
	LoadStatus(ctx context.Context, id string) (*persistence.Status, error)
	LoadBatchStatuses(ctx context.Context, batchID string) ([]*persistence.Status, error)
	UpdateStatus(ctx context.Context, item *persistence.Status) error
}

// Filer loads audio and stores analysis results
type Filer interface {
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// Runner drives the per-file pipeline
type Runner interface {
	Run(ctx context.Context, id, fileName string, data []byte) (*pipeline.Result, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Filer       Filer
	Runner      Runner
	Testing     bool
}

const (
	wrkQueuePrefix = messages.Work + ":"
	wrkFile        = wrkQueuePrefix + "file"
	wrkFail        = wrkQueuePrefix + "fail"

	maxFileRetries = 3
)

// StartWorkerService starts the event queue listener service to listen for events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.Batch: handler.Create(data, handleBatch, handler.DefaultOpts[messages.BatchMessage]().
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		wrkFile: handler.Create(data, handleFile, handler.DefaultOpts[messages.FileMessage]().
			WithFailure(makeFailureHandler(data)).WithTimeout(time.Minute*30).
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		wrkFail: handler.Create(data, handleFailure, handler.DefaultOpts[messages.FileMessage]().
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Work),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("sparrow-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

// handleBatch fans one uploaded batch out into per-file pipeline jobs.
// File IDs are derived from the batch ID and file index, so a redelivered
// batch message produces the same jobs again without duplicating work
func handleBatch(ctx context.Context, m *messages.BatchMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling batch")
	err := data.MsgSender.SendMessage(ctx, amessages.InformMessage{
		QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
		Type:         amessages.InformTypeStarted, At: time.Now()}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("load batch")
	batch, err := data.DB.LoadBatch(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load batch: %w", err)
	}
	for i, f := range batch.FileNames {
		fileID := makeFileID(batch.ID, i)
		err := data.DB.InsertStatus(ctx, &persistence.Status{ID: fileID, BatchID: batch.ID,
			FileName: f, Status: status.Uploaded.String(), Created: time.Now()})
		if err != nil {
			return fmt.Errorf("can't insert status: %w", err)
		}
		err = data.MsgSender.SendMessage(ctx, &messages.FileMessage{
			QueueMessage: amessages.QueueMessage{ID: fileID},
			BatchID:      batch.ID, FileName: f}, wrkFile)
		if err != nil {
			return fmt.Errorf("can't send msg: %w", err)
		}
	}
	goapp.Log.Info().Str("ID", m.ID).Int("files", len(batch.FileNames)).Msg("batch fan-out completed")
	return nil
}

func makeFileID(batchID string, i int) string {
	return fmt.Sprintf("%s_%d", batchID, i)
}

var errBadInput = errors.New("bad input")

// handleFile runs the full analysis pipeline for one audio file
func handleFile(ctx context.Context, m *messages.FileMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("file", m.FileName).Msg("handling file")
	statusRec, err := data.DB.LoadStatus(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load status: %w", err)
	}
	if status.From(statusRec.Status) == status.Completed {
		goapp.Log.Info().Str("ID", m.ID).Msg("already completed - skip")
		return nil
	}
	statusRec.Status = status.Working.String()
	if err := data.DB.UpdateStatus(ctx, statusRec); err != nil {
		return fmt.Errorf("can't save status: %w", err)
	}
	statusRec.Version++

	audio, err := loadAudio(ctx, data.Filer, utils.MakeFileName(m.BatchID, m.FileName))
	if err != nil {
		return err
	}
	res, err := data.Runner.Run(ctx, m.ID, m.FileName, audio)
	if err != nil {
		return fmt.Errorf("can't run pipeline: %w", err)
	}
	if err := saveAnalysis(ctx, data.Filer, m, res); err != nil {
		return err
	}

	statusRec.Status = status.Completed.String()
	if err := data.DB.UpdateStatus(ctx, statusRec); err != nil {
		return fmt.Errorf("can't save status: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("Analysis completed")
	return checkBatchDone(ctx, m, data)
}

func loadAudio(ctx context.Context, filer Filer, name string) ([]byte, error) {
	file, err := filer.LoadFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("can't load file: %w", err)
	}
	defer file.Close()
	res, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("can't read file: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty audio '%s'", errBadInput, name)
	}
	return res, nil
}

func saveAnalysis(ctx context.Context, filer Filer, m *messages.FileMessage, res *pipeline.Result) error {
	data, err := json.Marshal(res.Analysis)
	if err != nil {
		return fmt.Errorf("can't marshal analysis: %w", err)
	}
	name := utils.MakeFileName(m.BatchID, m.FileName+".analysis.json")
	if err := filer.SaveFile(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("can't save file: %w", err)
	}
	return nil
}

// handleFailure records the final error on a status row after retries are exhausted
func handleFailure(ctx context.Context, m *messages.FileMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling failure")
	statusRec, err := data.DB.LoadStatus(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load status: %w", err)
	}
	if statusRec.Error.String != "" {
		goapp.Log.Info().Str("ID", m.ID).Msg("error set - ignore")
		return nil
	}
	statusRec.Status = status.Failed.String()
	statusRec.Error = utils.ToSQLStr(m.Error)
	statusRec.ErrorCode = utils.ToSQLStr(m.ErrorCode)
	if err := data.DB.UpdateStatus(ctx, statusRec); err != nil {
		return fmt.Errorf("can't save status: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("Status update completed")
	return checkBatchDone(ctx, m, data)
}

// checkBatchDone informs about batch finish when all its files reach a final state
func checkBatchDone(ctx context.Context, m *messages.FileMessage, data *ServiceData) error {
	statuses, err := data.DB.LoadBatchStatuses(ctx, m.BatchID)
	if err != nil {
		return fmt.Errorf("can't load statuses: %w", err)
	}
	failed := false
	for _, st := range statuses {
		s := status.From(st.Status)
		if s != status.Completed && s != status.Failed {
			return nil
		}
		failed = failed || s == status.Failed
	}
	informType := amessages.InformTypeFinished
	if failed {
		informType = amessages.InformTypeFailed
	}
	goapp.Log.Info().Str("ID", m.BatchID).Str("type", informType).Msg("batch done")
	err = data.MsgSender.SendMessage(ctx, amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: m.BatchID},
		Type:         informType, At: time.Now()}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

// makeFailureHandler routes a file job to the failure queue when no retry is left.
// Bad input fails at once, other errors retry with backoff first
func makeFailureHandler(data *ServiceData) func(context.Context, *messages.FileMessage, error, *gue.Job) (bool, time.Duration, error) {
	return func(ctx context.Context, m *messages.FileMessage, err error, j *gue.Job) (bool, time.Duration, error) {
		if !errors.Is(err, errBadInput) && j.ErrorCount < maxFileRetries {
			return true, 0, nil
		}
		msg := messages.NewMessageFrom(m)
		msg.Error = err.Error()
		msg.ErrorCode = errCode(err).String()
		if errS := data.MsgSender.SendMessage(ctx, msg, wrkFail); errS != nil {
			return true, 0, fmt.Errorf("can't send fail msg: %w", errS)
		}
		return false, 0, nil
	}
}

func errCode(err error) status.ErrCode {
	var tErr *step.TimeoutError
	if errors.As(err, &tErr) {
		return status.ECTimeout
	}
	if errors.Is(err, errBadInput) {
		return status.ECBadInput
	}
	return status.ECServiceError
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Runner == nil {
		return fmt.Errorf("no Runner")
	}
	return nil
}
