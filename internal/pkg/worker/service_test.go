package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tacint/sparrow/internal/pkg/analysis"
	"github.com/tacint/sparrow/internal/pkg/messages"
	"github.com/tacint/sparrow/internal/pkg/persistence"
	"github.com/tacint/sparrow/internal/pkg/pipeline"
	"github.com/tacint/sparrow/internal/pkg/status"
	"github.com/tacint/sparrow/internal/pkg/step"
	"github.com/tacint/sparrow/internal/pkg/test"
	"github.com/tacint/sparrow/internal/pkg/test/mocks"
	"github.com/tacint/sparrow/internal/pkg/utils"
	"github.com/vgarvardt/gue/v5"
)

var (
	filerMock  *mocks.Filer
	dbMock     *mocks.DB
	senderMock *mocks.Sender
	runnerMock *runnerMockT
	srvData    *ServiceData
)

func initTest(t *testing.T) {
	t.Helper()
	filerMock = &mocks.Filer{}
	dbMock = &mocks.DB{}
	senderMock = &mocks.Sender{}
	runnerMock = &runnerMockT{}
	srvData = &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10, MsgSender: senderMock,
		Filer: filerMock, Runner: runnerMock}
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

// runnerMockT is pipeline runner mock
type runnerMockT struct{ mock.Mock }

func (m *runnerMockT) Run(ctx context.Context, id, fileName string, data []byte) (*pipeline.Result, error) {
	args := m.Called(ctx, id, fileName, data)
	return mocks.To[*pipeline.Result](args.Get(0)), args.Error(1)
}

type testFile struct{ *strings.Reader }

func (t testFile) Close() error { return nil }

func newTestFile(s string) io.ReadSeekCloser {
	return testFile{strings.NewReader(s)}
}

func testResult() *pipeline.Result {
	return &pipeline.Result{Transcription: "labas", Translation: "hi",
		Translation2: "hi", Analysis: &analysis.ConversationAnalysis{PriorityLevel: "High",
			Speakers: []string{"A", "B"}, AnalyzedAt: "2024-11-10T10:30:00Z"}}
}

func Test_handleBatch(t *testing.T) {
	initTest(t)
	dbMock.On("LoadBatch", mock.Anything, "b1").Return(&persistence.BatchData{ID: "b1",
		FileNames: []string{"f1.wav", "f2.wav"}}, nil)
	dbMock.On("InsertStatus", mock.Anything, mock.Anything).Return(nil)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "b1"}}, srvData)
	assert.Nil(t, err)
	require.Equal(t, 3, len(senderMock.Calls))
	assert.Equal(t, messages.Inform, senderMock.Calls[0].Arguments[2])
	assert.Equal(t, amessages.InformTypeStarted,
		senderMock.Calls[0].Arguments[1].(amessages.InformMessage).Type)
	fm := senderMock.Calls[1].Arguments[1].(*messages.FileMessage)
	assert.Equal(t, "b1_0", fm.ID)
	assert.Equal(t, "b1", fm.BatchID)
	assert.Equal(t, "f1.wav", fm.FileName)
	assert.Equal(t, wrkFile, senderMock.Calls[1].Arguments[2])
	assert.Equal(t, "b1_1", senderMock.Calls[2].Arguments[1].(*messages.FileMessage).ID)
	dbMock.AssertNumberOfCalls(t, "InsertStatus", 2)
}

func Test_handleBatch_SameIDsOnRedelivery(t *testing.T) {
	initTest(t)
	dbMock.On("LoadBatch", mock.Anything, "b1").Return(&persistence.BatchData{ID: "b1",
		FileNames: []string{"f1.wav"}}, nil)
	dbMock.On("InsertStatus", mock.Anything, mock.Anything).Return(nil)
	for i := 0; i < 2; i++ {
		err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "b1"}}, srvData)
		assert.Nil(t, err)
	}
	assert.Equal(t, dbMock.Calls[1].Arguments[1].(*persistence.Status).ID,
		dbMock.Calls[3].Arguments[1].(*persistence.Status).ID)
}

func Test_handleBatch_Fail(t *testing.T) {
	initTest(t)
	dbMock.On("LoadBatch", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia err"))
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "b1"}}, srvData)
	assert.NotNil(t, err)
}

func Test_handleFile(t *testing.T) {
	initTest(t)
	dbMock.On("LoadStatus", mock.Anything, "b1_0").Return(&persistence.Status{ID: "b1_0", BatchID: "b1",
		FileName: "f1.wav", Status: status.Uploaded.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("LoadBatchStatuses", mock.Anything, "b1").Return([]*persistence.Status{
		{ID: "b1_0", Status: status.Completed.String()}}, nil)
	filerMock.On("LoadFile", mock.Anything, "b1/f1.wav").Return(newTestFile("audio data"), nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	runnerMock.On("Run", mock.Anything, "b1_0", "f1.wav", []byte("audio data")).Return(testResult(), nil)

	err := handleFile(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"},
		BatchID: "b1", FileName: "f1.wav"}, srvData)
	assert.Nil(t, err)
	require.Equal(t, 2, len(dbMock.Calls)-2) // 2 loads, 2 updates
	assert.Equal(t, status.Working.String(), dbMock.Calls[1].Arguments[1].(*persistence.Status).Status)
	assert.Equal(t, status.Completed.String(), dbMock.Calls[2].Arguments[1].(*persistence.Status).Status)
	require.Equal(t, 1, len(filerMock.Calls)-1)
	assert.Equal(t, "b1/f1.wav.analysis.json", filerMock.Calls[1].Arguments[1])
	require.Equal(t, 1, len(senderMock.Calls))
	assert.Equal(t, messages.Inform, senderMock.Calls[0].Arguments[2])
	assert.Equal(t, amessages.InformTypeFinished,
		senderMock.Calls[0].Arguments[1].(amessages.InformMessage).Type)
}

func Test_handleFile_SkipCompleted(t *testing.T) {
	initTest(t)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "b1_0",
		Status: status.Completed.String()}, nil)
	err := handleFile(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"},
		BatchID: "b1", FileName: "f1.wav"}, srvData)
	assert.Nil(t, err)
	runnerMock.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_handleFile_NoInformIfBatchNotDone(t *testing.T) {
	initTest(t)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "b1_0", BatchID: "b1",
		FileName: "f1.wav", Status: status.Uploaded.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("LoadBatchStatuses", mock.Anything, "b1").Return([]*persistence.Status{
		{ID: "b1_0", Status: status.Completed.String()},
		{ID: "b1_1", Status: status.Working.String()}}, nil)
	filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(newTestFile("audio data"), nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	runnerMock.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(testResult(), nil)

	err := handleFile(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"},
		BatchID: "b1", FileName: "f1.wav"}, srvData)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(senderMock.Calls))
}

func Test_handleFile_EmptyAudio(t *testing.T) {
	initTest(t)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "b1_0", BatchID: "b1",
		FileName: "f1.wav", Status: status.Uploaded.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(newTestFile(""), nil)

	err := handleFile(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"},
		BatchID: "b1", FileName: "f1.wav"}, srvData)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, errBadInput))
	runnerMock.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_handleFile_RunFails(t *testing.T) {
	initTest(t)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "b1_0", BatchID: "b1",
		FileName: "f1.wav", Status: status.Uploaded.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(newTestFile("audio data"), nil)
	runnerMock.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia err"))

	err := handleFile(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"},
		BatchID: "b1", FileName: "f1.wav"}, srvData)
	assert.NotNil(t, err)
	filerMock.AssertNotCalled(t, "SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_handleFailure(t *testing.T) {
	initTest(t)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "b1_0", BatchID: "b1",
		Status: status.Working.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("LoadBatchStatuses", mock.Anything, "b1").Return([]*persistence.Status{
		{ID: "b1_0", Status: status.Failed.String()}}, nil)

	err := handleFailure(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"},
		BatchID: "b1", FileName: "f1.wav", Error: "olia err",
		ErrorCode: status.ECTimeout.String()}, srvData)
	assert.Nil(t, err)
	upd := dbMock.Calls[1].Arguments[1].(*persistence.Status)
	assert.Equal(t, status.Failed.String(), upd.Status)
	assert.Equal(t, "olia err", upd.Error.String)
	assert.Equal(t, "TIMEOUT", upd.ErrorCode.String)
	require.Equal(t, 1, len(senderMock.Calls))
	assert.Equal(t, amessages.InformTypeFailed,
		senderMock.Calls[0].Arguments[1].(amessages.InformMessage).Type)
}

func Test_handleFailure_ErrorSet(t *testing.T) {
	initTest(t)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "b1_0", BatchID: "b1",
		Status: status.Failed.String(), Error: utils.ToSQLStr("old err")}, nil)
	err := handleFailure(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"},
		BatchID: "b1", Error: "olia err"}, srvData)
	assert.Nil(t, err)
	dbMock.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func Test_failureHandler_Retries(t *testing.T) {
	initTest(t)
	fh := makeFailureHandler(srvData)
	retry, _, err := fh(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"}},
		fmt.Errorf("olia err"), &gue.Job{ErrorCount: 1})
	assert.Nil(t, err)
	assert.True(t, retry)
	assert.Equal(t, 0, len(senderMock.Calls))
}

func Test_failureHandler_SendsFail(t *testing.T) {
	initTest(t)
	fh := makeFailureHandler(srvData)
	retry, _, err := fh(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"}},
		&step.TimeoutError{Step: "transcribe", After: time.Second}, &gue.Job{ErrorCount: maxFileRetries})
	assert.Nil(t, err)
	assert.False(t, retry)
	require.Equal(t, 1, len(senderMock.Calls))
	fm := senderMock.Calls[0].Arguments[1].(*messages.FileMessage)
	assert.Equal(t, "TIMEOUT", fm.ErrorCode)
	assert.Equal(t, wrkFail, senderMock.Calls[0].Arguments[2])
}

func Test_failureHandler_BadInputNoRetry(t *testing.T) {
	initTest(t)
	fh := makeFailureHandler(srvData)
	retry, _, err := fh(test.Ctx(t), &messages.FileMessage{QueueMessage: amessages.QueueMessage{ID: "b1_0"}},
		fmt.Errorf("file: %w", errBadInput), &gue.Job{ErrorCount: 0})
	assert.Nil(t, err)
	assert.False(t, retry)
	require.Equal(t, 1, len(senderMock.Calls))
	assert.Equal(t, "BAD_INPUT", senderMock.Calls[0].Arguments[1].(*messages.FileMessage).ErrorCode)
}

func Test_errCode(t *testing.T) {
	tests := []struct {
		name string
		args error
		want status.ErrCode
	}{
		{name: "timeout", args: &step.TimeoutError{Step: "olia"}, want: status.ECTimeout},
		{name: "bad input", args: fmt.Errorf("err: %w", errBadInput), want: status.ECBadInput},
		{name: "other", args: fmt.Errorf("olia"), want: status.ECServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errCode(tt.args))
		})
	}
}

func Test_makeFileID(t *testing.T) {
	assert.Equal(t, "b1_0", makeFileID("b1", 0))
	assert.Equal(t, "b1_10", makeFileID("b1", 10))
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		args    *ServiceData
		wantErr bool
	}{
		{name: "OK", args: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10,
			MsgSender: senderMock, Filer: filerMock, Runner: runnerMock}, wantErr: false},
		{name: "Fail no db", args: &ServiceData{GueClient: &gue.Client{}, WorkerCount: 10,
			MsgSender: senderMock, Filer: filerMock, Runner: runnerMock}, wantErr: true},
		{name: "Fail no gue", args: &ServiceData{DB: dbMock, WorkerCount: 10,
			MsgSender: senderMock, Filer: filerMock, Runner: runnerMock}, wantErr: true},
		{name: "Fail no workers", args: &ServiceData{DB: dbMock, GueClient: &gue.Client{},
			MsgSender: senderMock, Filer: filerMock, Runner: runnerMock}, wantErr: true},
		{name: "Fail no sender", args: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10,
			Filer: filerMock, Runner: runnerMock}, wantErr: true},
		{name: "Fail no filer", args: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10,
			MsgSender: senderMock, Runner: runnerMock}, wantErr: true},
		{name: "Fail no runner", args: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 10,
			MsgSender: senderMock, Filer: filerMock}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.args); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
