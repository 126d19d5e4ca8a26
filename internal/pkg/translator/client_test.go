package translator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tacint/sparrow/internal/pkg/utils"
)

func initTestServer(t *testing.T, content string) (*Client, *[]string) {
	t.Helper()
	bodies := make([]string, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		b, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(b))
		rw.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"id":    "cmpl-1",
			"model": "test",
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}))
	t.Cleanup(server.Close)
	cl, err := NewClient(server.URL, "key", "test-model")
	require.Nil(t, err)
	return cl, &bodies
}

func TestNewClient_NoURL(t *testing.T) {
	_, err := NewClient("", "key", "m")
	require.NotNil(t, err)
	var cErr *utils.ErrNoConfig
	assert.True(t, errors.As(err, &cErr))
}

func TestNewClient_NoModel(t *testing.T) {
	_, err := NewClient("http://olia", "key", "")
	assert.NotNil(t, err)
}

func TestTranslate(t *testing.T) {
	cl, bodies := initTestServer(t, "translated text")
	res, err := cl.Translate(context.Background(), "olia")
	require.Nil(t, err)
	assert.Equal(t, "translated text", res.Content)
	require.NotNil(t, res.Resp)
	require.Equal(t, 1, len(*bodies))
	var req map[string]interface{}
	require.Nil(t, json.Unmarshal([]byte((*bodies)[0]), &req))
	assert.Equal(t, float64(0), req["temperature"], "deterministic generation")
	assert.Equal(t, "test-model", req["model"])
}

func TestTranslate_Deterministic(t *testing.T) {
	cl, _ := initTestServer(t, "translated text")
	res1, err := cl.Translate(context.Background(), "olia")
	require.Nil(t, err)
	res2, err := cl.Translate(context.Background(), "olia")
	require.Nil(t, err)
	assert.Equal(t, res1.Content, res2.Content)
}

func TestMakePrompt(t *testing.T) {
	res := MakePrompt("Speaker A: text")
	assert.Contains(t, res, "Translate the following content to English")
	assert.Contains(t, res, "Content: Speaker A: text")
}

func TestFormatConversation(t *testing.T) {
	tests := []struct {
		name, args, want string
	}{
		{name: "empty", args: "", want: ""},
		{name: "trims", args: "  Speaker A: hi  ", want: "Speaker A: hi"},
		{name: "drops empty lines", args: "Speaker A: hi\n\n  \nSpeaker B: ho", want: "Speaker A: hi\nSpeaker B: ho"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatConversation(tt.args))
		})
	}
}
