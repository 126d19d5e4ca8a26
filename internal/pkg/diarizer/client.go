package diarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/tacint/sparrow/internal/pkg/api"
	"github.com/tacint/sparrow/internal/pkg/transcript"
)

// Client calls the speaker diarization service
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	language   string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a diarization client with a fixed language hint
func NewClient(url, key string) (*Client, error) {
	res := Client{}
	if url == "" {
		return nil, fmt.Errorf("no diarizerURL")
	}
	res.url = url
	res.key = key
	res.language = api.DefaultLanguage
	res.timeout = time.Second * 110
	res.httpclient = newHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

type diarizeResponse struct {
	Utterances []transcript.Utterance `json:"utterances"`
}

// Diarize splits the audio into per-speaker utterances.
// The returned order is the service's chronological order and is kept as is -
// downstream transcript reconstruction depends on it
func (sp *Client) Diarize(ctx context.Context, name string, data []byte) ([]transcript.Utterance, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(api.PrmFile, name)
	if err != nil {
		return nil, fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("can't add file content to request: %w", err)
	}
	if err := writer.WriteField(api.PrmLanguage, sp.language); err != nil {
		return nil, fmt.Errorf("can't add param: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("can't close request writer: %w", err)
	}

	return goapp.InvokeWithBackoff(ctx, func() ([]transcript.Utterance, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, sp.url, bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		if sp.key != "" {
			req.Header.Set("Authorization", "Bearer "+sp.key)
		}
		req = req.WithContext(ctx)
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Str("language", sp.language).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		var respData diarizeResponse
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return nil, false, fmt.Errorf("can't decode response: %w", err)
		}
		if respData.Utterances == nil {
			return nil, false, fmt.Errorf("no utterances in response")
		}
		return respData.Utterances, false, nil
	}, sp.backoff())
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}}
}

func newSimpleBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
}
