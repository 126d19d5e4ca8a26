package transcriber

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
)

// Client calls the speech to text service
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a transcription client
func NewClient(url, key string) (*Client, error) {
	res := Client{}
	if url == "" {
		return nil, fmt.Errorf("no sttURL")
	}
	res.url = url
	res.key = key
	res.timeout = time.Second * 110
	res.httpclient = newHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

type sttResponse struct {
	Text string `json:"text"`
}

// Transcribe sends the audio and returns the recognized text
func (sp *Client) Transcribe(ctx context.Context, name string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(api.PrmFile, name)
	if err != nil {
		return "", fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("can't add file content to request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("can't close request writer: %w", err)
	}

	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, sp.url, bytes.NewReader(body.Bytes()))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		if sp.key != "" {
			req.Header.Set("Authorization", "Bearer "+sp.key)
		}
		req = req.WithContext(ctx)
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return "", goapp.IsRetryableCode(resp.StatusCode), err
		}
		var respData sttResponse
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return "", false, fmt.Errorf("can't decode response: %w", err)
		}
		return respData.Text, false, nil
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
