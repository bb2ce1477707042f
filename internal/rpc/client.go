package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"genclient/internal/domain"
	"genclient/internal/infra"
)

// Procedure names exposed by the generation backend.
const (
	ProcCreateJob    = "generation.create"
	ProcJobStatus    = "generation.status"
	ProcSyncJob      = "generation.sync"
	ProcGetCredits   = "credits.get"
	opUploadFile     = "upload"
	uploadPath       = "/api/upload"
	rpcPathPrefix    = "/trpc/"
	maxResponseBytes = 8 << 20
)

// Options configures the RPC client.
type Options struct {
	BaseURL string
	Token   string
	// HTTPClient serves short JSON procedures.
	HTTPClient *http.Client
	// UploadClient serves multipart uploads, which may run far longer than a
	// JSON call. It defaults to a client without an overall timeout; callers
	// bound uploads with their context.
	UploadClient   *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs calls against the generation backend.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	uploadClient *http.Client
	logger       *infra.Logger
}

type envelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type jobIDInput struct {
	JobID int64 `json:"jobId"`
}

type creditsOutput struct {
	Credits int `json:"credits"`
}

type uploadOutput struct {
	URL string `json:"url"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("rpc: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	uploadClient := opts.UploadClient
	if uploadClient == nil {
		uploadClient = &http.Client{Transport: httpClient.Transport}
	}
	return &Client{
		baseURL:      baseURL,
		token:        strings.TrimSpace(opts.Token),
		httpClient:   httpClient,
		uploadClient: uploadClient,
		logger:       infra.OrDiscard(opts.Logger),
	}, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateJob submits a generation job. idempotencyKey is forwarded so that a
// replayed request cannot charge twice; an empty key is replaced by a fresh one.
func (c *Client) CreateJob(ctx context.Context, params domain.GenerationParams, idempotencyKey string) (*domain.CreateJobResult, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = uuid.NewString()
	}
	var out domain.CreateJobResult
	header := http.Header{"Idempotency-Key": []string{idempotencyKey}}
	if err := c.call(ctx, ProcCreateJob, params, header, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJobStatus returns the current job snapshot. It has no server-side effect.
func (c *Client) GetJobStatus(ctx context.Context, jobID int64) (*domain.JobSnapshot, error) {
	var out domain.JobSnapshot
	if err := c.call(ctx, ProcJobStatus, jobIDInput{JobID: jobID}, nil, &out); err != nil {
		return nil, err
	}
	if !out.Job.Status.Valid() {
		return nil, &OperationError{Op: ProcJobStatus, Err: fmt.Errorf("unknown job status %q", out.Job.Status)}
	}
	return &out, nil
}

// SyncJob asks the server to re-query the upstream provider for the job.
func (c *Client) SyncJob(ctx context.Context, jobID int64) (*domain.SyncResult, error) {
	var out domain.SyncResult
	if err := c.call(ctx, ProcSyncJob, jobIDInput{JobID: jobID}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCredits returns the caller's current credit balance.
func (c *Client) GetCredits(ctx context.Context) (int, error) {
	var out creditsOutput
	if err := c.call(ctx, ProcGetCredits, struct{}{}, nil, &out); err != nil {
		return 0, err
	}
	return out.Credits, nil
}

// UploadFile streams body as a multipart form file and returns the durable
// URL assigned by the server. The body is read exactly once, so callers can
// observe transfer progress by wrapping it.
func (c *Client) UploadFile(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		partHeader := make(textproto.MIMEHeader)
		partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		partHeader.Set("Content-Type", contentType)
		part, err := mw.CreatePart(partHeader)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.Close()
		return "", &OperationError{Op: opUploadFile, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.decorate(req, nil)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", &OperationError{Op: opUploadFile, Err: err}
	}
	defer resp.Body.Close()
	// Unblock the writer goroutine if the server answered early.
	defer pr.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &OperationError{Op: opUploadFile, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		return "", c.errorFromResponse(opUploadFile, resp.StatusCode, raw)
	}
	var out uploadOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &OperationError{Op: opUploadFile, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", &OperationError{Op: opUploadFile, Status: resp.StatusCode, Err: errors.New("empty url in response")}
	}
	c.logger.Debug().Str("op", opUploadFile).Str("url", out.URL).Msg("rpc: upload complete")
	return out.URL, nil
}

func (c *Client) call(ctx context.Context, proc string, input any, header http.Header, out any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return &OperationError{Op: proc, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rpcPathPrefix+proc, bytes.NewReader(body))
	if err != nil {
		return &OperationError{Op: proc, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req, header)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &OperationError{Op: proc, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &OperationError{Op: proc, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug().
		Str("op", proc).
		Int("status", resp.StatusCode).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("elapsed", time.Since(start)).
		Msg("rpc: call finished")

	if resp.StatusCode >= 300 {
		return c.errorFromResponse(proc, resp.StatusCode, raw)
	}
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &OperationError{Op: proc, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		return remoteError(proc, resp.StatusCode, *decoded.Error)
	}
	if decoded.Result == nil || len(decoded.Result.Data) == 0 {
		return &OperationError{Op: proc, Status: resp.StatusCode, Err: errors.New("missing result data")}
	}
	if err := json.Unmarshal(decoded.Result.Data, out); err != nil {
		return &OperationError{Op: proc, Status: resp.StatusCode, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

func (c *Client) decorate(req *http.Request, header http.Header) {
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) errorFromResponse(op string, status int, raw []byte) error {
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != nil && decoded.Error.Code != "" {
		return remoteError(op, status, *decoded.Error)
	}
	if status == http.StatusPaymentRequired {
		return &RemoteError{Op: op, Status: status, Code: CodeInsufficientCredits, Message: "payment required"}
	}
	return &OperationError{Op: op, Status: status, Err: fmt.Errorf("%s", strings.TrimSpace(string(raw)))}
}

func remoteError(op string, status int, body errorBody) error {
	code := strings.ToUpper(strings.TrimSpace(body.Code))
	if code == "" {
		code = CodeInternal
	}
	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(code, "_", " "))
	}
	return &RemoteError{Op: op, Status: status, Code: code, Message: msg}
}
