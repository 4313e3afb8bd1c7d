package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// apiError is a non-2xx API response.
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Kind    string `json:"kind"`
	Failure string `json:"failure"`
}

func (e *apiError) Error() string {
	if e.Failure != "" {
		return e.Failure
	}
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// ExitCode maps not-found to 2 and everything else to 1.
func (e *apiError) ExitCode() int {
	if e.Status == http.StatusNotFound {
		return 2
	}
	return 1
}

// client talks to the package manager HTTP API.
type client struct {
	resty *resty.Client
}

func newClient(server string, timeout time.Duration) *client {
	r := resty.New().
		SetBaseURL(server).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "pmctl/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	// Only idempotent failures are retried.
	r.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if resp == nil || resp.Request == nil {
			return false
		}
		return resp.Request.Method == http.MethodGet && (err != nil || resp.StatusCode() >= 500)
	})
	return &client{resty: r}
}

// do sends req and decodes a 2xx body into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.resty.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	req.SetError(&apiError{})

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr, _ := resp.Error().(*apiError)
		if apiErr == nil {
			apiErr = &apiError{}
		}
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

func (c *client) shell(ctx context.Context, args []string, stdin []byte) (string, error) {
	var out types.ShellResponse
	err := c.do(ctx, http.MethodPost, "/shell", types.ShellRequest{Args: args, Stdin: stdin}, &out)
	return out.Output, err
}

// install uploads files into one session and commits it, waiting for the
// result. The session is abandoned when staging fails.
func (c *client) install(ctx context.Context, req types.CreateSessionRequest, paths []string) (types.Result, error) {
	var created struct {
		SessionID int `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &created); err != nil {
		return types.Result{}, err
	}
	id := strconv.Itoa(created.SessionID)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			_ = c.do(ctx, http.MethodDelete, "/sessions/"+id, nil, nil)
			return types.Result{}, err
		}
		err = c.do(ctx, http.MethodPut, "/sessions/"+id+"/files/"+filepath.Base(p), data, nil)
		if err != nil {
			_ = c.do(ctx, http.MethodDelete, "/sessions/"+id, nil, nil)
			return types.Result{}, err
		}
	}

	var res types.Result
	resp, err := c.resty.R().SetContext(ctx).SetResult(&res).SetError(&res).
		Post("/sessions/" + id + "/commit?wait=true")
	if err != nil {
		return types.Result{}, err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusUnprocessableEntity {
		return types.Result{}, &apiError{Status: resp.StatusCode(), Message: resp.String()}
	}
	return res, nil
}
