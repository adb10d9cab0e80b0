package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soochol/chatflow/internal/chatflow"
)

// maxResponseBody caps how much of a response body is bound to a variable.
const maxResponseBody = 64 * 1024

// callHTTP performs an httpRequest node and binds the response into vars.
// Non-2xx statuses are bound, not treated as failures.
func (e *Executor) callHTTP(ctx context.Context, d *chatflow.HTTPRequestData, vars map[string]string) error {
	method := strings.ToUpper(d.Method)
	url := Interpolate(d.URL, vars)
	if url == "" {
		return fmt.Errorf("url is empty")
	}

	timeout := e.opts.HTTPTimeout
	if d.TimeoutSeconds > 0 {
		timeout = time.Duration(d.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if d.Body != "" {
		body = strings.NewReader(Interpolate(d.Body, vars))
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, Interpolate(v, vars))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	name := d.ResponseVariable
	if name == "" {
		name = "response"
	}
	vars[name] = string(data)
	vars[name+"_status"] = strconv.Itoa(resp.StatusCode)
	return nil
}
