package matrix

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

const redacted = "[REDACTED]"

// secretFields are JSON body fields never written to the log.
var secretFields = []string{"password", "access_token", "refresh_token"}

// debugTransport logs every exchange with the homeserver at debug level,
// with credentials removed.
type debugTransport struct {
	base http.RoundTripper
	log  *log.Logger
}

func newDebugTransport(base http.RoundTripper, logger *log.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &debugTransport{base: base, log: logger}
}

// RoundTrip implements http.RoundTripper.
func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var reqBody []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		reqBody = data
		req.Body = io.NopCloser(bytes.NewReader(data))
	}

	dt.log.Debug("HTTP request",
		"request", req.Header.Get("X-Request-ID"),
		"method", req.Method,
		"url", req.URL.Redacted(),
		"headers", sanitizeHeaders(req.Header),
		"body", sanitizeBody(reqBody))

	resp, err := dt.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		dt.log.Debug("HTTP request failed", "request", req.Header.Get("X-Request-ID"), "elapsed", elapsed, "error", err)
		return resp, err
	}

	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	dt.log.Debug("HTTP response",
		"request", req.Header.Get("X-Request-ID"),
		"status", resp.StatusCode,
		"elapsed", elapsed,
		"body", sanitizeBody(respBody))
	return resp, nil
}

func sanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		if http.CanonicalHeaderKey(key) == "Authorization" {
			sanitized[key] = redacted
			continue
		}
		sanitized[key] = values[0]
	}
	return sanitized
}

// sanitizeBody masks secret fields of a JSON object body. Bodies that are
// not JSON objects are logged by content type only.
func sanitizeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return "<" + http.DetectContentType(body) + ">"
	}
	for _, key := range secretFields {
		if _, ok := fields[key]; ok {
			fields[key] = redacted
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return "<unprintable>"
	}
	return string(out)
}
