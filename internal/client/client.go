// Package client issues the single request/response exchange of the githook
// protocol and classifies what can go wrong with it. The caller decides
// which failures are fatal; this package only tells them apart.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/reftrack/internal/protocol"
)

// ErrTimeout marks an exchange that got no reply within the operative
// deadline. Check with errors.Is or IsTimeout.
var ErrTimeout = errors.New("request timed out")

// TransportError is a lower-level connection failure: refused, reset, DNS.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the reply arrived but could not be decoded as the
// expected structured form.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// ServerRejectedError carries a decoded error-status response. The exchange
// itself succeeded; the server declined the request.
type ServerRejectedError struct {
	Message string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Message)
}

// IsTimeout reports whether err is a deadline expiry rather than a harder
// transport failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Options configure a Client beyond the service URL.
type Options struct {
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// Client posts UpdateRequests to the tracking service's githook endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	username   string
	password   string
}

// New builds a Client for the given service base URL. The githook path is
// appended here so callers configure only the base URL.
func New(serviceURL string, opts Options) *Client {
	transport := http.DefaultTransport
	if opts.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		endpoint:   strings.TrimSuffix(serviceURL, "/") + protocol.GithookPath,
		httpClient: &http.Client{Transport: transport},
		username:   opts.Username,
		password:   opts.Password,
	}
}

// Send performs one exchange, bounded by timeout. A decoded error-status
// body comes back as *ServerRejectedError; everything else in the error
// taxonomy maps to ErrTimeout, *TransportError or *ProtocolError.
func (c *Client) Send(ctx context.Context, req protocol.UpdateRequest, timeout time.Duration) (*protocol.UpdateResponse, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: no time remaining before the deadline", ErrTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.username != "" && c.password != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	// The service always answers decoded exchanges with HTTP 200 and puts
	// failure in the body. Anything else is not the expected protocol.
	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, firstLine(body))}
	}

	var decoded protocol.UpdateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("undecodable reply: %v", err)}
	}

	switch decoded.Status {
	case protocol.StatusOK:
		return &decoded, nil
	case protocol.StatusError:
		return nil, &ServerRejectedError{Message: decoded.Error}
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown status %q", decoded.Status)}
	}
}

// classifyTransport splits an http.Client failure into the timeout and
// transport halves of the taxonomy.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &TransportError{Err: err}
}

func firstLine(body []byte) string {
	line := string(body)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}
