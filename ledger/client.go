// Package ledger talks to a NYM gateway: the HTTP face of the
// distributed ledger that publishes DID verification keys.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrTimeout means the outcome is ambiguous: the transaction may or
	// may not have landed. Callers must never treat it as a definite
	// failure.
	ErrTimeout = errors.New("ledger request timed out")

	// ErrUnavailable is a definite failure to reach the ledger; nothing
	// was submitted.
	ErrUnavailable = errors.New("ledger is unavailable")

	// ErrRejected means the ledger received and refused the request.
	ErrRejected = errors.New("ledger rejected the request")
)

// Client is the narrow contract the rotation engine needs. GetNym
// returns nil for a DID with no ledger presence.
type Client interface {
	GetNym(ctx context.Context, did string) (*NymData, error)
	SubmitNym(ctx context.Context, req *NymRequest) error
}

type HTTPClient struct {
	h      *retryablehttp.Client
	base   string
	logger *slog.Logger
}

type HTTPClientArgs struct {
	Base    string
	Logger  *slog.Logger
	Timeout time.Duration
	// RetryMax overrides the default of 3 transport-level retries.
	RetryMax *int
}

func NewHTTPClient(args *HTTPClientArgs) (*HTTPClient, error) {
	if args.Base == "" {
		return nil, fmt.Errorf("ledger base url must be set")
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}
	if args.Timeout == 0 {
		args.Timeout = 15 * time.Second
	}

	h := retryablehttp.NewClient()
	h.RetryMax = 3
	if args.RetryMax != nil {
		h.RetryMax = *args.RetryMax
	}
	h.Logger = nil
	h.HTTPClient.Timeout = args.Timeout

	return &HTTPClient{
		h:      h,
		base:   args.Base,
		logger: args.Logger,
	}, nil
}

func (c *HTTPClient) GetNym(ctx context.Context, did string) (*NymData, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", c.base+"/nym/"+url.PathEscape(did), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: get-nym returned %d", ErrUnavailable, resp.StatusCode)
	}

	var nym NymData
	if err := json.NewDecoder(resp.Body).Decode(&nym); err != nil {
		return nil, err
	}

	return &nym, nil
}

func (c *HTTPClient) SubmitNym(ctx context.Context, nymReq *NymRequest) error {
	b, err := json.Marshal(nymReq)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", c.base+"/nym", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.h.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: gateway returned %d", ErrTimeout, resp.StatusCode)
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("nym submission rejected", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("%w: %s", ErrRejected, string(body))
	}
}

// classifyTransportErr sorts transport failures into ambiguous
// (timeout: the request may have been delivered) and definite
// (connection never established).
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
