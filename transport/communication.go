// Package transport implements the outbound half of the HTTP surface in
// spec.md §6.2: sending notices/queries/replies/forwards to a witness or
// watcher, and resolving OOBI locations. The inbound server/router (the
// actual net/http handlers a witness process would register) is explicitly
// out of scope; what a handler does with a decoded frame is the caller's
// processor.Processor. This package does own the inbound half of the wire
// codec itself, though: DecodeProcessBody turns a /process body back into
// the event.SignedEvent the Controller side attached via cesr.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/event"
)

// Communication is the outbound transport a Controller uses to reach
// witnesses and watchers. Implementations must be safe to share across a
// single controller's sequential operations; spec.md §9 treats Controller,
// Communication and EventLog as three independently owned components rather
// than back-pointers into one another.
type Communication interface {
	Process(ctx context.Context, dest string, body []byte) error
	Query(ctx context.Context, dest string, body []byte) ([]byte, error)
	Register(ctx context.Context, dest string, body []byte) error
	Forward(ctx context.Context, dest string, body []byte) error
	Oobi(ctx context.Context, dest string, eid string) ([]byte, error)
}

// HTTPCommunication is the one concrete Communication: a thin client over
// the §6.2 REST surface. dest values are base URLs of a witness/watcher
// (e.g. "https://witness1.example:5631"); this client does not resolve
// identifiers to URLs itself (that is OOBI resolution, layered by the
// caller via oobi.Store).
type HTTPCommunication struct {
	Client *http.Client
	Log    logger.Logger
}

func NewHTTPCommunication(client *http.Client, log logger.Logger) *HTTPCommunication {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCommunication{Client: client, Log: log}
}

func (c *HTTPCommunication) Process(ctx context.Context, dest string, body []byte) error {
	return c.post(ctx, dest+"/process", body, nil)
}

func (c *HTTPCommunication) Query(ctx context.Context, dest string, body []byte) ([]byte, error) {
	var resp []byte
	err := c.post(ctx, dest+"/query", body, &resp)
	return resp, err
}

func (c *HTTPCommunication) Register(ctx context.Context, dest string, body []byte) error {
	return c.post(ctx, dest+"/register", body, nil)
}

func (c *HTTPCommunication) Forward(ctx context.Context, dest string, body []byte) error {
	return c.post(ctx, dest+"/forward", body, nil)
}

func (c *HTTPCommunication) Oobi(ctx context.Context, dest string, eid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dest+"/oobi/"+eid, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: oobi request to %s: %w", dest, err)
	}
	defer resp.Body.Close()
	return readResponse(resp)
}

func (c *HTTPCommunication) post(ctx context.Context, url string, body []byte, out *[]byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/cbor")
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: post to %s: %w", url, err)
	}
	defer resp.Body.Close()
	data, err := readResponse(resp)
	if err != nil {
		return err
	}
	if out != nil {
		*out = data
	}
	return nil
}

func readResponse(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, StatusError{Code: resp.StatusCode, Body: data}
	}
	return data, nil
}

// DecodeProcessBody reverses the framing HTTPCommunication.Process sends: it
// is the counterpart a witness's /process handler calls on the received
// body before dispatching into processor.Processor, closing the loop on the
// cesr-framed signature attachment the controller side now sends.
func DecodeProcessBody(codec commoncbor.CBORCodec, body []byte) (event.SignedEvent, error) {
	return cesr.DecodeSignedEvent(codec, body)
}

// StatusError mirrors spec.md §6.2's error-mapping table (400/401/403/404/500).
type StatusError struct {
	Code int
	Body []byte
}

func (e StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d: %s", e.Code, string(e.Body))
}

func (e StatusError) Retryable() bool {
	return e.Code >= 500
}
