package cog

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPSource is a ByteSource over a remote object served with HTTP range
// support. Every ReadRange is a single stateless Range GET, so any number of
// tile fetches may be in flight at once.
type HTTPSource struct {
	url    string
	client *fasthttp.Client
	size   int64
}

// NewHTTPSource issues a HEAD request to learn the object size. A nil client
// gets a default with sane timeouts.
func NewHTTPSource(url string, client *fasthttp.Client) (*HTTPSource, error) {
	if client == nil {
		client = &fasthttp.Client{
			ReadTimeout:  defaultHTTPTimeout,
			WriteTimeout: defaultHTTPTimeout,
		}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("head request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code for head request: %d", resp.StatusCode())
	}
	size := resp.Header.ContentLength()
	if size <= 0 {
		return nil, fmt.Errorf("could not determine content length for %s", url)
	}

	return &HTTPSource{url: url, client: client, size: int64(size)}, nil
}

func (s *HTTPSource) Length() int64 { return s.size }

func (s *HTTPSource) ReadRange(ctx context.Context, off, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	end := off + length - 1
	if end >= s.size {
		end = s.size - 1
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = s.client.DoDeadline(req, resp, deadline)
	} else {
		err = s.client.Do(req, resp)
	}
	if err != nil {
		return nil, err
	}

	status := resp.StatusCode()
	if status != fasthttp.StatusPartialContent && status != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", status)
	}

	// Copy the body out; the response buffer is recycled on release.
	body := resp.Body()
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}
