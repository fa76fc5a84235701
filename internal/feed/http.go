package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySize caps how much of an upstream payload is read.
const maxBodySize = 16 << 20

// HTTPDoer executes HTTP requests. *resilience.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Get performs a single GET and returns the response body. Every failure is
// reported as a *FetchError.
func Get(ctx context.Context, doer HTTPDoer, source, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, NetworkError(source, fmt.Errorf("creating request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := doer.Do(req)
	if err != nil {
		return nil, NetworkError(source, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if fe := StatusError(source, resp, time.Now()); fe != nil {
		return nil, fe
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, NetworkError(source, fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}
