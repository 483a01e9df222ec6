package capability

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
)

var urlRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// DefaultMaxBodySize caps how much of a fetched body is returned.
const DefaultMaxBodySize = 512 * 1024

// Web fetches the first URL found in the task description with an HTTP
// GET. Server errors are transient and retried; client errors are not.
type Web struct {
	client  *http.Client
	maxBody int64
}

// WebOption is the type for Web options.
type WebOption func(*Web)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) WebOption {
	return func(w *Web) {
		w.client = client
	}
}

// WithMaxBodySize caps the returned body size in bytes.
func WithMaxBodySize(n int64) WebOption {
	return func(w *Web) {
		w.maxBody = n
	}
}

// NewWeb creates the web capability.
func NewWeb(options ...WebOption) *Web {
	w := &Web{
		client:  http.DefaultClient,
		maxBody: DefaultMaxBodySize,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *Web) Specs(ctx context.Context) ([]taskory.CapabilitySpec, error) {
	return []taskory.CapabilitySpec{
		{
			Name:        "web",
			Kind:        taskory.CapabilityWeb,
			Description: "Fetch the content of a URL",
			Parameters: map[string]*taskory.Parameter{
				"description": {
					Type:        taskory.TypeString,
					Description: "A task description containing the URL to fetch",
					Required:    true,
				},
			},
		},
	}, nil
}

func (w *Web) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	description, err := descriptionArg(args)
	if err != nil {
		return nil, err
	}

	url := urlRe.FindString(description)
	if url == "" {
		return nil, goerr.Wrap(taskory.ErrInvalidParameter, "no URL in description",
			goerr.V("description", description), goerr.T(taskory.TagValidation))
	}
	url = strings.TrimRight(url, ".,;)")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request",
			goerr.V("url", url), goerr.T(taskory.TagValidation))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "fetch failed", goerr.V("url", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		werr := goerr.New("unexpected status",
			goerr.V("url", url), goerr.V("status", resp.StatusCode))
		if resp.StatusCode < 500 {
			werr = goerr.Wrap(werr, "request rejected", goerr.T(taskory.TagValidation))
		}
		return nil, werr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBody))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read body", goerr.V("url", url))
	}

	return map[string]any{"content": string(body)}, nil
}
