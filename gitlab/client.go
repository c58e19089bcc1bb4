// Package gitlab lists pipeline jobs and downloads job artifacts through the
// GitLab REST API, mapping every failure into the http package's taxonomy.
package gitlab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	gl "github.com/xanzy/go-gitlab"

	"github.com/randalmurphal/artifetch"
	ahttp "github.com/randalmurphal/artifetch/http"
)

const serviceName = "gitlab"

// DefaultPerPage is the page size for job listings (GitLab's maximum).
const DefaultPerPage = 100

// TokenType selects how the access token is presented to GitLab.
type TokenType string

// Supported token types.
const (
	// TokenPrivate sends a personal/project/group access token as PRIVATE-TOKEN.
	TokenPrivate TokenType = "private"

	// TokenOAuth sends an OAuth2 access token as a Bearer token.
	TokenOAuth TokenType = "oauth"

	// TokenJob sends a CI_JOB_TOKEN as JOB-TOKEN.
	TokenJob TokenType = "job"
)

// Config holds everything the client needs. Credentials are checked by New.
type Config struct {
	// BaseURL is the API root, e.g. "https://gitlab.example.com/api/v4".
	BaseURL string

	// Token is the access token. Required.
	Token string

	// TokenType defaults to TokenPrivate.
	TokenType TokenType

	// HTTPClient overrides the transport. Its Timeout bounds every request.
	HTTPClient *http.Client

	// Timeout is used when HTTPClient is nil. Defaults to http.DefaultTimeout.
	Timeout time.Duration

	// Retry governs retries of transient failures.
	Retry ahttp.RetryPolicy

	// PerPage is the listing page size. Defaults to DefaultPerPage.
	PerPage int

	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client talks to one GitLab instance with one token.
type Client struct {
	api     *gl.Client
	retry   ahttp.RetryPolicy
	perPage int
	logger  *slog.Logger
}

// Artifact is a downloaded artifacts archive.
type Artifact struct {
	JobID int

	// ContentType is the response Content-Type, if any.
	ContentType string

	// Filename is the Content-Disposition filename, if any.
	Filename string

	Size int64
	Body io.Reader
}

// New validates the credentials and builds a client. A missing token or
// base URL fails with an *http.AuthError before any request is made.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &ahttp.AuthError{Service: serviceName, Reason: "access token is empty"}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ahttp.AuthError{Service: serviceName, Reason: "API base URL is empty"}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = ahttp.DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	// Retries are owned by our RetryPolicy, not go-gitlab's retryablehttp
	opts := []gl.ClientOptionFunc{
		gl.WithBaseURL(cfg.BaseURL),
		gl.WithHTTPClient(httpClient),
		gl.WithoutRetries(),
	}

	var api *gl.Client
	var err error
	switch cfg.TokenType {
	case "", TokenPrivate:
		api, err = gl.NewClient(cfg.Token, opts...)
	case TokenOAuth:
		api, err = gl.NewOAuthClient(cfg.Token, opts...)
	case TokenJob:
		api, err = gl.NewJobClient(cfg.Token, opts...)
	default:
		return nil, &ahttp.AuthError{
			Service: serviceName,
			Reason:  fmt.Sprintf("unknown token type %q", cfg.TokenType),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}
	api.UserAgent = artifetch.UserAgent()

	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api:     api,
		retry:   cfg.Retry,
		perPage: perPage,
		logger:  logger,
	}, nil
}

// ListPipelineJobs returns every job of a pipeline, retried instances
// included, following the listing's pages in server order.
func (c *Client) ListPipelineJobs(ctx context.Context, projectID string, pipelineID int) ([]Job, error) {
	endpoint := fmt.Sprintf("/projects/%s/pipelines/%d/jobs", url.PathEscape(projectID), pipelineID)

	iter := ahttp.NewPageIterator(func(ctx context.Context, page int) ([]Job, int, error) {
		opts := &gl.ListJobsOptions{
			ListOptions:    gl.ListOptions{Page: page, PerPage: c.perPage},
			IncludeRetried: gl.Ptr(true),
		}

		var jobs []*gl.Job
		var resp *gl.Response
		err := c.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			jobs, resp, err = c.api.Jobs.ListPipelineJobs(projectID, pipelineID, opts, gl.WithContext(ctx))
			return classify(endpoint, resp, err)
		})
		if err != nil {
			return nil, 0, err
		}

		result := make([]Job, 0, len(jobs))
		for _, j := range jobs {
			result = append(result, jobFromGitLab(j))
		}
		return result, resp.NextPage, nil
	})

	jobs, err := iter.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs of pipeline %d in project %s: %w", pipelineID, projectID, err)
	}

	c.logger.DebugContext(ctx, "listed pipeline jobs",
		"project_id", projectID,
		"pipeline_id", pipelineID,
		"jobs", len(jobs),
		"pages", iter.Pages(),
	)
	return jobs, nil
}

// DownloadJobArtifact fetches the artifacts archive of one job.
// An expired or never-uploaded archive is http.ErrNotFound.
func (c *Client) DownloadJobArtifact(ctx context.Context, projectID string, jobID int) (*Artifact, error) {
	endpoint := fmt.Sprintf("/projects/%s/jobs/%d/artifacts", url.PathEscape(projectID), jobID)

	var body *bytes.Reader
	var resp *gl.Response
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		body, resp, err = c.api.Jobs.GetJobArtifacts(projectID, jobID, gl.WithContext(ctx))
		return classify(endpoint, resp, err)
	})
	if err != nil {
		return nil, fmt.Errorf("download artifacts of job %d: %w", jobID, err)
	}

	art := &Artifact{
		JobID: jobID,
		Size:  body.Size(),
		Body:  body,
	}
	if resp != nil && resp.Response != nil {
		art.ContentType = resp.Header.Get("Content-Type")
		art.Filename = dispositionFilename(resp.Header.Get("Content-Disposition"))
	}

	c.logger.DebugContext(ctx, "downloaded job artifact",
		"project_id", projectID,
		"job_id", jobID,
		"bytes", art.Size,
		"content_type", art.ContentType,
	)
	return art, nil
}

// classify maps a go-gitlab result into the taxonomy:
// status responses become *http.APIError, transport failures *http.NetworkError.
func classify(endpoint string, resp *gl.Response, err error) error {
	if err == nil {
		return nil
	}

	if resp != nil && resp.Response != nil {
		if resp.StatusCode >= 300 {
			var body []byte
			var glErr *gl.ErrorResponse
			if errors.As(err, &glErr) {
				body = glErr.Body
			}
			return ahttp.NewAPIError(serviceName, endpoint, resp.Response, body)
		}
		// 2xx with an undecodable body
		return fmt.Errorf("%w: %s: %v", ahttp.ErrUnexpectedResponse, endpoint, err)
	}

	// Client timeouts land here too; a canceled run is caught by RetryPolicy
	return &ahttp.NetworkError{Service: serviceName, Endpoint: endpoint, Err: err}
}

// dispositionFilename extracts filename= from a Content-Disposition header.
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
