package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/drewdunne/docshub/internal/provider"
	"github.com/google/go-github/v60/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const platform = "github"

var _ provider.ReviewProvider = (*GitHubProvider)(nil)

// GitHubProvider implements provider.ReviewProvider for GitHub and GitHub Enterprise.
//
// Inline comments use the REST review-comment endpoint anchored to the head
// commit. GitHub only accepts such comments on lines inside a diff hunk of
// the pull request; anything else is rejected with ErrLineNotInDiff.
type GitHubProvider struct {
	client   *github.Client
	identity provider.Identity
	baseURL  string
	logger   *zap.Logger
}

// Option configures the GitHub provider.
type Option func(*GitHubProvider)

// WithBaseURL sets a custom API base URL (GitHub Enterprise, tests).
func WithBaseURL(url string) Option {
	return func(p *GitHubProvider) {
		p.baseURL = url
	}
}

// WithIdentity sets the identity comments are posted for.
func WithIdentity(id provider.Identity) Option {
	return func(p *GitHubProvider) {
		p.identity = id
	}
}

// WithLogger sets the logger used for outbound requests.
func WithLogger(logger *zap.Logger) Option {
	return func(p *GitHubProvider) {
		p.logger = logger
	}
}

// New creates a new GitHub provider.
func New(token string, opts ...Option) *GitHubProvider {
	p := &GitHubProvider{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	base := &http.Client{Transport: provider.NewLoggingTransport(nil, p.logger)}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	p.client = github.NewClient(oauth2.NewClient(ctx, ts))

	if p.baseURL != "" {
		p.client.BaseURL, _ = p.client.BaseURL.Parse(strings.TrimSuffix(p.baseURL, "/") + "/")
	}

	return p
}

// Name returns the provider name.
func (p *GitHubProvider) Name() string {
	return platform
}

// FindPR returns the open pull request for headBranch.
func (p *GitHubProvider) FindPR(ctx context.Context, repo, headBranch string) (*provider.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	prs, _, err := p.client.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{
		State:       "open",
		Head:        owner + ":" + headBranch,
		ListOptions: github.ListOptions{PerPage: 5},
	})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", apiError(err))
	}

	for _, pr := range prs {
		if pr.GetHead().GetRef() == headBranch {
			return toPullRequest(pr), nil
		}
	}
	return nil, nil
}

// ListComments merges issue comments and review comments by creation time.
func (p *GitHubProvider) ListComments(ctx context.Context, repo string, number int) ([]provider.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var issueComments []*github.IssueComment
	var reviewComments []*github.PullRequestComment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
		for {
			page, resp, err := p.client.Issues.ListComments(gctx, owner, name, number, opts)
			if err != nil {
				return fmt.Errorf("listing issue comments: %w", apiError(err))
			}
			issueComments = append(issueComments, page...)
			if resp.NextPage == 0 {
				return nil
			}
			opts.Page = resp.NextPage
		}
	})
	g.Go(func() error {
		opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
		for {
			page, resp, err := p.client.PullRequests.ListComments(gctx, owner, name, number, opts)
			if err != nil {
				return fmt.Errorf("listing review comments: %w", apiError(err))
			}
			reviewComments = append(reviewComments, page...)
			if resp.NextPage == 0 {
				return nil
			}
			opts.Page = resp.NextPage
		}
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]provider.Comment, 0, len(issueComments)+len(reviewComments))
	for _, c := range issueComments {
		result = append(result, p.issueComment(c))
	}
	for _, c := range reviewComments {
		result = append(result, p.reviewComment(c))
	}
	provider.SortComments(result)
	return result, nil
}

// AddComment posts a global comment on the pull request conversation.
func (p *GitHubProvider) AddComment(ctx context.Context, repo string, number int, body string) (*provider.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	c, _, err := p.client.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
		Body: github.String(provider.Attribute(p.identity.DisplayName, body)),
	})
	if err != nil {
		return nil, fmt.Errorf("posting comment: %w", apiError(err))
	}

	result := p.issueComment(c)
	result.IsOwn = true
	return &result, nil
}

// AddInlineComment posts a review comment on the right side of the diff.
// The head commit is looked up when commitSHA is empty.
func (p *GitHubProvider) AddInlineComment(ctx context.Context, repo string, number int, path string, line int, body, commitSHA string) (*provider.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	if commitSHA == "" {
		pr, _, err := p.client.PullRequests.Get(ctx, owner, name, number)
		if err != nil {
			return nil, fmt.Errorf("fetching pull request: %w", apiError(err))
		}
		commitSHA = pr.GetHead().GetSHA()
	}

	c, _, err := p.client.PullRequests.CreateComment(ctx, owner, name, number, &github.PullRequestComment{
		Body:     github.String(provider.Attribute(p.identity.DisplayName, body)),
		CommitID: github.String(commitSHA),
		Path:     github.String(path),
		Line:     github.Int(line),
		Side:     github.String("RIGHT"),
	})
	if err != nil {
		err = apiError(err)
		if provider.StatusCode(err) == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("posting inline comment: %w", provider.LineNotInDiff(path, line, err))
		}
		return nil, fmt.Errorf("posting inline comment: %w", err)
	}

	result := p.reviewComment(c)
	if result.Path == "" {
		result.Path, result.Line = path, line
	}
	result.IsOwn = true
	return &result, nil
}

// SubmitReview creates a review with the matching event in a single call.
func (p *GitHubProvider) SubmitReview(ctx context.Context, repo string, number int, payload provider.SubmitReviewPayload) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	event, err := reviewEvent(payload.Action)
	if err != nil {
		return err
	}

	review := &github.PullRequestReviewRequest{Event: github.String(event)}
	if payload.Body != "" {
		review.Body = github.String(provider.Attribute(p.identity.DisplayName, payload.Body))
	}
	for _, c := range payload.Comments {
		review.Comments = append(review.Comments, &github.DraftReviewComment{
			Path: github.String(c.Path),
			Line: github.Int(c.Line),
			Body: github.String(provider.Attribute(p.identity.DisplayName, c.Body)),
			Side: github.String("RIGHT"),
		})
	}

	if _, _, err := p.client.PullRequests.CreateReview(ctx, owner, name, number, review); err != nil {
		return fmt.Errorf("submitting review: %w", apiError(err))
	}
	return nil
}

// CreatePR opens a pull request from head into base.
func (p *GitHubProvider) CreatePR(ctx context.Context, repo, head, base, title string) (*provider.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = provider.DefaultTitle(head)
	}

	pr, _, err := p.client.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(head),
		Base:  github.String(base),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", apiError(err))
	}
	return toPullRequest(pr), nil
}

func (p *GitHubProvider) issueComment(c *github.IssueComment) provider.Comment {
	author := login(c.GetUser())
	return provider.Comment{
		ID:        strconv.FormatInt(c.GetID(), 10),
		Author:    author,
		Body:      c.GetBody(),
		CreatedAt: c.GetCreatedAt().Time,
		IsOwn:     p.identity.Owns(author),
	}
}

func (p *GitHubProvider) reviewComment(c *github.PullRequestComment) provider.Comment {
	author := login(c.GetUser())
	line := c.GetLine()
	if line == 0 {
		line = c.GetOriginalLine()
	}
	result := provider.Comment{
		ID:        strconv.FormatInt(c.GetID(), 10),
		Author:    author,
		Body:      c.GetBody(),
		CreatedAt: c.GetCreatedAt().Time,
		IsOwn:     p.identity.Owns(author),
	}
	if c.GetPath() != "" && line > 0 {
		result.Path, result.Line = c.GetPath(), line
	}
	return result
}

func toPullRequest(pr *github.PullRequest) *provider.PullRequest {
	state := provider.StateOpen
	if pr.GetState() == "closed" {
		state = provider.StateClosed
		if pr.MergedAt != nil {
			state = provider.StateMerged
		}
	}
	return &provider.PullRequest{
		ID:     pr.GetID(),
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		State:  state,
		Head:   pr.GetHead().GetRef(),
		Base:   pr.GetBase().GetRef(),
		URL:    pr.GetHTMLURL(),
	}
}

func reviewEvent(action provider.Action) (string, error) {
	switch action {
	case provider.ActionApprove:
		return "APPROVE", nil
	case provider.ActionRequestChanges:
		return "REQUEST_CHANGES", nil
	case provider.ActionComment:
		return "COMMENT", nil
	}
	return "", fmt.Errorf("%w: %q", provider.ErrUnsupportedAction, action)
}

func login(u *github.User) string {
	if l := u.GetLogin(); l != "" {
		return l
	}
	return "unknown"
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q: expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

// apiError converts go-github errors carrying a response into provider.APIError.
// Body holds the raw response text; go-github rewinds the body after decoding it.
// The decoded message is used only when the raw text is unavailable.
func apiError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		body := rawBody(rateErr.Response)
		if body == "" {
			body = rateErr.Message
		}
		return &provider.APIError{Platform: platform, StatusCode: rateErr.Response.StatusCode, Body: body}
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		body := rawBody(ghErr.Response)
		if body == "" {
			body = ghErr.Message
			for _, e := range ghErr.Errors {
				detail := e.Message
				if detail == "" {
					detail = e.Code
				}
				body += "; " + detail
			}
		}
		return &provider.APIError{Platform: platform, StatusCode: ghErr.Response.StatusCode, Body: body}
	}
	return err
}

func rawBody(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return strings.TrimSpace(string(data))
}
