package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/drewdunne/docshub/internal/provider"
	"github.com/xanzy/go-gitlab"
	"go.uber.org/zap"
)

const (
	platform = "gitlab"

	// RequestChangesMarker prefixes the comment that stands in for a change request.
	RequestChangesMarker = "🔄 **Request Changes:**"
	changesRequested     = RequestChangesMarker + " Changes requested."
)

var _ provider.ReviewProvider = (*GitLabProvider)(nil)

// GitLabProvider implements provider.ReviewProvider for GitLab.com and self-managed GitLab.
type GitLabProvider struct {
	client   *gitlab.Client
	identity provider.Identity
	baseURL  string
	logger   *zap.Logger
}

// Option configures the GitLab provider.
type Option func(*GitLabProvider)

// WithBaseURL sets a custom instance URL (self-managed GitLab, tests).
// The /api/v4 suffix is added by the client when missing.
func WithBaseURL(baseURL string) Option {
	return func(p *GitLabProvider) {
		p.baseURL = baseURL
	}
}

// WithIdentity sets the identity comments are posted for.
func WithIdentity(id provider.Identity) Option {
	return func(p *GitLabProvider) {
		p.identity = id
	}
}

// WithLogger sets the logger used for outbound requests.
func WithLogger(logger *zap.Logger) Option {
	return func(p *GitLabProvider) {
		p.logger = logger
	}
}

// New creates a new GitLab provider authenticating with a bearer token.
func New(token string, opts ...Option) (*GitLabProvider, error) {
	p := &GitLabProvider{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []gitlab.ClientOptionFunc{
		gitlab.WithHTTPClient(&http.Client{Transport: provider.NewLoggingTransport(nil, p.logger)}),
		gitlab.WithoutRetries(),
	}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(p.baseURL))
	}

	client, err := gitlab.NewOAuthClient(token, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns the provider name.
func (p *GitLabProvider) Name() string {
	return platform
}

// FindPR returns the open merge request whose source branch is headBranch.
func (p *GitLabProvider) FindPR(ctx context.Context, repo, headBranch string) (*provider.PullRequest, error) {
	mrs, _, err := p.client.MergeRequests.ListProjectMergeRequests(repo, &gitlab.ListProjectMergeRequestsOptions{
		ListOptions:  gitlab.ListOptions{PerPage: 5},
		State:        gitlab.Ptr("opened"),
		SourceBranch: gitlab.Ptr(headBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing merge requests: %w", apiError(err))
	}

	for _, mr := range mrs {
		if mr.SourceBranch == headBranch {
			return toPullRequest(mr), nil
		}
	}
	return nil, nil
}

// ListComments returns the user-authored notes of a merge request. System
// notes ("changed the description", ...) are not review comments.
func (p *GitLabProvider) ListComments(ctx context.Context, repo string, number int) ([]provider.Comment, error) {
	opts := &gitlab.ListMergeRequestNotesOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}

	var result []provider.Comment
	for {
		notes, resp, err := p.client.Notes.ListMergeRequestNotes(repo, number, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing notes: %w", apiError(err))
		}
		for _, n := range notes {
			if n.System {
				continue
			}
			result = append(result, p.toComment(n))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if result == nil {
		result = []provider.Comment{}
	}
	provider.SortComments(result)
	return result, nil
}

// AddComment posts a merge request note.
func (p *GitLabProvider) AddComment(ctx context.Context, repo string, number int, body string) (*provider.Comment, error) {
	n, _, err := p.client.Notes.CreateMergeRequestNote(repo, number, &gitlab.CreateMergeRequestNoteOptions{
		Body: gitlab.Ptr(provider.Attribute(p.identity.DisplayName, body)),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("posting note: %w", apiError(err))
	}

	c := p.toComment(n)
	c.IsOwn = true
	return &c, nil
}

// AddInlineComment starts a diff discussion on the new version of path.
// The diff refs of the merge request supply the base and start commits;
// commitSHA, when given, overrides the head commit.
func (p *GitLabProvider) AddInlineComment(ctx context.Context, repo string, number int, path string, line int, body, commitSHA string) (*provider.Comment, error) {
	mr, _, err := p.client.MergeRequests.GetMergeRequest(repo, number, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching merge request: %w", apiError(err))
	}

	headSHA := commitSHA
	if headSHA == "" {
		headSHA = mr.DiffRefs.HeadSha
	}
	if headSHA == "" {
		headSHA = mr.SHA
	}
	startSHA := mr.DiffRefs.StartSha
	if startSHA == "" {
		startSHA = mr.DiffRefs.BaseSha
	}

	d, _, err := p.client.Discussions.CreateMergeRequestDiscussion(repo, number, &gitlab.CreateMergeRequestDiscussionOptions{
		Body: gitlab.Ptr(provider.Attribute(p.identity.DisplayName, body)),
		Position: &gitlab.PositionOptions{
			PositionType: gitlab.Ptr("text"),
			BaseSHA:      gitlab.Ptr(mr.DiffRefs.BaseSha),
			StartSHA:     gitlab.Ptr(startSHA),
			HeadSHA:      gitlab.Ptr(headSHA),
			NewPath:      gitlab.Ptr(path),
			NewLine:      gitlab.Ptr(line),
		},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating discussion: %w", apiError(err))
	}
	if len(d.Notes) == 0 {
		return nil, fmt.Errorf("creating discussion: response for %s:%d contains no note", path, line)
	}

	c := p.toComment(d.Notes[0])
	c.Path, c.Line = path, line
	c.IsOwn = true
	return &c, nil
}

// SubmitReview approves the merge request or posts the review as a note.
// GitLab has no change-request primitive, so request_changes becomes a
// note starting with RequestChangesMarker. Draft comments are posted as
// diff discussions before the action.
func (p *GitLabProvider) SubmitReview(ctx context.Context, repo string, number int, payload provider.SubmitReviewPayload) error {
	if !payload.Action.Valid() {
		return fmt.Errorf("%w: %q", provider.ErrUnsupportedAction, payload.Action)
	}

	for _, c := range payload.Comments {
		if _, err := p.AddInlineComment(ctx, repo, number, c.Path, c.Line, c.Body, ""); err != nil {
			return err
		}
	}

	switch payload.Action {
	case provider.ActionApprove:
		if _, _, err := p.client.MergeRequestApprovals.ApproveMergeRequest(repo, number, &gitlab.ApproveMergeRequestOptions{}, gitlab.WithContext(ctx)); err != nil {
			return fmt.Errorf("approving merge request: %w", apiError(err))
		}
		if payload.Body != "" {
			if _, err := p.AddComment(ctx, repo, number, payload.Body); err != nil {
				return err
			}
		}
	case provider.ActionRequestChanges:
		body := changesRequested
		if payload.Body != "" {
			body = RequestChangesMarker + " " + payload.Body
		}
		if _, err := p.AddComment(ctx, repo, number, body); err != nil {
			return err
		}
	case provider.ActionComment:
		if payload.Body != "" {
			if _, err := p.AddComment(ctx, repo, number, payload.Body); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreatePR opens a merge request from head into base.
func (p *GitLabProvider) CreatePR(ctx context.Context, repo, head, base, title string) (*provider.PullRequest, error) {
	if title == "" {
		title = provider.DefaultTitle(head)
	}

	mr, _, err := p.client.MergeRequests.CreateMergeRequest(repo, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		SourceBranch: gitlab.Ptr(head),
		TargetBranch: gitlab.Ptr(base),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating merge request: %w", apiError(err))
	}
	return toPullRequest(mr), nil
}

func (p *GitLabProvider) toComment(n *gitlab.Note) provider.Comment {
	author := n.Author.Username
	if author == "" {
		author = "unknown"
	}
	c := provider.Comment{
		ID:     strconv.Itoa(n.ID),
		Author: author,
		Body:   n.Body,
		IsOwn:  p.identity.Owns(author),
	}
	if n.CreatedAt != nil {
		c.CreatedAt = *n.CreatedAt
	}
	if n.Position != nil && n.Position.NewPath != "" && n.Position.NewLine > 0 {
		c.Path, c.Line = n.Position.NewPath, n.Position.NewLine
	}
	return c
}

func toPullRequestState(state string) provider.State {
	switch state {
	case "opened":
		return provider.StateOpen
	case "closed", "locked":
		return provider.StateClosed
	case "merged":
		return provider.StateMerged
	}
	return provider.State(state)
}

func toPullRequest(mr *gitlab.MergeRequest) *provider.PullRequest {
	return &provider.PullRequest{
		ID:     int64(mr.ID),
		Number: mr.IID,
		Title:  mr.Title,
		State:  toPullRequestState(mr.State),
		Head:   mr.SourceBranch,
		Base:   mr.TargetBranch,
		URL:    mr.WebURL,
	}
}

// apiError converts go-gitlab error responses into provider.APIError.
func apiError(err error) error {
	var glErr *gitlab.ErrorResponse
	if errors.As(err, &glErr) && glErr.Response != nil {
		body := strings.TrimSpace(string(glErr.Body))
		if body == "" {
			body = glErr.Message
		}
		return &provider.APIError{Platform: platform, StatusCode: glErr.Response.StatusCode, Body: body}
	}
	return err
}
