// Package bitbucket implements the review provider for Bitbucket Cloud and
// Bitbucket Server / Data Center. Both variants share one type; every
// operation branches on the variant because the two REST APIs differ in
// paths, payloads and capabilities.
package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/drewdunne/docshub/internal/provider"
	"github.com/google/go-querystring/query"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	platform = "bitbucket"
	cloudAPI = "https://api.bitbucket.org/2.0"
)

var _ provider.ReviewProvider = (*BitbucketProvider)(nil)

// bbqlEscaper quotes a value for use inside a BBQL string literal.
var bbqlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Variant selects the Bitbucket flavour.
type Variant string

const (
	VariantCloud  Variant = "cloud"
	VariantServer Variant = "server"
)

// BitbucketProvider implements provider.ReviewProvider for Bitbucket.
type BitbucketProvider struct {
	httpClient *http.Client
	variant    Variant
	origin     string
	baseURL    string
	identity   provider.Identity
	logger     *zap.Logger
}

// Option configures the Bitbucket provider.
type Option func(*BitbucketProvider)

// WithVariant selects cloud (default) or server.
func WithVariant(v Variant) Option {
	return func(p *BitbucketProvider) {
		p.variant = v
	}
}

// WithOrigin sets the Bitbucket Server origin, e.g. https://bitbucket.example.com.
func WithOrigin(origin string) Option {
	return func(p *BitbucketProvider) {
		p.origin = strings.TrimSuffix(origin, "/")
	}
}

// WithBaseURL overrides the full REST base URL for either variant.
func WithBaseURL(baseURL string) Option {
	return func(p *BitbucketProvider) {
		p.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithIdentity sets the identity comments are posted for.
func WithIdentity(id provider.Identity) Option {
	return func(p *BitbucketProvider) {
		p.identity = id
	}
}

// WithLogger sets the logger used for outbound requests.
func WithLogger(logger *zap.Logger) Option {
	return func(p *BitbucketProvider) {
		p.logger = logger
	}
}

// New creates a Bitbucket provider. A server provider needs an origin.
func New(token string, opts ...Option) (*BitbucketProvider, error) {
	p := &BitbucketProvider{variant: VariantCloud, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	switch p.variant {
	case VariantCloud:
		if p.baseURL == "" {
			p.baseURL = cloudAPI
		}
	case VariantServer:
		if p.baseURL == "" {
			if p.origin == "" {
				return nil, provider.ErrMissingOrigin
			}
			p.baseURL = p.origin + "/rest/api/1.0"
		}
	default:
		return nil, fmt.Errorf("unknown bitbucket variant %q", p.variant)
	}

	base := &http.Client{Transport: provider.NewLoggingTransport(nil, p.logger)}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	p.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	return p, nil
}

// Name returns the provider name.
func (p *BitbucketProvider) Name() string {
	return platform
}

// Variant returns the configured flavour.
func (p *BitbucketProvider) Variant() Variant {
	return p.variant
}

// RepoPrefix returns the REST path of repo ("workspace/slug" on cloud,
// "PROJECT/slug" on server) relative to the API base.
func (p *BitbucketProvider) RepoPrefix(repo string) (string, error) {
	owner, slug, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	if p.variant == VariantServer {
		return "/projects/" + url.PathEscape(owner) + "/repos/" + url.PathEscape(slug), nil
	}
	return "/repositories/" + url.PathEscape(owner) + "/" + url.PathEscape(slug), nil
}

func (p *BitbucketProvider) serverPRPath(repo string, number int, suffix string) (string, error) {
	prefix, err := p.RepoPrefix(repo)
	if err != nil {
		return "", err
	}
	return prefix + "/pull-requests/" + strconv.Itoa(number) + suffix, nil
}

// FindPR returns the open pull request whose source branch is headBranch.
func (p *BitbucketProvider) FindPR(ctx context.Context, repo, headBranch string) (*provider.PullRequest, error) {
	prefix, err := p.RepoPrefix(repo)
	if err != nil {
		return nil, err
	}

	if p.variant == VariantServer {
		var page serverPage[serverPR]
		q := serverPRQuery{At: "refs/heads/" + headBranch, Direction: "OUTGOING", State: "OPEN", Limit: 5}
		if err := p.do(ctx, http.MethodGet, prefix+"/pull-requests", q, nil, &page); err != nil {
			return nil, fmt.Errorf("listing pull requests: %w", err)
		}
		for _, pr := range page.Values {
			if pr.FromRef.DisplayID == headBranch || pr.FromRef.ID == "refs/heads/"+headBranch {
				return serverPullRequest(pr), nil
			}
		}
		return nil, nil
	}

	var page cloudPage[cloudPR]
	q := cloudPRQuery{Q: fmt.Sprintf(`source.branch.name="%s" AND state="OPEN"`, bbqlEscaper.Replace(headBranch)), PageLen: 5}
	if err := p.do(ctx, http.MethodGet, prefix+"/pullrequests", q, nil, &page); err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}
	for _, pr := range page.Values {
		if pr.Source.Branch.Name == headBranch {
			return cloudPullRequest(pr), nil
		}
	}
	return nil, nil
}

// ListComments returns every comment on the pull request, oldest first.
func (p *BitbucketProvider) ListComments(ctx context.Context, repo string, number int) ([]provider.Comment, error) {
	var (
		result []provider.Comment
		err    error
	)
	if p.variant == VariantServer {
		result, err = p.listServerComments(ctx, repo, number)
	} else {
		result, err = p.listCloudComments(ctx, repo, number)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []provider.Comment{}
	}
	provider.SortComments(result)
	return result, nil
}

func (p *BitbucketProvider) listCloudComments(ctx context.Context, repo string, number int) ([]provider.Comment, error) {
	path, err := p.cloudPRPath(repo, number, "/comments")
	if err != nil {
		return nil, err
	}

	var result []provider.Comment
	q := cloudPageQuery{PageLen: 100, Page: 1}
	for {
		var page cloudPage[cloudComment]
		if err := p.do(ctx, http.MethodGet, path, q, nil, &page); err != nil {
			return nil, fmt.Errorf("listing comments: %w", err)
		}
		for _, c := range page.Values {
			if c.Deleted {
				continue
			}
			result = append(result, p.cloudComment(c))
		}
		if page.Next == "" {
			return result, nil
		}
		q.Page++
	}
}

func (p *BitbucketProvider) listServerComments(ctx context.Context, repo string, number int) ([]provider.Comment, error) {
	path, err := p.serverPRPath(repo, number, "/activities")
	if err != nil {
		return nil, err
	}

	var result []provider.Comment
	seen := make(map[int]bool)
	q := serverPageQuery{Limit: 100}
	for {
		var page serverPage[serverActivity]
		if err := p.do(ctx, http.MethodGet, path, q, nil, &page); err != nil {
			return nil, fmt.Errorf("listing activities: %w", err)
		}
		for _, a := range page.Values {
			if a.Action != "COMMENTED" || a.Comment == nil {
				continue
			}
			// EDITED and REPLIED activities repeat comments already
			// nested under the thread's ADDED activity.
			if a.CommentAction != "" && a.CommentAction != "ADDED" {
				continue
			}
			anchor := a.CommentAnchor
			if anchor == nil {
				anchor = a.Comment.Anchor
			}
			result = p.appendServerThread(result, seen, *a.Comment, anchor)
		}
		if page.IsLastPage || page.NextPageStart == 0 {
			return result, nil
		}
		q.Start = page.NextPageStart
	}
}

// appendServerThread flattens a comment and its replies. Replies inherit
// the anchor of the thread root.
func (p *BitbucketProvider) appendServerThread(dst []provider.Comment, seen map[int]bool, c serverComment, anchor *serverAnchor) []provider.Comment {
	if !seen[c.ID] {
		seen[c.ID] = true
		dst = append(dst, p.serverComment(c, anchor))
	}
	for _, reply := range c.Comments {
		dst = p.appendServerThread(dst, seen, reply, anchor)
	}
	return dst
}

// AddComment posts a global comment on the pull request.
func (p *BitbucketProvider) AddComment(ctx context.Context, repo string, number int, body string) (*provider.Comment, error) {
	return p.postComment(ctx, repo, number, provider.Attribute(p.identity.DisplayName, body), "", 0)
}

// AddInlineComment posts a comment anchored to line of path on the new side
// of the diff. Bitbucket anchors to the current diff, so commitSHA is unused.
func (p *BitbucketProvider) AddInlineComment(ctx context.Context, repo string, number int, path string, line int, body, commitSHA string) (*provider.Comment, error) {
	c, err := p.postComment(ctx, repo, number, provider.Attribute(p.identity.DisplayName, body), path, line)
	if err != nil {
		return nil, err
	}
	c.Path, c.Line = path, line
	return c, nil
}

func (p *BitbucketProvider) postComment(ctx context.Context, repo string, number int, body, path string, line int) (*provider.Comment, error) {
	if p.variant == VariantServer {
		endpoint, err := p.serverPRPath(repo, number, "/comments")
		if err != nil {
			return nil, err
		}
		req := serverCommentRequest{Text: body}
		if path != "" {
			req.Anchor = &serverAnchor{Path: path, Line: line, LineType: "ADDED", FileType: "TO"}
		}
		var created serverComment
		if err := p.do(ctx, http.MethodPost, endpoint, nil, req, &created); err != nil {
			return nil, fmt.Errorf("posting comment: %w", err)
		}
		c := p.serverComment(created, created.Anchor)
		c.IsOwn = true
		return &c, nil
	}

	endpoint, err := p.cloudPRPath(repo, number, "/comments")
	if err != nil {
		return nil, err
	}
	req := cloudCommentRequest{Content: cloudContent{Raw: body}}
	if path != "" {
		to := line
		req.Inline = &cloudInline{Path: path, To: &to}
	}
	var created cloudComment
	if err := p.do(ctx, http.MethodPost, endpoint, nil, req, &created); err != nil {
		return nil, fmt.Errorf("posting comment: %w", err)
	}
	c := p.cloudComment(created)
	c.IsOwn = true
	return &c, nil
}

// SubmitReview posts draft comments, then applies the action. On server,
// request_changes sets the caller's participant status to NEEDS_WORK and
// therefore needs a username.
func (p *BitbucketProvider) SubmitReview(ctx context.Context, repo string, number int, payload provider.SubmitReviewPayload) error {
	if !payload.Action.Valid() {
		return fmt.Errorf("%w: %q", provider.ErrUnsupportedAction, payload.Action)
	}
	if payload.Action == provider.ActionRequestChanges && p.variant == VariantServer && p.identity.Username == "" {
		return provider.ErrMissingUsername
	}

	for _, c := range payload.Comments {
		if _, err := p.AddInlineComment(ctx, repo, number, c.Path, c.Line, c.Body, ""); err != nil {
			return err
		}
	}

	switch payload.Action {
	case provider.ActionApprove:
		if err := p.approve(ctx, repo, number); err != nil {
			return err
		}
	case provider.ActionRequestChanges:
		if err := p.requestChanges(ctx, repo, number); err != nil {
			return err
		}
	}

	if payload.Body != "" {
		if _, err := p.AddComment(ctx, repo, number, payload.Body); err != nil {
			return err
		}
	}
	return nil
}

func (p *BitbucketProvider) approve(ctx context.Context, repo string, number int) error {
	var path string
	var err error
	if p.variant == VariantServer {
		path, err = p.serverPRPath(repo, number, "/approve")
	} else {
		path, err = p.cloudPRPath(repo, number, "/approve")
	}
	if err != nil {
		return err
	}
	if err := p.do(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("approving pull request: %w", err)
	}
	return nil
}

func (p *BitbucketProvider) requestChanges(ctx context.Context, repo string, number int) error {
	if p.variant == VariantServer {
		path, err := p.serverPRPath(repo, number, "/participants/"+url.PathEscape(p.identity.Username))
		if err != nil {
			return err
		}
		req := serverParticipant{User: serverUser{Name: p.identity.Username}, Approved: false, Status: "NEEDS_WORK"}
		if err := p.do(ctx, http.MethodPut, path, nil, req, nil); err != nil {
			return fmt.Errorf("requesting changes: %w", err)
		}
		return nil
	}

	path, err := p.cloudPRPath(repo, number, "/request-changes")
	if err != nil {
		return err
	}
	if err := p.do(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("requesting changes: %w", err)
	}
	return nil
}

func (p *BitbucketProvider) cloudPRPath(repo string, number int, suffix string) (string, error) {
	prefix, err := p.RepoPrefix(repo)
	if err != nil {
		return "", err
	}
	return prefix + "/pullrequests/" + strconv.Itoa(number) + suffix, nil
}

// CreatePR opens a pull request from head into base.
func (p *BitbucketProvider) CreatePR(ctx context.Context, repo, head, base, title string) (*provider.PullRequest, error) {
	if title == "" {
		title = provider.DefaultTitle(head)
	}
	prefix, err := p.RepoPrefix(repo)
	if err != nil {
		return nil, err
	}

	if p.variant == VariantServer {
		key, slug, _ := splitRepo(repo)
		r := &serverRepo{Slug: slug, Project: serverProject{Key: key}}
		req := serverCreatePR{
			Title:   title,
			FromRef: serverRef{ID: "refs/heads/" + head, Repository: r},
			ToRef:   serverRef{ID: "refs/heads/" + base, Repository: r},
		}
		var created serverPR
		if err := p.do(ctx, http.MethodPost, prefix+"/pull-requests", nil, req, &created); err != nil {
			return nil, fmt.Errorf("creating pull request: %w", err)
		}
		return serverPullRequest(created), nil
	}

	req := cloudCreatePR{Title: title}
	req.Source.Branch.Name = head
	req.Destination.Branch.Name = base
	var created cloudPR
	if err := p.do(ctx, http.MethodPost, prefix+"/pullrequests", nil, req, &created); err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}
	return cloudPullRequest(created), nil
}

// do sends a JSON request. params, when non-nil, is encoded into the query
// string; in, when non-nil, is the JSON body; out receives the decoded
// response body.
func (p *BitbucketProvider) do(ctx context.Context, method, path string, params, in, out interface{}) error {
	u := p.baseURL + path
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("encoding query: %w", err)
		}
		if enc := v.Encode(); enc != "" {
			u += "?" + enc
		}
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &provider.APIError{Platform: platform, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (p *BitbucketProvider) cloudComment(c cloudComment) provider.Comment {
	author := "unknown"
	if c.User != nil {
		if c.User.Nickname != "" {
			author = c.User.Nickname
		} else if c.User.DisplayName != "" {
			author = c.User.DisplayName
		}
	}
	result := provider.Comment{
		ID:     strconv.Itoa(c.ID),
		Author: author,
		Body:   c.Content.Raw,
		IsOwn:  p.identity.Owns(author),
	}
	if t, err := time.Parse(time.RFC3339Nano, c.CreatedOn); err == nil {
		result.CreatedAt = t
	}
	if c.Inline != nil && c.Inline.Path != "" && c.Inline.To != nil {
		result.Path, result.Line = c.Inline.Path, *c.Inline.To
	}
	return result
}

func (p *BitbucketProvider) serverComment(c serverComment, anchor *serverAnchor) provider.Comment {
	author := c.Author.Name
	if author == "" {
		author = c.Author.DisplayName
	}
	if author == "" {
		author = "unknown"
	}
	result := provider.Comment{
		ID:        strconv.Itoa(c.ID),
		Author:    author,
		Body:      c.Text,
		CreatedAt: time.UnixMilli(c.CreatedDate).UTC(),
		IsOwn:     p.identity.Owns(author),
	}
	if anchor != nil && anchor.Path != "" && anchor.Line > 0 {
		result.Path, result.Line = anchor.Path, anchor.Line
	}
	return result
}

func cloudPullRequest(pr cloudPR) *provider.PullRequest {
	return &provider.PullRequest{
		ID:     int64(pr.ID),
		Number: pr.ID,
		Title:  pr.Title,
		State:  toState(pr.State),
		Head:   pr.Source.Branch.Name,
		Base:   pr.Destination.Branch.Name,
		URL:    pr.Links.HTML.Href,
	}
}

func serverPullRequest(pr serverPR) *provider.PullRequest {
	result := &provider.PullRequest{
		ID:     int64(pr.ID),
		Number: pr.ID,
		Title:  pr.Title,
		State:  toState(pr.State),
		Head:   branchName(pr.FromRef),
		Base:   branchName(pr.ToRef),
	}
	if len(pr.Links.Self) > 0 {
		result.URL = pr.Links.Self[0].Href
	}
	return result
}

func branchName(ref serverRef) string {
	if ref.DisplayID != "" {
		return ref.DisplayID
	}
	return strings.TrimPrefix(ref.ID, "refs/heads/")
}

func toState(s string) provider.State {
	switch s {
	case "OPEN":
		return provider.StateOpen
	case "MERGED":
		return provider.StateMerged
	case "DECLINED", "SUPERSEDED":
		return provider.StateClosed
	}
	return provider.State(strings.ToLower(s))
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q: expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}
