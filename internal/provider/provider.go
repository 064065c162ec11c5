package provider

import "context"

// ReviewProvider defines the review operations every hosting platform adapter supports.
// The repo argument is the platform path of the repository ("owner/repo",
// "group/project", "workspace/slug" or "PROJECT/slug").
type ReviewProvider interface {
	// Name returns the platform name (github, gitlab, bitbucket).
	Name() string

	// FindPR returns the open pull request whose source branch is headBranch.
	// It returns nil and no error when there is none.
	FindPR(ctx context.Context, repo, headBranch string) (*PullRequest, error)

	// ListComments returns global and inline comments in ascending creation order.
	ListComments(ctx context.Context, repo string, number int) ([]Comment, error)

	// AddComment posts a global comment.
	AddComment(ctx context.Context, repo string, number int, body string) (*Comment, error)

	// AddInlineComment posts a comment anchored to a file and line.
	// commitSHA may be empty, in which case the adapter resolves it.
	AddInlineComment(ctx context.Context, repo string, number int, path string, line int, body, commitSHA string) (*Comment, error)

	// SubmitReview submits an approval, a change request or a plain review comment.
	SubmitReview(ctx context.Context, repo string, number int, payload SubmitReviewPayload) error

	// CreatePR opens a pull request from head into base.
	// An empty title is replaced by DefaultTitle(head).
	CreatePR(ctx context.Context, repo, head, base, title string) (*PullRequest, error)
}
