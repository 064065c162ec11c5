package provider

import "time"

// State is the normalized lifecycle state of a pull request.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged"
)

// Action is a formal review action.
type Action string

const (
	ActionApprove        Action = "approve"
	ActionRequestChanges Action = "request_changes"
	ActionComment        Action = "comment"
)

// Valid reports whether a is a known review action.
func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionRequestChanges, ActionComment:
		return true
	}
	return false
}

// PullRequest represents an open pull request (GitHub, Bitbucket) or merge request (GitLab).
type PullRequest struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"` // PR number (GitHub), MR IID (GitLab), PR id (Bitbucket)
	Title  string `json:"title"`
	State  State  `json:"state"`
	Head   string `json:"head"`
	Base   string `json:"base"`
	URL    string `json:"url"`
}

// Comment represents a review comment. Path and Line are set together for
// inline comments and are both zero for global comments.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Path      string    `json:"path,omitempty"`
	Line      int       `json:"line,omitempty"`
	IsOwn     bool      `json:"isOwn"`
}

// Inline reports whether the comment is anchored to a file line.
func (c Comment) Inline() bool {
	return c.Path != "" && c.Line > 0
}

// DraftComment is an inline comment submitted together with a review.
type DraftComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Body string `json:"body"`
}

// SubmitReviewPayload is the input of ReviewProvider.SubmitReview.
type SubmitReviewPayload struct {
	Action   Action         `json:"action"`
	Body     string         `json:"body,omitempty"`
	Comments []DraftComment `json:"comments,omitempty"`
}
