package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/drewdunne/docshub/internal/provider"
)

const projectPath = "/api/v4/projects/owner%2Frepo"

func newTestProvider(t *testing.T, handler http.HandlerFunc, opts ...Option) *GitLabProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := New("test-token", append([]Option{WithBaseURL(server.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestGitLabProvider_Name(t *testing.T) {
	p, err := New("test-token")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != "gitlab" {
		t.Errorf("Name() = %q, want %q", p.Name(), "gitlab")
	}
}

func TestGitLabProvider_FindPR(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != projectPath+"/merge_requests" {
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing or incorrect authorization header")
		}
		if got := r.URL.Query().Get("source_branch"); got != "feature" {
			t.Errorf("source_branch = %q, want %q", got, "feature")
		}
		if got := r.URL.Query().Get("state"); got != "opened" {
			t.Errorf("state = %q, want %q", got, "opened")
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"id":            999,
				"iid":           42,
				"title":         "Docs update",
				"state":         "opened",
				"source_branch": "feature",
				"target_branch": "main",
				"web_url":       "https://gitlab.com/owner/repo/-/merge_requests/42",
			},
		})
	})

	pr, err := p.FindPR(context.Background(), "owner/repo", "feature")
	if err != nil {
		t.Fatalf("FindPR() error = %v", err)
	}
	if pr == nil {
		t.Fatal("FindPR() returned nil")
	}
	if pr.Number != 42 {
		t.Errorf("Number = %d, want %d", pr.Number, 42)
	}
	if pr.ID != 999 {
		t.Errorf("ID = %d, want %d", pr.ID, 999)
	}
	if pr.State != provider.StateOpen {
		t.Errorf("State = %q, want %q", pr.State, provider.StateOpen)
	}
	if pr.Head != "feature" || pr.Base != "main" {
		t.Errorf("Head/Base = %q/%q, want feature/main", pr.Head, pr.Base)
	}
}

func TestGitLabProvider_FindPR_None(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	pr, err := p.FindPR(context.Background(), "owner/repo", "feature")
	if err != nil {
		t.Fatalf("FindPR() error = %v", err)
	}
	if pr != nil {
		t.Errorf("FindPR() = %+v, want nil", pr)
	}
}

func TestGitLabProvider_ListComments(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != projectPath+"/merge_requests/42/notes" {
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"id":         3,
				"body":       "later",
				"author":     map[string]string{"username": "alice"},
				"created_at": "2024-01-03T00:00:00Z",
			},
			{
				"id":         2,
				"body":       "changed the description",
				"system":     true,
				"author":     map[string]string{"username": "bob"},
				"created_at": "2024-01-02T00:00:00Z",
			},
			{
				"id":         1,
				"body":       "first",
				"author":     map[string]string{"username": "bob"},
				"created_at": "2024-01-01T00:00:00Z",
				"position": map[string]interface{}{
					"new_path": "docs/intro.md",
					"new_line": 7,
				},
			},
		})
	})
	p.identity = provider.Identity{Username: "alice"}

	comments, err := p.ListComments(context.Background(), "owner/repo", 42)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("len(comments) = %d, want 2", len(comments))
	}
	if comments[0].ID != "1" || comments[1].ID != "3" {
		t.Errorf("order = %s,%s, want 1,3", comments[0].ID, comments[1].ID)
	}
	if comments[0].Path != "docs/intro.md" || comments[0].Line != 7 {
		t.Errorf("inline = %s:%d, want docs/intro.md:7", comments[0].Path, comments[0].Line)
	}
	if comments[0].IsOwn {
		t.Error("bob's comment marked as own")
	}
	if !comments[1].IsOwn {
		t.Error("alice's comment not marked as own")
	}
	if comments[1].Inline() {
		t.Error("global note reported as inline")
	}
}

func TestGitLabProvider_ListComments_Empty(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	comments, err := p.ListComments(context.Background(), "owner/repo", 42)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if comments == nil || len(comments) != 0 {
		t.Errorf("ListComments() = %#v, want empty slice", comments)
	}
}

func TestGitLabProvider_AddComment(t *testing.T) {
	var gotBody string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.EscapedPath() != projectPath+"/merge_requests/42/notes" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.EscapedPath())
		}
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		gotBody, _ = req["body"].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         10,
			"body":       gotBody,
			"author":     map[string]string{"username": "svc"},
			"created_at": "2024-01-01T00:00:00Z",
		})
	}, WithIdentity(provider.Identity{DisplayName: "Jane Doe"}))

	c, err := p.AddComment(context.Background(), "owner/repo", 42, "Looks good")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if gotBody != "**[Jane Doe]:** Looks good" {
		t.Errorf("posted body = %q", gotBody)
	}
	if !c.IsOwn {
		t.Error("posted comment not marked as own")
	}
}

func TestGitLabProvider_AddCommentThenList(t *testing.T) {
	var (
		mu    sync.Mutex
		notes []map[string]interface{}
	)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.EscapedPath() != projectPath+"/merge_requests/42/notes" {
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
		if r.Method == http.MethodPost {
			var req map[string]interface{}
			json.NewDecoder(r.Body).Decode(&req)
			n := map[string]interface{}{
				"id":         10 + len(notes),
				"body":       req["body"],
				"author":     map[string]string{"username": "jdoe", "name": "Jane Doe"},
				"created_at": "2024-01-01T00:00:00Z",
			}
			notes = append(notes, n)
			json.NewEncoder(w).Encode(n)
			return
		}
		json.NewEncoder(w).Encode(notes)
	}, WithIdentity(provider.Identity{Username: "jdoe", DisplayName: "Jane Doe"}))

	added, err := p.AddComment(context.Background(), "owner/repo", 42, "Looks good")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	comments, err := p.ListComments(context.Background(), "owner/repo", 42)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("len(comments) = %d, want 1", len(comments))
	}
	if comments[0].ID != added.ID || !comments[0].IsOwn {
		t.Errorf("listed = %+v, added = %+v", comments[0], added)
	}
}

func TestGitLabProvider_AddInlineComment(t *testing.T) {
	var position map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case projectPath + "/merge_requests/42":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":  999,
				"iid": 42,
				"sha": "head-fallback",
				"diff_refs": map[string]string{
					"base_sha":  "base1",
					"head_sha":  "head1",
					"start_sha": "start1",
				},
			})
		case projectPath + "/merge_requests/42/discussions":
			var req map[string]interface{}
			json.NewDecoder(r.Body).Decode(&req)
			position, _ = req["position"].(map[string]interface{})
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": "d1",
				"notes": []map[string]interface{}{
					{"id": 11, "body": req["body"], "author": map[string]string{"username": "svc"}},
				},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
	})

	c, err := p.AddInlineComment(context.Background(), "owner/repo", 42, "docs/intro.md", 5, "typo", "")
	if err != nil {
		t.Fatalf("AddInlineComment() error = %v", err)
	}
	want := map[string]interface{}{
		"position_type": "text",
		"base_sha":      "base1",
		"start_sha":     "start1",
		"head_sha":      "head1",
		"new_path":      "docs/intro.md",
		"new_line":      float64(5),
	}
	for k, v := range want {
		if position[k] != v {
			t.Errorf("position[%s] = %v, want %v", k, position[k], v)
		}
	}
	if c.Path != "docs/intro.md" || c.Line != 5 || !c.IsOwn {
		t.Errorf("comment = %+v", c)
	}
}

func TestGitLabProvider_SubmitReview_RequestChanges(t *testing.T) {
	var mu sync.Mutex
	var notes []string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/approve") {
			t.Error("request_changes must not approve")
		}
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		notes = append(notes, req["body"].(string))
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "body": req["body"]})
	})

	err := p.SubmitReview(context.Background(), "owner/repo", 42, provider.SubmitReviewPayload{
		Action: provider.ActionRequestChanges,
		Body:   "Please fix the table",
	})
	if err != nil {
		t.Fatalf("SubmitReview() error = %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("posted %d notes, want 1", len(notes))
	}
	if !strings.Contains(notes[0], "Request Changes") || !strings.Contains(notes[0], "Please fix the table") {
		t.Errorf("note = %q", notes[0])
	}
}

func TestGitLabProvider_SubmitReview_RequestChangesWithoutBody(t *testing.T) {
	var note string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		note, _ = req["body"].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "body": note})
	})

	if err := p.SubmitReview(context.Background(), "owner/repo", 42, provider.SubmitReviewPayload{Action: provider.ActionRequestChanges}); err != nil {
		t.Fatalf("SubmitReview() error = %v", err)
	}
	if !strings.HasPrefix(note, RequestChangesMarker) || !strings.Contains(note, "Changes requested") {
		t.Errorf("note = %q, want marker prefix", note)
	}
}

func TestGitLabProvider_SubmitReview_Approve(t *testing.T) {
	var approved, commented bool
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case projectPath + "/merge_requests/42/approve":
			approved = true
			w.Write([]byte(`{"id": 999}`))
		case projectPath + "/merge_requests/42/notes":
			commented = true
			w.Write([]byte(`{"id": 1}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.EscapedPath())
		}
	})

	if err := p.SubmitReview(context.Background(), "owner/repo", 42, provider.SubmitReviewPayload{Action: provider.ActionApprove}); err != nil {
		t.Fatalf("SubmitReview() error = %v", err)
	}
	if !approved {
		t.Error("merge request was not approved")
	}
	if commented {
		t.Error("approve without body posted a note")
	}
}

func TestGitLabProvider_SubmitReview_CommentWithoutBody(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.EscapedPath())
	})

	if err := p.SubmitReview(context.Background(), "owner/repo", 42, provider.SubmitReviewPayload{Action: provider.ActionComment}); err != nil {
		t.Fatalf("SubmitReview() error = %v", err)
	}
}

func TestGitLabProvider_SubmitReview_UnknownAction(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s", r.URL.EscapedPath())
	})

	err := p.SubmitReview(context.Background(), "owner/repo", 42, provider.SubmitReviewPayload{Action: "merge"})
	if !errors.Is(err, provider.ErrUnsupportedAction) {
		t.Errorf("error = %v, want ErrUnsupportedAction", err)
	}
}

func TestGitLabProvider_CreatePR(t *testing.T) {
	var req map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.EscapedPath() != projectPath+"/merge_requests" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.EscapedPath())
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            1000,
			"iid":           43,
			"title":         req["title"],
			"state":         "opened",
			"source_branch": "feature",
			"target_branch": "main",
		})
	})

	pr, err := p.CreatePR(context.Background(), "owner/repo", "feature", "main", "")
	if err != nil {
		t.Fatalf("CreatePR() error = %v", err)
	}
	if req["title"] != "Documentation review: feature" {
		t.Errorf("title = %v", req["title"])
	}
	if req["source_branch"] != "feature" || req["target_branch"] != "main" {
		t.Errorf("branches = %v -> %v", req["source_branch"], req["target_branch"])
	}
	if pr.Number != 43 || pr.State != provider.StateOpen {
		t.Errorf("pr = %+v", pr)
	}
}

func TestGitLabProvider_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"403 Forbidden"}`))
	})

	_, err := p.FindPR(context.Background(), "owner/repo", "feature")
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *provider.APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Platform != "gitlab" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestToPullRequest_States(t *testing.T) {
	tests := map[string]provider.State{
		"opened": provider.StateOpen,
		"closed": provider.StateClosed,
		"locked": provider.StateClosed,
		"merged": provider.StateMerged,
	}
	for in, want := range tests {
		if got := toPullRequestState(in); got != want {
			t.Errorf("state %q -> %q, want %q", in, got, want)
		}
	}
}
