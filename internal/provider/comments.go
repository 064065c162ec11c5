package provider

import (
	"fmt"
	"sort"
)

// DefaultTitle returns the pull request title used when none is supplied.
func DefaultTitle(head string) string {
	return "Documentation review: " + head
}

// Attribute tags body with the acting user's name so that comments posted
// through one shared token stay distinguishable. It is a no-op without a name.
func Attribute(name, body string) string {
	if name == "" {
		return body
	}
	return fmt.Sprintf("**[%s]:** %s", name, body)
}

// SortComments orders comments by creation time. Equal timestamps keep their input order.
func SortComments(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
}

// Identity is the person an adapter acts for.
type Identity struct {
	// DisplayName prefixes posted comment bodies when set.
	DisplayName string
	// Username is the platform login used to recognise own comments.
	Username string
}

// Owns reports whether author is the acting identity.
func (id Identity) Owns(author string) bool {
	who := id.Username
	if who == "" {
		who = id.DisplayName
	}
	return who != "" && author == who
}
