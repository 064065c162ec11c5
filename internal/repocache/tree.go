package repocache

import (
	"path"
	"sort"
	"strings"
)

// BuildTree turns file paths relative to base into a nested tree. Node
// paths are repository paths, i.e. prefixed with base.
func BuildTree(files []string, base string) []*TreeNode {
	var root []*TreeNode
	dirs := make(map[string]*TreeNode)

	for _, file := range files {
		parts := strings.Split(file, "/")
		level := &root
		current := base

		for i, part := range parts {
			current = path.Join(current, part)
			if i == len(parts)-1 {
				*level = append(*level, &TreeNode{Name: part, Path: current, Type: NodeFile})
				break
			}
			dir, ok := dirs[current]
			if !ok {
				dir = &TreeNode{Name: part, Path: current, Type: NodeDirectory, Children: []*TreeNode{}}
				dirs[current] = dir
				*level = append(*level, dir)
			}
			level = &dir.Children
		}
	}

	sortTree(root)
	if root == nil {
		return []*TreeNode{}
	}
	return root
}

func sortTree(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Type != b.Type {
			return a.Type == NodeDirectory
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
	for _, n := range nodes {
		sortTree(n.Children)
	}
}
