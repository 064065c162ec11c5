package config

// normalizeRepo fills defaults and resolves env references in credentials.
// Configured values take precedence over defaults.
func normalizeRepo(repo RepoConfig, lookup func(string) (string, bool)) RepoConfig {
	repo.DocsDir = coalesce(repo.DocsDir, "docs")
	repo.DefaultBranch = coalesce(repo.DefaultBranch, "main")
	repo.AuthMode = coalesce(repo.AuthMode, AuthToken)
	repo.BitbucketVariant = coalesce(repo.BitbucketVariant, BitbucketCloud)

	repo.Token = ResolveEnv(repo.Token, lookup)
	repo.Username = ResolveEnv(repo.Username, lookup)
	return repo
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
