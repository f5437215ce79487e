// gitlog-summary prints a daily digest of the commits made across a set of
// GitHub repositories, grouped by contributor.
//
// Usage:
//
//	# Today's commits in two repositories
//	gitlog-summary --repos org/api,org/web
//
//	# A given day in another timezone, as markdown
//	gitlog-summary --repos org/api --date 2024-03-05 --timezone Asia/Tokyo --format markdown
//
//	# Every repository the token owner can see, with AI narratives
//	gitlog-summary --all-repos --ai-summary
//
//	# Store a token in the OS keychain
//	gitlog-summary auth login
package main

import "os"

func main() {
	os.Exit(Execute())
}
