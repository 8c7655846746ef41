// Package gmail fetches message summaries and message bodies from the Gmail
// API on behalf of a signed-in user.
//
// A Fetcher is bound to one access token. List issues one list call and a
// bounded fan-out of metadata calls; Get fetches one full message and runs
// the payload decoder over its MIME tree.
//
// Example usage:
//
//	fetcher, err := gmail.NewFetcher(ctx, accessToken, gmail.Options{})
//	if err != nil {
//	    return err
//	}
//	summaries, err := fetcher.List(ctx, 15)
//
// Failures from the Gmail API come back as *FetchError so callers can tell
// an expired or revoked credential apart from an upstream outage.
package gmail
