// Package httputil provides the HTTP plumbing behind the live content store.
//
//   - [Cache]: file-based response cache with TTL, so repeated runs against
//     the same page do not re-download its bundles
//   - [Retry]: retry with exponential backoff for transient failures
//   - [CheckStatus]: maps HTTP status codes onto retryable and permanent
//     errors
//
// Wrap transient failures in [RetryableError] (or use [Retryable]) and pass
// the operation to [RetryWithBackoff]:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    defer resp.Body.Close()
//	    return httputil.CheckStatus(resp.StatusCode)
//	})
//
// The cache lives in ~/.cache/stackmap/ by default and can be cleared with
// `stackmap cache clear`.
package httputil
