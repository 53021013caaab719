// Package gh wraps the GitHub API calls the updater makes, retrying
// whenever GitHub reports primary or secondary rate limiting.
package gh

import (
	"fmt"
	"log"
	"time"

	"github.com/google/go-github/v58/github"
)

type GitOptions struct {
	GithubClient                  *github.Client
	MaxRetries                    int
	SecondsToSleepWhenRateLimited int
	Logger                        *log.Logger
}

// handleRateLimit runs f until it succeeds, fails with something other
// than rate limiting, or exhausts MaxRetries attempts.
func (o GitOptions) handleRateLimit(f func() (*github.Response, error)) error {
	for retries := 0; ; retries++ {
		if retries > o.MaxRetries {
			return fmt.Errorf("failed max number of retries, tried %d max %d", retries, o.MaxRetries)
		}

		resp, err := f()
		if err == nil {
			return nil
		}
		if resp == nil {
			return err
		}

		githubErr := github.CheckResponse(resp.Response)
		if githubErr == nil {
			return err
		}

		rateLimited, delay := o.checkRateLimiting(githubErr)
		if !rateLimited {
			return githubErr
		}

		o.Logger.Printf("retrying after %v second delay due to rate limiting", delay.Seconds())
		time.Sleep(delay)
	}
}

// handleRateLimitList pages through a list call, applying the same retry
// policy as handleRateLimit to every page.
func (o GitOptions) handleRateLimitList(f func(*github.ListOptions) (*github.Response, error)) error {
	opt := &github.ListOptions{PerPage: 50}

	retries := 0
	for {
		resp, err := f(opt)
		if err != nil {
			if resp == nil {
				return err
			}

			githubErr := github.CheckResponse(resp.Response)
			if githubErr == nil {
				return err
			}

			rateLimited, delay := o.checkRateLimiting(githubErr)
			if !rateLimited {
				return githubErr
			}

			retries++
			if retries > o.MaxRetries {
				return fmt.Errorf("failed max number of retries, tried %d max %d", retries, o.MaxRetries)
			}
			o.Logger.Printf("retrying after %v second delay due to rate limiting", delay.Seconds())
			time.Sleep(delay)
			continue
		}

		if resp.NextPage == 0 {
			return nil
		}
		opt.Page = resp.NextPage
	}
}

// checkRateLimiting reports whether the error is one of GitHub's two rate
// limit responses, and how long to wait before the next attempt.
func (o GitOptions) checkRateLimiting(githubErr error) (bool, time.Duration) {
	rateLimited := false
	delay := time.Duration(o.SecondsToSleepWhenRateLimited) * time.Second

	// A RateLimitError carries the time the primary limit resets.
	if rateLimitError, ok := githubErr.(*github.RateLimitError); ok {
		rateLimited = true
		if retryAfter := time.Until(rateLimitError.Rate.Reset.Time); retryAfter > 0 {
			delay = retryAfter
		}
	}

	// An AbuseRateLimitError may carry a Retry-After header we should honour.
	if abuseRateLimitError, ok := githubErr.(*github.AbuseRateLimitError); ok {
		rateLimited = true
		if abuseRateLimitError.RetryAfter != nil && *abuseRateLimitError.RetryAfter > 0 {
			delay = *abuseRateLimitError.RetryAfter
		}
	}

	return rateLimited, delay
}
