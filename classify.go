package flairbot

import (
	"strings"
	"time"

	"flairbot/reddit"
)

// Decision is the single outcome of classifying one post.
type Decision int

const (
	DecideSkipMod Decision = iota
	DecideNotify
	DecideSkipFlaired
	DecideSkipPreTracking
	DecideRemove
	DecideRemind
	DecideWait
)

func (d Decision) String() string {
	switch d {
	case DecideSkipMod:
		return "mod"
	case DecideNotify:
		return "notify"
	case DecideSkipFlaired:
		return "flaired"
	case DecideSkipPreTracking:
		return "too_old"
	case DecideRemove:
		return "remove"
	case DecideRemind:
		return "remind"
	case DecideWait:
		return "wait"
	default:
		return "unknown"
	}
}

// Policy bundles the thresholds the classifier runs against.
type Policy struct {
	ReminderAge     time.Duration
	RemovalAge      time.Duration
	BatchSize       int
	RetentionFactor int

	// SpecialCase, when non-nil, enables the transitional mislabeled-art
	// notice. It is configured rather than hard-coded so it can be retired
	// by deleting its config block.
	SpecialCase *SpecialCase
}

// LedgerCap is the prune bound: RetentionFactor times the fetch batch size.
func (p Policy) LedgerCap() int {
	return p.RetentionFactor * p.BatchSize
}

// SpecialCase matches posts in a specific flair category that look like
// uncredited original content: link posts not marked OC whose title lacks
// the marker substring.
type SpecialCase struct {
	FlairText   string
	TitleMarker string
	Reply       string
}

func (sc *SpecialCase) Match(post reddit.Post) bool {
	return post.FlairText == sc.FlairText &&
		!post.IsSelf &&
		!post.IsOriginalContent &&
		!strings.Contains(strings.ToLower(post.Title), strings.ToLower(sc.TitleMarker))
}

// PostAge is the post's age in whole seconds at now.
func PostAge(post reddit.Post, now time.Time) int64 {
	return now.Unix() - post.CreatedUTC.Unix()
}

// Classify decides what to do with one post. It is pure: all ledger
// mutation happens in the caller once the decision is applied. Rules are
// evaluated first match wins, and the order matters — a distinguished post
// is exempt even when unflaired, and a flaired post is exempt even when old.
// Age comparisons are strict: a post exactly at a threshold waits one more
// tick.
func Classify(post reddit.Post, ledger *Ledger, now time.Time, policy Policy) Decision {
	age := PostAge(post, now)

	switch {
	case post.Distinguished:
		return DecideSkipMod
	case policy.SpecialCase != nil && policy.SpecialCase.Match(post):
		return DecideNotify
	case post.FlairText != "" || post.FlairClass != "":
		return DecideSkipFlaired
	case post.CreatedUTC.Before(ledger.TrackingStart()):
		return DecideSkipPreTracking
	case age > int64(policy.RemovalAge/time.Second):
		return DecideRemove
	case age > int64(policy.ReminderAge/time.Second) && !ledger.Reminded(post.ID):
		return DecideRemind
	default:
		return DecideWait
	}
}
