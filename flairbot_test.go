package flairbot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairbot/reddit"
)

type sentDM struct {
	author  string
	subject string
	body    string
}

type fakePlatform struct {
	posts    []reddit.Post
	fetchErr error
	dmErr    error

	dms     []sentDM
	removed []string
	replies []string
}

func (p *fakePlatform) FetchRecentPosts(ctx context.Context, limit int) ([]reddit.Post, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	if len(p.posts) > limit {
		return p.posts[:limit], nil
	}
	return p.posts, nil
}

func (p *fakePlatform) SendDirectMessage(ctx context.Context, author, subject, body string) error {
	if p.dmErr != nil {
		return p.dmErr
	}
	p.dms = append(p.dms, sentDM{author: author, subject: subject, body: body})
	return nil
}

func (p *fakePlatform) RemovePost(ctx context.Context, fullname string) error {
	p.removed = append(p.removed, fullname)
	return nil
}

func (p *fakePlatform) ReplyPublic(ctx context.Context, fullname, body string) error {
	p.replies = append(p.replies, fullname)
	return nil
}

// newTestBot wires a Flairbot by hand with unregistered collectors, since
// promauto would collide across test cases in the default registry.
func newTestBot(t *testing.T, client Platform, ledger *Ledger, policy Policy, dryRun bool) *Flairbot {
	t.Helper()

	return &Flairbot{
		logger:    slog.New(slog.DiscardHandler),
		client:    client,
		ledger:    ledger,
		policy:    policy,
		templates: DefaultTemplates(),
		dryRun:    dryRun,
		postsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_posts_processed",
		}, []string{"decision"}),
		actionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_action_errors",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "test_run_duration_seconds",
		}),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_ledger_size",
		}),
	}
}

func TestRunOnceReminds(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "state.json"), now.Add(-24*time.Hour))
	require.NoError(t, err)

	platform := &fakePlatform{
		posts: []reddit.Post{unflairedPost("abc123", 700*time.Second, now)},
	}
	f := newTestBot(t, platform, ledger, testPolicy, false)

	f.RunOnce(context.Background(), now)

	require.Len(t, platform.dms, 1)
	assert.Equal(t, "someuser", platform.dms[0].author)
	assert.Contains(t, platform.dms[0].body, "https://redd.it/abc123")
	assert.Contains(t, platform.dms[0].body, "30 minutes")
	assert.Empty(t, platform.removed)
	assert.True(t, ledger.Reminded("abc123"))

	// Same batch observed again without time advancing: no second reminder.
	f.RunOnce(context.Background(), now)
	assert.Len(t, platform.dms, 1)
	assert.Equal(t, 1, ledger.Len())
}

func TestRunOnceRemoves(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "state.json"), now.Add(-24*time.Hour))
	require.NoError(t, err)
	ledger.MarkReminded("abc123")

	platform := &fakePlatform{
		posts: []reddit.Post{unflairedPost("abc123", 1900*time.Second, now)},
	}
	f := newTestBot(t, platform, ledger, testPolicy, false)

	f.RunOnce(context.Background(), now)

	assert.Equal(t, []string{"t3_abc123"}, platform.removed)
	require.Len(t, platform.dms, 1)
	assert.Contains(t, platform.dms[0].subject, "removed")
	assert.False(t, ledger.Reminded("abc123"))
}

func TestRunOnceDryRunSuppressesActionsButTracks(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "state.json"), now.Add(-24*time.Hour))
	require.NoError(t, err)

	platform := &fakePlatform{
		posts: []reddit.Post{
			unflairedPost("old123", 1900*time.Second, now),
			unflairedPost("mid456", 700*time.Second, now),
		},
	}
	f := newTestBot(t, platform, ledger, testPolicy, true)

	f.RunOnce(context.Background(), now)

	assert.Empty(t, platform.dms)
	assert.Empty(t, platform.removed)
	assert.Empty(t, platform.replies)
	// The ledger still records the decisions so a later real run agrees.
	assert.True(t, ledger.Reminded("mid456"))
	assert.False(t, ledger.Reminded("old123"))
}

func TestRunOnceDeliveryFailureStillMarksReminded(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "state.json"), now.Add(-24*time.Hour))
	require.NoError(t, err)

	post := unflairedPost("abc123", 700*time.Second, now)
	post.Author = ""

	platform := &fakePlatform{
		posts: []reddit.Post{post},
		dmErr: fmt.Errorf("%w: author account is deleted", reddit.ErrDelivery),
	}
	f := newTestBot(t, platform, ledger, testPolicy, false)

	f.RunOnce(context.Background(), now)

	// Best effort: one attempt, no retry, post still counts as reminded.
	assert.True(t, ledger.Reminded("abc123"))

	f.RunOnce(context.Background(), now)
	assert.Equal(t, 1, ledger.Len())
}

func TestRunOncePersistsEvenWhenIdle(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	path := filepath.Join(t.TempDir(), "state.json")
	ledger, err := LoadLedger(path, now.Add(-24*time.Hour))
	require.NoError(t, err)

	f := newTestBot(t, &fakePlatform{}, ledger, testPolicy, false)
	f.RunOnce(context.Background(), now)

	reloaded, err := LoadLedger(path, now)
	require.NoError(t, err)
	assert.False(t, reloaded.Fresh())
	assert.Equal(t, now.Add(-24*time.Hour), reloaded.TrackingStart())
}

func TestRunOnceFetchFailureSkipsBatch(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "state.json"), now.Add(-24*time.Hour))
	require.NoError(t, err)
	ledger.MarkReminded("abc123")

	platform := &fakePlatform{fetchErr: fmt.Errorf("connection reset")}
	f := newTestBot(t, platform, ledger, testPolicy, false)

	f.RunOnce(context.Background(), now)

	// Nothing processed, ledger untouched apart from persistence.
	assert.Empty(t, platform.dms)
	assert.True(t, ledger.Reminded("abc123"))
}

func TestRunOncePrunesLedger(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "state.json"), now.Add(-24*time.Hour))
	require.NoError(t, err)

	policy := testPolicy
	policy.BatchSize = 5
	policy.RetentionFactor = 3

	for i := 0; i < 20; i++ {
		ledger.MarkReminded(fmt.Sprintf("post%03d", i))
	}

	f := newTestBot(t, &fakePlatform{}, ledger, policy, false)
	f.RunOnce(context.Background(), now)

	assert.Equal(t, 15, ledger.Len())
	assert.False(t, ledger.Reminded("post004"))
	assert.True(t, ledger.Reminded("post005"))
}

func TestRunOnceTransitionalNotice(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ledger, err := LoadLedger(filepath.Join(t.TempDir(), "state.json"), now.Add(-24*time.Hour))
	require.NoError(t, err)

	policy := testPolicy
	policy.SpecialCase = &SpecialCase{
		FlairText:   "Fanart",
		TitleMarker: "[oc]",
		Reply:       "please use the OC flair",
	}

	post := reddit.Post{
		ID:         "art123",
		Fullname:   "t3_art123",
		Author:     "artist",
		Title:      "my drawing",
		FlairText:  "Fanart",
		CreatedUTC: now.Add(-30 * time.Second),
	}

	platform := &fakePlatform{posts: []reddit.Post{post}}
	f := newTestBot(t, platform, ledger, policy, false)

	f.RunOnce(context.Background(), now)

	assert.Equal(t, []string{"t3_art123"}, platform.replies)
	assert.Empty(t, platform.dms)
	// The notice never touches the ledger.
	assert.Equal(t, 0, ledger.Len())
}
