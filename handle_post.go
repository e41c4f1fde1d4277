package flairbot

import (
	"context"
	"errors"
	"time"

	"flairbot/auditstore"
	"flairbot/reddit"
)

// handlePost applies one classification decision. Ledger bookkeeping happens
// here regardless of whether the platform call succeeded: a failed
// notification is not retried, so the post must still count as reminded.
func (f *Flairbot) handlePost(ctx context.Context, post reddit.Post, decision Decision, now time.Time) {
	age := PostAge(post, now)

	switch decision {
	case DecideSkipMod:
		f.logger.Info("skipping moderator post", "id", post.ID, "author", post.Author)

	case DecideNotify:
		f.logger.Info("posting transitional notice", "id", post.ID)
		f.apply(ctx, post, decision, func() error {
			return f.client.ReplyPublic(ctx, post.Fullname, f.policy.SpecialCase.Reply)
		})

	case DecideSkipFlaired:
		f.logger.Info("skipping flaired post", "id", post.ID, "flair_text", post.FlairText, "flair_class", post.FlairClass)

	case DecideSkipPreTracking:
		f.logger.Info("skipping post from before tracking start", "id", post.ID, "age", age)

	case DecideRemove:
		f.logger.Info("removing unflaired post", "id", post.ID, "age", age)
		f.apply(ctx, post, decision, func() error {
			return f.removeForMissingFlair(ctx, post)
		})
		f.ledger.Unmark(post.ID)

	case DecideRemind:
		f.logger.Info("reminding author to add flair", "id", post.ID, "age", age)
		f.apply(ctx, post, decision, func() error {
			return f.remindToAddFlair(ctx, post)
		})
		f.ledger.MarkReminded(post.ID)

	case DecideWait:
		f.logger.Info("waiting", "id", post.ID, "age", age, "reminded", f.ledger.Reminded(post.ID))
	}
}

// apply runs the platform action unless this is a dry run. Action failures
// are logged and recorded but never abort the run.
func (f *Flairbot) apply(ctx context.Context, post reddit.Post, decision Decision, action func() error) {
	if f.dryRun {
		f.logger.Info("dry run, action suppressed", "decision", decision.String(), "confirm", "https://redd.it/"+post.ID)
		f.recordAudit(ctx, post, decision, nil)
		return
	}

	err := action()
	if err != nil {
		f.logger.Error("action failed", "decision", decision.String(), "id", post.ID, "error", err)
		f.actionErrors.WithLabelValues(errorKind(err)).Inc()
	}
	f.recordAudit(ctx, post, decision, err)
}

func (f *Flairbot) remindToAddFlair(ctx context.Context, post reddit.Post) error {
	v := f.templateValues(post)
	return f.client.SendDirectMessage(ctx, post.Author,
		f.templates.ReminderSubject.Render(v),
		f.templates.ReminderBody.Render(v))
}

func (f *Flairbot) removeForMissingFlair(ctx context.Context, post reddit.Post) error {
	if err := f.client.RemovePost(ctx, post.Fullname); err != nil {
		return err
	}

	v := f.templateValues(post)
	return f.client.SendDirectMessage(ctx, post.Author,
		f.templates.RemovalSubject.Render(v),
		f.templates.RemovalBody.Render(v))
}

func (f *Flairbot) templateValues(post reddit.Post) TemplateValues {
	return TemplateValues{
		PostID:             post.ID,
		Username:           post.Author,
		ReminderAgeMinutes: int(f.policy.ReminderAge.Minutes()),
		RemovalAgeMinutes:  int(f.policy.RemovalAge.Minutes()),
	}
}

func (f *Flairbot) recordAudit(ctx context.Context, post reddit.Post, decision Decision, actionErr error) {
	if f.audit == nil {
		return
	}

	entry := auditstore.Entry{
		PostID:     post.ID,
		Author:     post.Author,
		Decision:   decision.String(),
		DryRun:     f.dryRun,
		RecordedAt: time.Now(),
	}
	if actionErr != nil {
		entry.Error = actionErr.Error()
	}

	if err := f.audit.Insert(ctx, entry); err != nil {
		f.logger.Error("error recording audit entry", "error", err, "id", post.ID)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, reddit.ErrDelivery):
		return "delivery"
	case errors.Is(err, reddit.ErrPermission):
		return "permission"
	case errors.Is(err, reddit.ErrNotFound):
		return "not_found"
	case errors.Is(err, reddit.ErrRateLimit):
		return "rate_limit"
	default:
		return "other"
	}
}
