// Package calendar implements the read-side view contract: the client may
// show a tentative move or cancel before the server confirms it, and must
// restore the prior displayed state exactly if the mutation fails.
package calendar

import (
	"errors"

	"github.com/postpilothq/postpilot/internal/models"
)

var ErrNoPendingUpdate = errors.New("no pending optimistic update")

// View holds the posts a calendar widget currently displays plus at most
// one pending optimistic update's rollback snapshot.
type View struct {
	posts    []*models.ScheduledPost
	snapshot []*models.ScheduledPost
}

func NewView(posts []*models.ScheduledPost) *View {
	return &View{posts: clonePosts(posts)}
}

// Posts returns the currently displayed state.
func (v *View) Posts() []*models.ScheduledPost {
	return clonePosts(v.posts)
}

// Apply tentatively replaces the displayed state, remembering the prior
// state for rollback. Applying over a pending update keeps the original
// snapshot, so a chain of tentative edits still rolls back to the last
// server-confirmed state.
func (v *View) Apply(tentative []*models.ScheduledPost) {
	if v.snapshot == nil {
		v.snapshot = v.posts
	}
	v.posts = clonePosts(tentative)
}

// Commit replaces the displayed state with the server's confirmed result
// and drops the rollback snapshot.
func (v *View) Commit(confirmed []*models.ScheduledPost) {
	v.posts = clonePosts(confirmed)
	v.snapshot = nil
}

// Rollback restores the last server-confirmed state exactly.
func (v *View) Rollback() error {
	if v.snapshot == nil {
		return ErrNoPendingUpdate
	}
	v.posts = v.snapshot
	v.snapshot = nil
	return nil
}

// Pending reports whether an optimistic update awaits confirmation.
func (v *View) Pending() bool {
	return v.snapshot != nil
}

func clonePosts(posts []*models.ScheduledPost) []*models.ScheduledPost {
	out := make([]*models.ScheduledPost, len(posts))
	for i, p := range posts {
		cp := *p
		cp.Hashtags = append([]string(nil), p.Hashtags...)
		if p.PublishedAt != nil {
			t := *p.PublishedAt
			cp.PublishedAt = &t
		}
		out[i] = &cp
	}
	return out
}
