package banners

import (
	"context"
	"time"
)

// Change topics published after a successful document write.
const (
	TopicBannerCreated  = "banners.banner.created"
	TopicBannerUpdated  = "banners.banner.updated"
	TopicBannerDeleted  = "banners.banner.deleted"
	TopicBannerImported = "banners.banner.imported"
)

// Publisher emits change events. Implementations live in internal/events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// ChangeEvent describes one committed change to the config document.
type ChangeEvent struct {
	EventID    string     `json:"event_id"`
	Topic      string     `json:"topic"`
	BannerIDs  []string   `json:"banner_ids"`
	Entry      *EntryView `json:"entry,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// EntryView is the JSON shape of an entry outside the stored document.
type EntryView struct {
	ID       string `json:"id"`
	AssetRef string `json:"asset_ref"`
	Day      Day    `json:"day"`
	Priority int    `json:"priority"`
	Active   bool   `json:"active"`
}

// View returns the event representation of e.
func (e Entry) View() *EntryView {
	return &EntryView{
		ID:       e.ID,
		AssetRef: e.AssetRef,
		Day:      e.Day,
		Priority: e.Priority,
		Active:   e.Active,
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error {
	return nil
}
