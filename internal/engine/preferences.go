package engine

import (
	"context"

	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/storage"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// PreferenceResolver merges explicit user opt-in/out rows with event-level
// channel defaults
type PreferenceResolver struct {
	storage storage.Storage
}

// NewPreferenceResolver creates a preference resolver
func NewPreferenceResolver(store storage.Storage) *PreferenceResolver {
	return &PreferenceResolver{storage: store}
}

// ResolveChannels returns the authoritative enabled flag for every known
// channel. The channel universe is email plus every distinct active gateway
// type, so newly configured channel types become selectable without code
// changes. An explicit preference row wins; otherwise membership in the
// event's default channel list decides.
func (pr *PreferenceResolver) ResolveChannels(ctx context.Context, scope models.TenantScope, userID int64, eventKey string) (map[string]bool, error) {
	channels := map[string]bool{}

	universe := []string{models.ChannelEmail}
	gatewayTypes, err := pr.storage.GetActiveGatewayTypes(ctx, scope)
	if err != nil {
		return nil, err
	}
	for _, t := range gatewayTypes {
		if t != models.ChannelEmail {
			universe = append(universe, t)
		}
	}

	event, err := pr.storage.GetEventByKey(ctx, scope, eventKey)
	if err != nil {
		if !utils.IsNotFound(err) {
			return nil, err
		}
		event = nil
	}

	for _, channel := range universe {
		pref, err := pr.storage.GetPreference(ctx, scope, userID, eventKey, channel)
		if err == nil {
			channels[channel] = pref.IsEnabled
			continue
		}
		if !utils.IsNotFound(err) {
			return nil, err
		}
		channels[channel] = event != nil && event.HasDefaultChannel(channel)
	}

	return channels, nil
}
