package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/docssquirrelhq/threadspipe/internal/media"
	"github.com/docssquirrelhq/threadspipe/internal/segment"
	"github.com/docssquirrelhq/threadspipe/internal/threads"
)

// unitState tracks a unit through its publish lifecycle. FAILED is
// reachable from every state.
type unitState string

const (
	stateBuilding         unitState = "BUILDING"
	stateContainerPending unitState = "CONTAINER_PENDING"
	stateContainerReady   unitState = "CONTAINER_READY"
	statePublishing       unitState = "PUBLISHING"
	statePublished        unitState = "PUBLISHED"
	stateFailed           unitState = "FAILED"
)

// publishUnit drives one unit through the state machine: build its remote
// container, wait for processing, publish it, and return the published post
// ID. replyTo is the previous unit's published ID, or the request's external
// reply target for unit 0. The next unit may not start until this one
// reaches PUBLISHED.
func (p *Pipeline) publishUnit(ctx context.Context, unit segment.Unit, replyTo string, req Request) (string, error) {
	state := stateBuilding
	logState := func(s unitState) {
		state = s
		log.Debug().Int("unit", unit.Index).Str("state", string(state)).Msg("Unit state")
	}
	logState(stateBuilding)

	opts := threads.ContainerOptions{
		ReplyTo:      replyTo,
		QuotePostID:  unit.QuoteID,
		CountryCodes: p.cfg.AllowedCountryCodes,
	}
	if unit.Link != "" {
		opts.LinkAttachment = unit.Link
	}
	if req.WhoCanReply != "" {
		opts.ReplyControl = req.WhoCanReply
	} else if p.cfg.WhoCanReply != "" {
		opts.ReplyControl = p.cfg.WhoCanReply
	}

	containerID, err := p.buildContainer(ctx, unit, opts)
	if err != nil {
		logState(stateFailed)
		return "", p.mapRemoteError(err, unit.Index, "")
	}

	logState(stateContainerPending)
	if p.cfg.WaitBeforePublish {
		if err := p.client.WaitForContainer(ctx, containerID, p.cfg.PublishWaitTime, p.cfg.PollTimeout); err != nil {
			logState(stateFailed)
			return "", p.mapRemoteError(err, unit.Index, containerID)
		}
	}
	logState(stateContainerReady)

	logState(statePublishing)
	postID, err := p.client.Publish(ctx, containerID)
	if err != nil {
		logState(stateFailed)
		return "", p.mapRemoteError(err, unit.Index, containerID)
	}

	logState(statePublished)
	log.Info().Int("unit", unit.Index).Str("postId", postID).Msg("Unit published")
	return postID, nil
}

// buildContainer creates the remote container for a unit: a text container,
// a single media container, or a carousel with one child container per item.
func (p *Pipeline) buildContainer(ctx context.Context, unit segment.Unit, opts threads.ContainerOptions) (string, error) {
	switch {
	case len(unit.Media) == 0:
		return p.client.CreateTextContainer(ctx, unit.Text, opts)

	case len(unit.Media) == 1:
		item := unit.Media[0]
		single := opts
		single.AltText = item.Caption
		if item.Kind == media.KindVideo {
			return p.client.CreateVideoContainer(ctx, item.URL, unit.Text, false, single)
		}
		return p.client.CreateImageContainer(ctx, item.URL, unit.Text, false, single)

	default:
		children := make([]string, 0, len(unit.Media))
		for i, item := range unit.Media {
			childOpts := threads.ContainerOptions{AltText: item.Caption}

			var childID string
			var err error
			if item.Kind == media.KindVideo {
				childID, err = p.client.CreateVideoContainer(ctx, item.URL, "", true, childOpts)
			} else {
				childID, err = p.client.CreateImageContainer(ctx, item.URL, "", true, childOpts)
			}
			if err != nil {
				return "", fmt.Errorf("carousel child %d: %w", i, err)
			}

			if p.cfg.WaitBeforeItemPublish {
				if err := p.client.WaitForContainer(ctx, childID, p.cfg.PublishWaitTime, p.cfg.PollTimeout); err != nil {
					return "", fmt.Errorf("carousel child %d: %w", i, err)
				}
			}
			children = append(children, childID)
		}
		return p.client.CreateCarouselContainer(ctx, children, unit.Text, opts)
	}
}
