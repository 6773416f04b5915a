package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
)

// FriendlyMessage turns err into the summary shown to users. Transport details never leak.
func FriendlyMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Transfer cancelled"
	case errors.Is(err, shared.ErrAuthRequired):
		return "Authorization required: please reconnect your accounts and try again"
	case errors.Is(err, shared.ErrInvalidInput):
		return "That playlist link isn't valid. Copy the link from the share menu and try again"
	case errors.Is(err, shared.ErrPlaylistNotFound):
		return "Playlist not found. Check the link and make sure the playlist is public"
	case errors.Is(err, shared.ErrUnknownPlatform):
		return "That platform isn't supported for this transfer"
	case errors.Is(err, shared.ErrRateLimited):
		return "Too many requests. Please wait a few minutes and try again"
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "The music service took too long to respond. Please try again later"
	case errors.Is(err, shared.ErrAPIRequest):
		return "The music service returned an error. Please try again later"
	default:
		return "Something went wrong during the transfer. Please try again"
	}
}

func authRequiredMessage(p models.Platform) string {
	return fmt.Sprintf("Authorization required: connect %s and try again", p.DisplayName())
}

func noMatchesMessage(p models.Platform, total int) string {
	return fmt.Sprintf("No matching tracks found on %s (0/%d)", p.DisplayName(), total)
}

func successMessage(found, total int, url string) string {
	if found == total {
		return fmt.Sprintf("Successfully transferred all %d tracks: %s", total, url)
	}
	return fmt.Sprintf("Partially successful: %d/%d tracks transferred: %s", found, total, url)
}

func attachFailedMessage(added, found int, url string) string {
	if added == 0 {
		return fmt.Sprintf("Playlist created but tracks couldn't be added: %s", url)
	}
	return fmt.Sprintf("Playlist created but only %d/%d tracks could be added: %s", added, found, url)
}
