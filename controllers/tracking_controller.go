package controller

import (
	"log"

	"dripmail/store"
	"dripmail/utils"

	"github.com/gofiber/fiber/v2"
)

// transparentGIF is the 1x1 pixel served by the open tracker.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type TrackingController struct {
	History *store.HistoryStore
	Logger  *log.Logger
}

func NewTrackingController(history *store.HistoryStore, logger *log.Logger) *TrackingController {
	return &TrackingController{History: history, Logger: logger}
}

// TrackOpen records an open event and serves the pixel. The pixel is
// served even when the token is bad so broken trackers stay invisible to
// the recipient.
func (tc *TrackingController) TrackOpen(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")

	if utils.TrackingToken(messageID) == token {
		if err := tc.History.MarkOpened(c.Context(), messageID); err != nil {
			tc.Logger.Printf("open tracking for %s failed: %v", messageID, err)
		}
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")
	return c.Send(transparentGIF)
}

// TrackClick records a click event and forwards the recipient to the
// original destination.
func (tc *TrackingController) TrackClick(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")
	target := c.Query("url")

	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing destination URL",
		})
	}
	if utils.TrackingToken(messageID) != token {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Invalid tracking token",
		})
	}

	if err := tc.History.MarkClicked(c.Context(), messageID); err != nil {
		tc.Logger.Printf("click tracking for %s failed: %v", messageID, err)
	}

	return c.Redirect(target, fiber.StatusFound)
}
