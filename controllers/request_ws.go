package controller

import (
	"time"

	"adveri/models"
	"adveri/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const wsPingInterval = 30 * time.Second

// RequireUpgrade rejects plain HTTP calls to websocket routes.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// RequestEventsWS streams the caller's ad request events until the client
// goes away.
func RequestEventsWS(hub *utils.EventHub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		defer c.Close()

		user, ok := c.Locals("user").(*models.User)
		if !ok || user == nil {
			return
		}

		events, cancel := hub.Subscribe(user.ID)
		defer cancel()

		log := logrus.WithFields(logrus.Fields{"component": "request_ws", "user_id": user.ID})
		log.Debug("Subscriber connected")

		// Reads only detect the close; clients do not send anything.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				log.Debug("Subscriber disconnected")
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := c.WriteJSON(ev); err != nil {
					log.WithError(err).Warn("Error writing event")
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
