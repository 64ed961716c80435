package api

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/syncer"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// PubSubPushEnvelope is the wrapper Cloud Pub/Sub push subscriptions
// POST to the endpoint.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type syncTriggerPayload struct {
	Source   string `json:"source"`
	FullSync bool   `json:"full_sync"`
}

// PubSubSyncTriggerHandler runs a sync in response to a push message.
// Malformed envelopes are acked with 204 so Pub/Sub stops redelivering
// garbage.
func (h *Handlers) PubSubSyncTriggerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.EnvBoolDefault("ENABLE_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload syncTriggerPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if !models.ValidSource(payload.Source) {
			c.Status(204)
			return
		}

		opts := syncer.Options{
			FullSync:    payload.FullSync,
			TriggeredBy: models.SyncTriggeredPubSub,
		}
		if _, err := h.engine.Sync(c.Request.Context(), payload.Source, opts); err != nil && !errors.Is(err, syncer.ErrSyncAlreadyRunning) {
			config.LogError(config.GetLogger(), moduleName, "PubSubSyncTriggerHandler", "push-triggered sync", payload.Source, err)
			// Non-204 makes Pub/Sub redeliver, which retries the sync.
			c.Status(500)
			return
		}
		c.Status(204)
	}
}
