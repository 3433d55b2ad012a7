package heygen

import (
	"context"

	"github.com/agreedhq/backoffice/internal/events"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/storage"
)

// statusAPI is the slice of Client the poller uses.
type statusAPI interface {
	VideoStatus(ctx context.Context, videoID string) (*Status, error)
}

// Poller walks records that have a pending video and persists the URL
// once generation completes. It runs as a daily scheduler job.
type Poller struct {
	api   statusAPI
	store storage.ClientStore
	pub   events.Publisher
}

// NewPoller wires a completed-video poller.
func NewPoller(api statusAPI, store storage.ClientStore, pub events.Publisher) *Poller {
	return &Poller{api: api, store: store, pub: pub}
}

// PollResult summarizes one poll sweep.
type PollResult struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Run checks every pending video once. A single record's failure never
// stops the sweep.
func (p *Poller) Run(ctx context.Context) (*PollResult, error) {
	clients, err := p.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	res := &PollResult{}
	for i := range clients {
		rec := &clients[i]
		if rec.VideoID == "" || rec.VideoURL != "" {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++

		st, err := p.api.VideoStatus(ctx, rec.VideoID)
		if err != nil {
			logger.Warn("video status check failed", "client_id", rec.ID, "video_id", rec.VideoID, "error", err.Error())
			res.Failed++
			continue
		}
		switch st.Status {
		case StatusCompleted:
			if st.VideoURL == "" {
				logger.Warn("completed video has no url", "client_id", rec.ID, "video_id", rec.VideoID)
				res.Failed++
				continue
			}
			if err := p.store.SetVideoLink(ctx, rec.ID, st.VideoURL); err != nil {
				logger.Error("recording video url failed", "client_id", rec.ID, "error", err.Error())
				res.Failed++
				continue
			}
			res.Completed++
			p.pub.Publish(ctx, events.KeyVideoReady, events.Envelope{
				ClientID: rec.ID,
				Payload:  map[string]string{"video_id": rec.VideoID, "video_url": st.VideoURL},
			})
			logger.Info("video ready", "client_id", rec.ID, "video_id", rec.VideoID)
		case StatusFailed:
			logger.Warn("video generation failed", "client_id", rec.ID, "video_id", rec.VideoID, "error", st.Error)
			res.Failed++
		default:
			// still processing, check again tomorrow
		}
	}
	return res, nil
}
