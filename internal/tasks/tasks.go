package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"greendrake/trueque/internal/cache"
	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/notify"
	"greendrake/trueque/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeAuctionClose = "auction:close"
	TypeAuctionSweep = "auction:sweep"
	TypeEventDeliver = notify.TypeEventDeliver
)

// Queues and their priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// --- Task Client (Enqueuing tasks) ---

// NewClient creates an asynq client on the given Redis connection.
func NewClient(opt asynq.RedisClientOpt) *asynq.Client {
	return asynq.NewClient(opt)
}

// AuctionClosePayload identifies the auction to close.
type AuctionClosePayload struct {
	ListingID string `json:"listing_id"`
}

// closeTaskID deduplicates close tasks so rescheduling an auction is a no-op.
func closeTaskID(listingID string) string {
	return "auction-close:" + listingID
}

// CloseScheduler enqueues one close task per auction, due at its close time.
type CloseScheduler struct {
	client notify.IAsynqClient
}

// NewCloseScheduler creates a new CloseScheduler.
func NewCloseScheduler(client notify.IAsynqClient) *CloseScheduler {
	return &CloseScheduler{client: client}
}

func (s *CloseScheduler) ScheduleClose(ctx context.Context, listingID string, at time.Time) error {
	payload, err := json.Marshal(AuctionClosePayload{ListingID: listingID})
	if err != nil {
		return fmt.Errorf("failed to marshal close payload: %w", err)
	}
	task := asynq.NewTask(TypeAuctionClose, payload)
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.Queue(QueueCritical),
		asynq.TaskID(closeTaskID(listingID)),
		asynq.MaxRetry(10),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to schedule close of auction %s: %w", listingID, err)
	}
	log.Printf("Scheduled close of auction %s at %s (task %s)", listingID, at.Format(time.RFC3339), info.ID)
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	negotiation services.INegotiationService
	inbox       cache.IInbox
}

func NewTaskProcessor(negotiation services.INegotiationService, inbox cache.IInbox) *TaskProcessor {
	return &TaskProcessor{negotiation: negotiation, inbox: inbox}
}

// NewServeMux registers every handler.
func (p *TaskProcessor) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAuctionClose, p.HandleAuctionCloseTask)
	mux.HandleFunc(TypeAuctionSweep, p.HandleAuctionSweepTask)
	if p.inbox != nil {
		mux.HandleFunc(TypeEventDeliver, p.HandleEventDeliverTask)
	}
	return mux
}

// SetupServer configures and returns an Asynq server instance. The caller
// starts it with Start(processor.NewServeMux()) and stops it with Shutdown.
func SetupServer(opt asynq.RedisClientOpt) *asynq.Server {
	return asynq.NewServer(
		opt,
		asynq.Config{
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)
}

// SetupScheduler registers the periodic expiry sweep. Only one process
// should run it; the sweep itself is safe to run concurrently.
func SetupScheduler(opt asynq.RedisClientOpt, interval time.Duration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	spec := fmt.Sprintf("@every %s", interval)
	entryID, err := scheduler.Register(spec, asynq.NewTask(TypeAuctionSweep, nil),
		asynq.Queue(QueueLow),
		asynq.MaxRetry(0),
		asynq.Unique(interval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register auction sweep: %w", err)
	}
	fmt.Printf("Registered auction sweep %s (entry %s)\n", spec, entryID)
	return scheduler, nil
}

// --- Task Handlers ---

// HandleAuctionCloseTask closes one auction through the system path.
func (p *TaskProcessor) HandleAuctionCloseTask(ctx context.Context, t *asynq.Task) error {
	var payload AuctionClosePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal close task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ListingID == "" {
		return fmt.Errorf("close task without listing id: %w", asynq.SkipRetry)
	}

	res, err := p.negotiation.CloseAuction(ctx, payload.ListingID, "")
	switch {
	case err == nil:
	case errors.Is(err, services.ErrListingNotActive),
		errors.Is(err, services.ErrListingNotFound),
		errors.Is(err, services.ErrNotAuction):
		log.Printf("Close task for %s skipped: %v", payload.ListingID, err)
		return nil
	case errors.Is(err, services.ErrAuctionOpen):
		// Fired early, clocks disagree. Retry with backoff.
		return err
	default:
		log.Printf("Error closing auction %s: %v", payload.ListingID, err)
		return err
	}

	if res.Winner != nil {
		log.Printf("Close task: auction %s won by offer %s", payload.ListingID, res.Winner.ID)
	} else {
		log.Printf("Close task: auction %s closed without a winner", payload.ListingID)
	}
	return nil
}

// HandleAuctionSweepTask closes every expired auction and repairs broken closes.
func (p *TaskProcessor) HandleAuctionSweepTask(ctx context.Context, t *asynq.Task) error {
	report, err := p.negotiation.SweepExpiredAuctions(ctx)
	if err != nil {
		log.Printf("Auction sweep failed: %v", err)
		return err
	}
	if report.Failed > 0 {
		log.Printf("Auction sweep left %d auctions open", report.Failed)
	}
	return nil
}

// HandleEventDeliverTask turns a marketplace event into inbox notices for the
// users it concerns.
func (p *TaskProcessor) HandleEventDeliverTask(ctx context.Context, t *asynq.Task) error {
	var event models.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.ListingID == "" || event.Type == "" {
		return fmt.Errorf("event without type or listing: %w", asynq.SkipRetry)
	}

	notices := Notices(event)
	batch := make(map[string]cache.InboxMessage, len(notices))
	for userID, text := range notices {
		batch[userID] = cache.InboxMessage{
			Type:      event.Type,
			ListingID: event.ListingID,
			OfferID:   event.OfferID,
			Text:      text,
			At:        event.OccurredAt,
		}
	}
	// One transaction for every recipient, so a retry never repeats a notice.
	return p.inbox.Deliver(ctx, batch)
}

// Notices maps an event to the text each affected user receives.
func Notices(e models.Event) map[string]string {
	out := make(map[string]string, 2)
	add := func(userID, format string, args ...interface{}) {
		if userID != "" {
			out[userID] = fmt.Sprintf(format, args...)
		}
	}

	switch e.Type {
	case models.EventOfferSubmitted:
		add(e.OwnerID, "New offer %s on your listing %s", e.OfferID, e.ListingID)
	case models.EventOfferAccepted:
		add(e.BidderID, "Your offer %s on listing %s was accepted", e.OfferID, e.ListingID)
	case models.EventOfferRejected:
		add(e.BidderID, "Your offer %s on listing %s was declined", e.OfferID, e.ListingID)
	case models.EventOfferWithdrawn:
		add(e.OwnerID, "Offer %s on your listing %s was withdrawn", e.OfferID, e.ListingID)
	case models.EventOfferRemoved:
		add(e.OwnerID, "Offer %s on your listing %s was removed", e.OfferID, e.ListingID)
		add(e.BidderID, "Your offer %s on listing %s was removed", e.OfferID, e.ListingID)
	case models.EventListingClosed:
		if e.WinningOfferID != nil {
			add(e.OwnerID, "Your listing %s closed with offer %s", e.ListingID, *e.WinningOfferID)
		} else {
			add(e.OwnerID, "Your listing %s closed without a winning offer", e.ListingID)
		}
	case models.EventListingPaused:
		add(e.OwnerID, "Your listing %s is paused", e.ListingID)
	case models.EventListingDeleted:
		add(e.OwnerID, "Your listing %s was deleted", e.ListingID)
	case models.EventListingFinalized:
		add(e.OwnerID, "Your listing %s is finalized", e.ListingID)
	}
	return out
}
