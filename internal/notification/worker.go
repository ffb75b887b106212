package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/model"
	"slackspot-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// ExpiryNotice tells a user that the sweeper ended their check-in.
type ExpiryNotice struct {
	UserID  string `json:"user_id"`
	SpotKey string `json:"spot_key"`
}

// payload is the JSON body delivered to the service worker.
type payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	SpotKey string `json:"spot_key"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan ExpiryNotice
	targets store.PushTargetRepository
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, targets store.PushTargetRepository, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan ExpiryNotice, size), // Buffered channel
		targets: targets,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case notice := <-wp.jobs:
			wp.sendExpiryNotice(ctx, notice)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a notice, giving up if ctx ends first.
func (wp *WorkerPool) Dispatch(ctx context.Context, notice ExpiryNotice) {
	select {
	case wp.jobs <- notice:
	case <-ctx.Done():
		log.Printf("Dropped expiry notice for user %s: %v", notice.UserID, ctx.Err())
	}
}

// sendExpiryNotice pushes the notice to every subscription of the user.
func (wp *WorkerPool) sendExpiryNotice(ctx context.Context, notice ExpiryNotice) {
	target, err := wp.targets.Get(ctx, notice.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("Error fetching push subscriptions for user %s: %v", notice.UserID, err)
		return
	}
	if len(target.Subscriptions) == 0 {
		return
	}

	body, err := json.Marshal(payload{
		Title:   "Check-in expired",
		Body:    "Your check-in at " + notice.SpotKey + " has ended.",
		SpotKey: notice.SpotKey,
	})
	if err != nil {
		log.Printf("Error encoding expiry notice for user %s: %v", notice.UserID, err)
		return
	}

	log.Printf("Sending %d notifications to user %s", len(target.Subscriptions), notice.UserID)
	for _, sub := range target.Subscriptions {
		wp.sendNotification(ctx, notice.UserID, sub, body)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, userID string, sub model.PushSubscription, body []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(body, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.targets.RemoveSubscription(ctx, userID, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
