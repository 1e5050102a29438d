package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mes-result-backend/internal/model"
	"mes-result-backend/internal/production"
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

// DefectAlert is the push payload sent when a result with defects was committed.
type DefectAlert struct {
	WorkOrderID string   `json:"workOrderId"`
	ResultID    string   `json:"resultId"`
	ProductID   string   `json:"productId"`
	DefectQty   float64  `json:"defectQty"`
	Causes      []string `json:"causes"`
	Message     string   `json:"message"`
}

// WorkerPool sends defect alerts to the subscribers of a work order.
type WorkerPool struct {
	size    int
	jobs    chan DefectAlert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool. A queueSize below size is raised to size.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan DefectAlert, queueSize),
		db:      db,
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
	zap.S().Debugf("notification worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			zap.S().Debugf("notification worker %d processing result %s", id, alert.ResultID)
			wp.sendAlertsForWorkOrder(ctx, alert)
		case <-ctx.Done():
			zap.S().Debugf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert. It never blocks; when the queue is full the alert
// is dropped and false is returned.
func (wp *WorkerPool) Dispatch(alert DefectAlert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		zap.S().Warnf("notification queue full, dropping alert for result %s", alert.ResultID)
		return false
	}
}

// DefectsCommitted builds an alert for a committed result. Results outside a
// work order have no subscribers and are skipped.
func (wp *WorkerPool) DefectsCommitted(result production.ProductionResult, records []production.DefectRecord) {
	if result.WorkOrderID == "" {
		return
	}
	wp.Dispatch(NewDefectAlert(result, records))
}

// NewDefectAlert summarizes a committed result and its defect records.
func NewDefectAlert(result production.ProductionResult, records []production.DefectRecord) DefectAlert {
	causes := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if !seen[r.DefectCause] {
			seen[r.DefectCause] = true
			causes = append(causes, r.DefectCause)
		}
	}
	alert := DefectAlert{
		WorkOrderID: result.WorkOrderID,
		ProductID:   result.ProductID,
		DefectQty:   result.DefectQty,
		Causes:      causes,
	}
	if result.ResultID != nil {
		alert.ResultID = *result.ResultID
	}
	alert.Message = fmt.Sprintf("Work order %s: %s defective units of %s (%s)",
		result.WorkOrderID, production.FormatQty(result.DefectQty), result.ProductID, strings.Join(causes, ", "))
	return alert
}

func (wp *WorkerPool) sendAlertsForWorkOrder(ctx context.Context, alert DefectAlert) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_work_order_mapping swm ON swm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("swm.work_order_id = ?", alert.WorkOrderID).
		Find(&subscriptions).Error
	if err != nil {
		zap.S().Errorf("failed to fetch subscriptions for work order %s: %v", alert.WorkOrderID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		zap.S().Errorf("failed to encode alert for result %s: %v", alert.ResultID, err)
		return
	}

	zap.S().Infof("sending %d defect alerts for work order %s", len(subscriptions), alert.WorkOrderID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		zap.S().Errorf("failed to send notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		zap.S().Infof("subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			zap.S().Errorf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
