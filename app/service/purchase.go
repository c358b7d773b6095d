package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
	"github.com/vibast-solutions/ms-go-course-purchases/app/factory"
	"github.com/vibast-solutions/ms-go-course-purchases/app/metrics"
	"github.com/vibast-solutions/ms-go-course-purchases/app/provider"
	"github.com/vibast-solutions/ms-go-course-purchases/config"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBatchSize       = int32(100)
	defaultDedupeSize      = 1024
	defaultProviderTimeout = 10 * time.Second
	defaultStaleAfter      = 15 * time.Minute
	checkoutSessionMaxAge  = 24 * time.Hour
	reconcileTimeout       = 30 * time.Second

	TriggerWebhook = "webhook"
	TriggerConfirm = "confirm"
	TriggerSweep   = "sweep"
)

type courseRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Course, error)
	ListPurchasedByUser(ctx context.Context, userID string) ([]*entity.Course, error)
}

type purchaseRepository interface {
	Create(ctx context.Context, purchase *entity.CoursePurchase) error
	AttachCheckoutSession(ctx context.Context, id uint64, sessionID, checkoutURL string, now time.Time) error
	MarkCompleted(ctx context.Context, id uint64, amount int64, now time.Time) error
	FindByID(ctx context.Context, id uint64) (*entity.CoursePurchase, error)
	FindLatestByUserCourse(ctx context.Context, userID string, courseID uint64, status int32) (*entity.CoursePurchase, error)
	ExistsForUserCourse(ctx context.Context, userID string, courseID uint64, completedOnly bool) (bool, error)
	ListStalePending(ctx context.Context, createdAfter, updatedBefore time.Time, limit int32) ([]*entity.CoursePurchase, error)
}

type enrollmentRepository interface {
	AddUserCourse(ctx context.Context, userID string, courseID uint64, now time.Time) error
	AddCourseStudent(ctx context.Context, courseID uint64, userID string, now time.Time) error
	ListCourseIDsForUser(ctx context.Context, userID string) ([]uint64, error)
	ListStudentIDsForCourse(ctx context.Context, courseID uint64) ([]string, error)
}

type progressRepository interface {
	Ensure(ctx context.Context, progress *entity.CourseProgress) (*entity.CourseProgress, error)
}

type purchaseEventRepository interface {
	Create(ctx context.Context, event *entity.PurchaseEvent) error
}

type webhookEventRepository interface {
	Create(ctx context.Context, event *entity.WebhookEvent) error
}

type ReconcileInput struct {
	PurchaseID      uint64
	CourseID        uint64
	UserID          string
	FinalAmount     int64
	Trigger         string
	ProviderEventID *string
}

type ReconciliationResult struct {
	Purchase          *entity.CoursePurchase
	EnrolledCourseIDs []uint64
	RosterUserIDs     []string
	Progress          *entity.CourseProgress
}

type ConfirmResult struct {
	AlreadyProcessed bool
	Reconciliation   *ReconciliationResult
}

type PurchaseStatus struct {
	Course    *entity.Course
	Purchased bool
}

type PurchaseService struct {
	courseRepo     courseRepository
	purchaseRepo   purchaseRepository
	enrollmentRepo enrollmentRepository
	progressRepo   progressRepository
	eventRepo      purchaseEventRepository
	webhookRepo    webhookEventRepository
	payments       provider.Provider
	cfg            config.PurchasesConfig
	metrics        *metrics.Metrics
	logger         logrus.FieldLogger

	reconciles      singleflight.Group
	processedEvents *lru.Cache[string, struct{}]
}

func NewPurchaseService(
	courseRepo courseRepository,
	purchaseRepo purchaseRepository,
	enrollmentRepo enrollmentRepository,
	progressRepo progressRepository,
	eventRepo purchaseEventRepository,
	webhookRepo webhookEventRepository,
	payments provider.Provider,
	cfg config.PurchasesConfig,
	m *metrics.Metrics,
) *PurchaseService {
	size := cfg.WebhookDedupeSize
	if size <= 0 {
		size = defaultDedupeSize
	}
	processed, err := lru.New[string, struct{}](size)
	if err != nil {
		panic(err)
	}

	return &PurchaseService{
		courseRepo:      courseRepo,
		purchaseRepo:    purchaseRepo,
		enrollmentRepo:  enrollmentRepo,
		progressRepo:    progressRepo,
		eventRepo:       eventRepo,
		webhookRepo:     webhookRepo,
		payments:        payments,
		cfg:             cfg,
		metrics:         m,
		logger:          factory.NewModuleLogger("purchase-service"),
		processedEvents: processed,
	}
}

// StartCheckout records a pending purchase at the course's current price and
// opens a provider checkout session for it. A provider failure leaves the
// pending purchase in place without a session.
func (s *PurchaseService) StartCheckout(ctx context.Context, userID string, courseID uint64) (*entity.CoursePurchase, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || courseID == 0 {
		return nil, ErrInvalidRequest
	}

	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	currency := strings.ToLower(strings.TrimSpace(course.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	now := time.Now().UTC()
	purchase := &entity.CoursePurchase{
		CourseID:  course.ID,
		UserID:    userID,
		Amount:    course.Price,
		Currency:  currency,
		Status:    entity.PurchaseStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		s.metrics.IncCheckout("error")
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.PurchaseEvent{
		PurchaseID: purchase.ID,
		EventType:  "purchase_created",
		NewStatus:  purchase.Status,
		CreatedAt:  now,
	})

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	start := time.Now()
	session, err := s.payments.CreateCheckoutSession(providerCtx, &provider.CheckoutInput{
		PurchaseID:   purchase.ID,
		CourseID:     course.ID,
		UserID:       userID,
		CourseTitle:  course.Title,
		ThumbnailURL: course.ThumbnailURL,
		Amount:       purchase.Amount,
		Currency:     purchase.Currency,
		SuccessURL:   fmt.Sprintf("%s/course-progress/%d?success=true", s.cfg.ClientBaseURL, course.ID),
		CancelURL:    fmt.Sprintf("%s/course-detail/%d", s.cfg.ClientBaseURL, course.ID),
	})
	cancel()
	if err == nil && (session == nil || strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.URL) == "") {
		err = errors.New("checkout session without id or url")
	}
	s.metrics.ObserveProviderCall("create_checkout_session", err, time.Since(start))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"purchase_id": purchase.ID,
			"user_id":     userID,
			"course_id":   course.ID,
		}).Warn("Checkout session creation failed")

		_ = s.eventRepo.Create(ctx, &entity.PurchaseEvent{
			PurchaseID:  purchase.ID,
			EventType:   "checkout_session_failed",
			NewStatus:   purchase.Status,
			PayloadJSON: errorPayload(err),
			CreatedAt:   time.Now().UTC(),
		})
		s.metrics.IncCheckout("provider_error")
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	sessionID := strings.TrimSpace(session.ID)
	checkoutURL := strings.TrimSpace(session.URL)
	now = time.Now().UTC()
	if err := s.purchaseRepo.AttachCheckoutSession(ctx, purchase.ID, sessionID, checkoutURL, now); err != nil {
		s.metrics.IncCheckout("error")
		return nil, err
	}
	purchase.ProviderSessionID = &sessionID
	purchase.CheckoutURL = &checkoutURL
	purchase.UpdatedAt = now

	_ = s.eventRepo.Create(ctx, &entity.PurchaseEvent{
		PurchaseID:      purchase.ID,
		EventType:       "checkout_session_created",
		NewStatus:       purchase.Status,
		ProviderEventID: &sessionID,
		CreatedAt:       now,
	})
	s.metrics.IncCheckout("created")

	return purchase, nil
}

// ConfirmPayment asks the provider about the user's latest pending checkout
// for the course and reconciles it when the provider reports it paid.
func (s *PurchaseService) ConfirmPayment(ctx context.Context, userID string, courseID uint64) (*ConfirmResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || courseID == 0 {
		return nil, ErrInvalidRequest
	}

	purchase, err := s.purchaseRepo.FindLatestByUserCourse(ctx, userID, courseID, entity.PurchaseStatusPending)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		completed, err := s.purchaseRepo.ExistsForUserCourse(ctx, userID, courseID, true)
		if err != nil {
			return nil, err
		}
		if completed {
			return &ConfirmResult{AlreadyProcessed: true}, nil
		}
		return nil, ErrPurchaseNotFound
	}
	if purchase.ProviderSessionID == nil || strings.TrimSpace(*purchase.ProviderSessionID) == "" {
		return nil, fmt.Errorf("%w: purchase %d has no checkout session", ErrPurchaseNotFound, purchase.ID)
	}

	session, err := s.fetchCheckoutSession(ctx, *purchase.ProviderSessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	if !session.IsPaid() {
		return nil, ErrPaymentIncomplete
	}

	result, err := s.Reconcile(ctx, ReconcileInput{
		PurchaseID:  purchase.ID,
		CourseID:    courseID,
		UserID:      userID,
		FinalAmount: session.AmountTotal,
		Trigger:     TriggerConfirm,
	})
	if err != nil {
		return nil, err
	}

	return &ConfirmResult{Reconciliation: result}, nil
}

func (s *PurchaseService) GetPurchaseStatus(ctx context.Context, userID string, courseID uint64) (*PurchaseStatus, error) {
	if courseID == 0 {
		return nil, ErrInvalidRequest
	}

	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return &PurchaseStatus{Course: course}, nil
	}

	purchased, err := s.purchaseRepo.ExistsForUserCourse(ctx, userID, courseID, !s.cfg.StatusCountsPending)
	if err != nil {
		return nil, err
	}

	return &PurchaseStatus{Course: course, Purchased: purchased}, nil
}

func (s *PurchaseService) ListPurchasedCourses(ctx context.Context, userID string) ([]*entity.Course, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	courses, err := s.courseRepo.ListPurchasedByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []*entity.Course{}
	}
	return courses, nil
}

func (s *PurchaseService) fetchCheckoutSession(ctx context.Context, sessionID string) (*provider.CheckoutSession, error) {
	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	start := time.Now()
	session, err := s.payments.GetCheckoutSession(providerCtx, strings.TrimSpace(sessionID))
	if err == nil && session == nil {
		err = provider.ErrSessionNotFound
	}
	s.metrics.ObserveProviderCall("get_checkout_session", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PurchaseService) providerTimeout() time.Duration {
	if s.cfg.ProviderTimeout > 0 {
		return s.cfg.ProviderTimeout
	}
	return defaultProviderTimeout
}

func (s *PurchaseService) batchSize() int32 {
	if s.cfg.JobBatchSize > 0 {
		return s.cfg.JobBatchSize
	}
	return defaultBatchSize
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
