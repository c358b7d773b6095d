package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

// Reconcile applies a confirmed payment: the purchase is marked completed with
// the final amount, the user and course are linked in both directions and a
// progress record is ensured. Every step is idempotent, so a later call for
// the same purchase finishes whatever an earlier failed call left undone.
// Concurrent calls with the same input in this process share one execution.
// The shared execution is detached from the caller that started it, so a
// caller giving up only abandons its own wait.
func (s *PurchaseService) Reconcile(ctx context.Context, input ReconcileInput) (*ReconciliationResult, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	if input.PurchaseID == 0 || input.CourseID == 0 || input.UserID == "" || input.FinalAmount < 0 {
		return nil, ErrInvalidRequest
	}

	key := fmt.Sprintf("%d:%d:%s:%d", input.PurchaseID, input.CourseID, input.UserID, input.FinalAmount)
	ch := s.reconciles.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
		defer cancel()
		return s.reconcile(flightCtx, input)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ReconciliationResult), nil
	}
}

func (s *PurchaseService) reconcile(ctx context.Context, input ReconcileInput) (*ReconciliationResult, error) {
	l := s.logger.WithFields(logrus.Fields{
		"purchase_id": input.PurchaseID,
		"user_id":     input.UserID,
		"course_id":   input.CourseID,
		"trigger":     input.Trigger,
	})

	purchase, err := s.purchaseRepo.FindByID(ctx, input.PurchaseID)
	if err != nil {
		return nil, s.reconcileFailed(l, "load_purchase", err)
	}
	if purchase == nil {
		return nil, ErrPurchaseNotFound
	}
	if purchase.CourseID != input.CourseID || purchase.UserID != input.UserID {
		l.Warn("Reconcile input does not match purchase")
		return nil, fmt.Errorf("%w: purchase %d does not belong to user and course", ErrInvalidRequest, purchase.ID)
	}

	now := time.Now().UTC()
	oldStatus := purchase.Status
	if err := s.purchaseRepo.MarkCompleted(ctx, purchase.ID, input.FinalAmount, now); err != nil {
		return nil, s.reconcileFailed(l, "mark_completed", err)
	}
	purchase.Status = entity.PurchaseStatusCompleted
	purchase.Amount = input.FinalAmount
	if purchase.CompletedAt == nil {
		purchase.CompletedAt = &now
	}
	purchase.UpdatedAt = now

	if oldStatus != entity.PurchaseStatusCompleted {
		_ = s.eventRepo.Create(ctx, &entity.PurchaseEvent{
			PurchaseID:      purchase.ID,
			EventType:       "purchase_completed",
			OldStatus:       &oldStatus,
			NewStatus:       purchase.Status,
			ProviderEventID: input.ProviderEventID,
			CreatedAt:       now,
		})
	}

	if err := s.enrollmentRepo.AddUserCourse(ctx, purchase.UserID, purchase.CourseID, now); err != nil {
		return nil, s.reconcileFailed(l, "enroll_user", err)
	}
	courseIDs, err := s.enrollmentRepo.ListCourseIDsForUser(ctx, purchase.UserID)
	if err != nil {
		return nil, s.reconcileFailed(l, "enroll_user", err)
	}

	course, err := s.courseRepo.FindByID(ctx, purchase.CourseID)
	if err != nil {
		return nil, s.reconcileFailed(l, "enroll_course", err)
	}
	if course == nil {
		return nil, s.reconcileFailed(l, "enroll_course", fmt.Errorf("%w: course %d no longer exists", ErrInconsistentState, purchase.CourseID))
	}
	if err := s.enrollmentRepo.AddCourseStudent(ctx, purchase.CourseID, purchase.UserID, now); err != nil {
		return nil, s.reconcileFailed(l, "enroll_course", err)
	}
	studentIDs, err := s.enrollmentRepo.ListStudentIDsForCourse(ctx, purchase.CourseID)
	if err != nil {
		return nil, s.reconcileFailed(l, "enroll_course", err)
	}

	progress, err := s.progressRepo.Ensure(ctx, &entity.CourseProgress{
		UserID:          purchase.UserID,
		CourseID:        purchase.CourseID,
		Completed:       false,
		LectureProgress: []entity.LectureProgress{},
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, s.reconcileFailed(l, "progress", err)
	}

	s.metrics.IncReconcile(input.Trigger)
	l.WithField("amount", purchase.Amount).Info("Purchase reconciled")

	return &ReconciliationResult{
		Purchase:          purchase,
		EnrolledCourseIDs: courseIDs,
		RosterUserIDs:     studentIDs,
		Progress:          progress,
	}, nil
}

func (s *PurchaseService) reconcileFailed(l logrus.FieldLogger, step string, err error) error {
	l.WithError(err).WithField("step", step).Error("Reconcile stopped before completion")
	s.metrics.IncReconcileFailure(step)
	return err
}

func errorPayload(err error) *string {
	encoded, _ := json.Marshal(map[string]string{"error": truncate(err.Error(), 1024)})
	payload := string(encoded)
	return &payload
}
