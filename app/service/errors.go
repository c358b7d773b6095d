package service

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrCourseNotFound    = errors.New("course not found")
	ErrPurchaseNotFound  = errors.New("purchase not found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrPaymentProvider   = errors.New("payment provider error")
	ErrPaymentIncomplete = errors.New("payment not completed")
	ErrInconsistentState = errors.New("inconsistent state")
)
