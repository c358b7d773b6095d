package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-course-purchases/app/factory"
	"github.com/vibast-solutions/ms-go-course-purchases/app/mapper"
	"github.com/vibast-solutions/ms-go-course-purchases/app/service"
	"github.com/vibast-solutions/ms-go-course-purchases/app/types"
)

type PurchaseController struct {
	purchaseService *service.PurchaseService
	logger          logrus.FieldLogger
}

func NewPurchaseController(purchaseService *service.PurchaseService) *PurchaseController {
	return &PurchaseController{
		purchaseService: purchaseService,
		logger:          factory.NewModuleLogger("purchases-controller"),
	}
}

func (c *PurchaseController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PurchaseController) StartCheckout(ctx echo.Context) error {
	req, err := types.NewStartCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	purchase, err := c.purchaseService.StartCheckout(ctx.Request().Context(), req.GetUserId(), req.GetCourseId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrCourseNotFound):
			return c.writeError(ctx, http.StatusNotFound, "Course not found")
		case errors.Is(err, service.ErrPaymentProvider):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Checkout session creation failed")
			return c.writeError(ctx, http.StatusBadGateway, "Failed to create checkout session")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Start checkout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	url := ""
	if purchase.CheckoutURL != nil {
		url = *purchase.CheckoutURL
	}
	return ctx.JSON(http.StatusOK, &types.CheckoutResponse{Success: true, Url: url})
}

func (c *PurchaseController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewHandleWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	_, err = c.purchaseService.HandleWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			return c.writeError(ctx, http.StatusBadRequest, "Webhook signature verification failed")
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPurchaseNotFound):
			return c.writeError(ctx, http.StatusNotFound, "Purchase not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookResponse{Received: true})
}

func (c *PurchaseController) ConfirmPayment(ctx echo.Context) error {
	req, err := types.NewCourseRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid course id")
	}
	if err := req.ValidateWithUser(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.purchaseService.ConfirmPayment(ctx.Request().Context(), req.GetUserId(), req.GetCourseId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPurchaseNotFound):
			return c.writeError(ctx, http.StatusNotFound, "Purchase not found")
		case errors.Is(err, service.ErrPaymentIncomplete):
			return c.writeError(ctx, http.StatusBadRequest, "Payment not completed")
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPaymentProvider):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Checkout session lookup failed")
			return c.writeError(ctx, http.StatusBadGateway, "Failed to verify payment")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Confirm payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	message := "Payment processed successfully"
	if result.AlreadyProcessed {
		message = "Payment already processed"
	}
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Success: true, Message: message})
}

func (c *PurchaseController) GetPurchaseStatus(ctx echo.Context) error {
	req, err := types.NewCourseRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid course id")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	status, err := c.purchaseService.GetPurchaseStatus(ctx.Request().Context(), req.GetUserId(), req.GetCourseId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCourseNotFound):
			return c.writeError(ctx, http.StatusNotFound, "Course not found")
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get purchase status failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.PurchaseStatusResponse{
		Course:    mapper.CourseToResponse(status.Course),
		Purchased: status.Purchased,
	})
}

func (c *PurchaseController) ListPurchasedCourses(ctx echo.Context) error {
	req, err := types.NewListPurchasedCoursesRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	courses, err := c.purchaseService.ListPurchasedCourses(ctx.Request().Context(), req.GetUserId())
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List purchased courses failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PurchasedCoursesResponse{
		Success:          true,
		PurchasedCourses: mapper.CoursesToResponse(courses),
	})
}

func (c *PurchaseController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Success: false, Message: message})
}
