package types

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID          = "X-User-ID"
	HeaderStripeSignature = "Stripe-Signature"
)

type Course struct {
	Id           uint64 `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle,omitempty"`
	Category     string `json:"category,omitempty"`
	Level        string `json:"level,omitempty"`
	ThumbnailUrl string `json:"thumbnail_url,omitempty"`
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
	CreatorId    string `json:"creator_id"`
	IsPublished  bool   `json:"is_published"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type StartCheckoutRequest struct {
	UserId   string `json:"-"`
	CourseId uint64 `json:"course_id"`
}

func (r *StartCheckoutRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func (r *StartCheckoutRequest) GetCourseId() uint64 {
	if r == nil {
		return 0
	}
	return r.CourseId
}

type HandleWebhookRequest struct {
	RequestId string
	Signature string
	Payload   string
}

func (r *HandleWebhookRequest) GetRequestId() string {
	if r == nil {
		return ""
	}
	return r.RequestId
}

func (r *HandleWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

func (r *HandleWebhookRequest) GetPayload() string {
	if r == nil {
		return ""
	}
	return r.Payload
}

// CourseRequest addresses one course on behalf of the calling user.
type CourseRequest struct {
	UserId   string
	CourseId uint64
}

func (r *CourseRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func (r *CourseRequest) GetCourseId() uint64 {
	if r == nil {
		return 0
	}
	return r.CourseId
}

type ListPurchasedCoursesRequest struct {
	UserId string
}

func (r *ListPurchasedCoursesRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

type HealthResponse struct {
	Status string `json:"status"`
}

type CheckoutResponse struct {
	Success bool   `json:"success"`
	Url     string `json:"url"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PurchaseStatusResponse struct {
	Course    *Course `json:"course"`
	Purchased bool    `json:"purchased"`
}

type PurchasedCoursesResponse struct {
	Success          bool      `json:"success"`
	PurchasedCourses []*Course `json:"purchased_courses"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewStartCheckoutRequestFromContext(ctx echo.Context) (*StartCheckoutRequest, error) {
	var body StartCheckoutRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.UserId = userIDFromContext(ctx)

	return &body, nil
}

func (r *StartCheckoutRequest) Validate() error {
	if r.GetUserId() == "" {
		return errors.New("user id is required")
	}
	if r.GetCourseId() == 0 {
		return errors.New("course_id is required")
	}
	return nil
}

// NewHandleWebhookRequestFromContext accepts either the raw provider delivery
// with its Stripe-Signature header or the gateway envelope
// {"payload": "...", "signature": "..."}.
func NewHandleWebhookRequestFromContext(ctx echo.Context) (*HandleWebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	req := &HandleWebhookRequest{
		RequestId: strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID)),
		Signature: strings.TrimSpace(ctx.Request().Header.Get(HeaderStripeSignature)),
		Payload:   string(rawBody),
	}

	var body struct {
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
	}
	if len(rawBody) > 0 && json.Unmarshal(rawBody, &body) == nil && strings.TrimSpace(body.Payload) != "" {
		req.Payload = body.Payload
		if strings.TrimSpace(body.Signature) != "" {
			req.Signature = strings.TrimSpace(body.Signature)
		}
	}

	return req, nil
}

func (r *HandleWebhookRequest) Validate() error {
	if strings.TrimSpace(r.GetPayload()) == "" {
		return errors.New("payload is required")
	}
	return nil
}

func NewCourseRequestFromContext(ctx echo.Context) (*CourseRequest, error) {
	courseID, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("courseId")), 10, 64)
	if err != nil {
		return nil, err
	}
	return &CourseRequest{UserId: userIDFromContext(ctx), CourseId: courseID}, nil
}

func (r *CourseRequest) Validate() error {
	if r.GetCourseId() == 0 {
		return errors.New("invalid course id")
	}
	return nil
}

// ValidateWithUser is used by routes acting on the caller's own purchases.
func (r *CourseRequest) ValidateWithUser() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.GetUserId() == "" {
		return errors.New("user id is required")
	}
	return nil
}

func NewListPurchasedCoursesRequestFromContext(ctx echo.Context) (*ListPurchasedCoursesRequest, error) {
	return &ListPurchasedCoursesRequest{UserId: userIDFromContext(ctx)}, nil
}

func (r *ListPurchasedCoursesRequest) Validate() error {
	if r.GetUserId() == "" {
		return errors.New("user id is required")
	}
	return nil
}

func userIDFromContext(ctx echo.Context) string {
	return strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
}
