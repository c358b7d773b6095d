package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vibast-solutions/ms-go-course-purchases/app/mapper"
	"github.com/vibast-solutions/ms-go-course-purchases/app/service"
	"github.com/vibast-solutions/ms-go-course-purchases/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	purchaseService *service.PurchaseService
}

func NewServer(purchaseService *service.PurchaseService) *Server {
	return &Server{purchaseService: purchaseService}
}

func (s *Server) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(&types.HealthResponse{Status: "ok"})
}

func (s *Server) GetPurchaseStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := courseRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.purchaseService.GetPurchaseStatus(ctx, req.GetUserId(), req.GetCourseId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCourseNotFound):
			return nil, status.Error(codes.NotFound, "course not found")
		case errors.Is(err, service.ErrInvalidRequest):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		default:
			loggerWithContext(ctx).WithError(err).Error("Get purchase status failed")
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	return toStruct(&types.PurchaseStatusResponse{
		Course:    mapper.CourseToResponse(result.Course),
		Purchased: result.Purchased,
	})
}

func (s *Server) ListPurchasedCourses(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.ListPurchasedCoursesRequest{UserId: stringField(in, "user_id")}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	courses, err := s.purchaseService.ListPurchasedCourses(ctx, req.GetUserId())
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("List purchased courses failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return toStruct(&types.PurchasedCoursesResponse{
		Success:          true,
		PurchasedCourses: mapper.CoursesToResponse(courses),
	})
}

func (s *Server) ConfirmPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := courseRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.ValidateWithUser(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.purchaseService.ConfirmPayment(ctx, req.GetUserId(), req.GetCourseId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPurchaseNotFound):
			return nil, status.Error(codes.NotFound, "purchase not found")
		case errors.Is(err, service.ErrPaymentIncomplete):
			return nil, status.Error(codes.FailedPrecondition, "payment not completed")
		case errors.Is(err, service.ErrInvalidRequest):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, service.ErrPaymentProvider):
			loggerWithContext(ctx).WithError(err).Warn("Checkout session lookup failed")
			return nil, status.Error(codes.Unavailable, "payment provider unavailable")
		default:
			loggerWithContext(ctx).WithError(err).Error("Confirm payment failed")
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	message := "Payment processed successfully"
	if result.AlreadyProcessed {
		message = "Payment already processed"
	}
	return toStruct(&types.MessageResponse{Success: true, Message: message})
}

func courseRequestFromStruct(in *structpb.Struct) (*types.CourseRequest, error) {
	courseID, err := uintField(in, "course_id")
	if err != nil {
		return nil, err
	}
	return &types.CourseRequest{UserId: stringField(in, "user_id"), CourseId: courseID}, nil
}

func stringField(in *structpb.Struct, name string) string {
	v, ok := in.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// uintField accepts both numeric and string encodings.
func uintField(in *structpb.Struct, name string) (uint64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n < 0 || n != math.Trunc(n) || n > math.MaxInt64 {
			return 0, fmt.Errorf("%s must be a positive integer", name)
		}
		return uint64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a positive integer", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(encoded); err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}
