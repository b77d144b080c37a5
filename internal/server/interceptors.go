package server

import (
	"context"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"time"
)

func UnaryLoggingInterceptor(logger logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(logger, info.FullMethod, start, err)
		return resp, err
	}
}

func StreamLoggingInterceptor(logger logrus.FieldLogger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(logger, info.FullMethod, start, err)
		return err
	}
}

func logCall(logger logrus.FieldLogger, method string, start time.Time, err error) {
	code := status.Code(err)
	entry := logger.
		WithField("method", method).
		WithField("duration", time.Since(start).String()).
		WithField("code", code.String())

	switch code {
	case codes.OK, codes.Canceled:
		entry.Debug("call finished")
	case codes.Internal, codes.Unknown, codes.Unavailable:
		entry.WithError(err).Error("call failed")
	default:
		entry.WithError(err).Info("call rejected")
	}
}
