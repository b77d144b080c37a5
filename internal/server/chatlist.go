package server

import (
	"context"
	"errors"
	"github.com/go-playground/validator/v10"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	usecase "github.com/practice-sem-2/chatlist-service/internal/usecases"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrConnectionBusy = errors.New("connection can't keep up with notifications")

const DefaultPresenceBuffer = 16

type ChatListServer struct {
	chats          *usecase.ChatListUsecase
	presence       *usecase.PresenceUsecase
	validate       *validator.Validate
	logger         logrus.FieldLogger
	presenceBuffer int
}

func NewChatListServer(c *usecase.ChatListUsecase, p *usecase.PresenceUsecase, v *validator.Validate, logger logrus.FieldLogger, presenceBuffer int) *ChatListServer {
	if presenceBuffer <= 0 {
		presenceBuffer = DefaultPresenceBuffer
	}
	return &ChatListServer{
		chats:          c,
		presence:       p,
		validate:       v,
		logger:         logger,
		presenceBuffer: presenceBuffer,
	}
}

func (s *ChatListServer) decode(in *structpb.Struct, dest interface{}) error {
	if err := structToModel(in, dest); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.validate.Struct(dest); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func (s *ChatListServer) CreateOrGetPrivate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var r privateRequest
	if err := s.decode(in, &r); err != nil {
		return nil, err
	}

	entry, err := s.chats.CreateOrGetPrivate(ctx, r.OwnerID, r.TargetID)
	if err != nil {
		return nil, wrapError(err)
	}
	return s.encodeEntry(entry)
}

func (s *ChatListServer) GetOrCreateGroup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var r ownerRequest
	if err := s.decode(in, &r); err != nil {
		return nil, err
	}

	entry, err := s.chats.GetOrCreateGroup(ctx, r.OwnerID)
	if err != nil {
		return nil, wrapError(err)
	}
	return s.encodeEntry(entry)
}

func (s *ChatListServer) ListPrivate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var r ownerRequest
	if err := s.decode(in, &r); err != nil {
		return nil, err
	}

	entries, err := s.chats.ListPrivate(ctx, r.OwnerID)
	if err != nil {
		return nil, wrapError(err)
	}

	out, err := EntriesToProto(entries)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *ChatListServer) PrivateMessage(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var r privateMessageRequest
	if err := s.decode(in, &r); err != nil {
		return nil, err
	}

	err := s.chats.OnPrivateMessage(ctx, r.SenderID, r.RecipientID, r.Message)
	if err != nil {
		return nil, wrapError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatListServer) GroupMessage(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var r groupMessageRequest
	if err := s.decode(in, &r); err != nil {
		return nil, err
	}

	if err := s.chats.OnGroupMessage(ctx, r.Message); err != nil {
		return nil, wrapError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatListServer) OnlineUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := modelToStruct(onlineUsersResponse{UserIDs: s.presence.OnlineUsers()})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Presence keeps the stream registered as the user's connection until the
// client goes away and forwards every presence notification to it.
func (s *ChatListServer) Presence(in *structpb.Struct, stream grpc.ServerStream) error {
	var r presenceRequest
	if err := s.decode(in, &r); err != nil {
		return err
	}

	ctx := stream.Context()
	conn := newStreamConnection(s.presenceBuffer)
	if err := s.presence.OnConnect(ctx, r.UserID, conn); err != nil {
		return wrapError(err)
	}
	defer s.presence.OnDisconnect(context.Background(), r.UserID, conn)

	for {
		select {
		case n := <-conn.notifications:
			msg, err := NotificationToProto(n)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err = stream.SendMsg(msg); err != nil {
				s.logger.
					WithError(err).
					WithField("user_id", r.UserID).
					Debug("presence stream closed while sending")
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *ChatListServer) encodeEntry(entry *models.ChatListEntry) (*structpb.Struct, error) {
	out, err := EntryToProto(entry)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

type streamConnection struct {
	notifications chan models.Notification
}

func newStreamConnection(buffer int) *streamConnection {
	return &streamConnection{
		notifications: make(chan models.Notification, buffer),
	}
}

// Notify never blocks: a client that does not drain its stream loses notifications.
func (c *streamConnection) Notify(n models.Notification) error {
	select {
	case c.notifications <- n:
		return nil
	default:
		return ErrConnectionBusy
	}
}

func wrapError(err error) error {
	errorMapper := []struct {
		from error
		to   codes.Code
	}{
		{from: usecase.ErrInvalidArgument, to: codes.InvalidArgument},
		{from: usecase.ErrNotFound, to: codes.NotFound},
		{from: usecase.ErrPresenceClosed, to: codes.Unavailable},
		{from: context.Canceled, to: codes.Canceled},
		{from: context.DeadlineExceeded, to: codes.DeadlineExceeded},
	}

	if err == nil {
		return nil
	}

	for _, mapping := range errorMapper {
		if errors.Is(err, mapping.from) {
			return status.Error(mapping.to, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
