package server

import (
	"encoding/json"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type privateRequest struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
}

type ownerRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
}

type privateMessageRequest struct {
	SenderID    string         `json:"sender_id" validate:"required"`
	RecipientID string         `json:"recipient_id" validate:"required"`
	// Sender and recipient are filled in by the usecase before the message is checked.
	Message     models.Message `json:"message" validate:"-"`
}

type groupMessageRequest struct {
	Message models.Message `json:"message"`
}

type presenceRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type entriesResponse struct {
	Entries []models.ChatListEntry `json:"entries"`
}

type onlineUsersResponse struct {
	UserIDs []string `json:"user_ids"`
}

// structToModel fills dest from a structpb document using dest's json tags.
func structToModel(in *structpb.Struct, dest interface{}) error {
	bytes, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, dest)
}

func modelToStruct(v interface{}) (*structpb.Struct, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err = protojson.Unmarshal(bytes, out); err != nil {
		return nil, err
	}
	return out, nil
}

func EntryToProto(entry *models.ChatListEntry) (*structpb.Struct, error) {
	return modelToStruct(entry)
}

func EntriesToProto(entries []models.ChatListEntry) (*structpb.Struct, error) {
	if entries == nil {
		entries = []models.ChatListEntry{}
	}
	return modelToStruct(entriesResponse{Entries: entries})
}

func NotificationToProto(n models.Notification) (*structpb.Struct, error) {
	return modelToStruct(n)
}
