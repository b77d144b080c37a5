package storage

import (
	"github.com/Shopify/sarama"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"time"
)

type UpdatesStorage struct {
	cfg      *UpdatesStoreConfig
	producer sarama.SyncProducer
}

type UpdatesStoreConfig struct {
	UpdatesTopic string
}

func NewUpdatesStore(p sarama.SyncProducer, cfg *UpdatesStoreConfig) *UpdatesStorage {
	return &UpdatesStorage{
		producer: p,
		cfg:      cfg,
	}
}

func (s *UpdatesStorage) putUpdate(topic, key string, event *structpb.Struct) error {
	bytes, err := proto.Marshal(event)
	if err != nil {
		return err
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(bytes),
		Timestamp: time.Time{},
	})

	return err
}

func metaToMap(meta models.UpdateMeta) map[string]interface{} {
	audience := make([]interface{}, len(meta.Audience))
	for i, user := range meta.Audience {
		audience[i] = user
	}
	return map[string]interface{}{
		"timestamp": meta.Timestamp.UTC().Unix(),
		"audience":  audience,
	}
}

func messageToValue(msg *models.Message) interface{} {
	if msg == nil {
		return nil
	}
	return map[string]interface{}{
		"id":         msg.ID,
		"from_id":    msg.FromID,
		"to_id":      msg.ToID,
		"type":       string(msg.Type),
		"text":       msg.Text,
		"created_at": msg.CreatedAt.UTC().Unix(),
	}
}

func (s *UpdatesStorage) chatListUpdatedToProtobuf(upd *models.ChatListUpdated) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"meta": metaToMap(upd.UpdateMeta),
		"chat_list_updated": map[string]interface{}{
			"owner_id":  upd.OwnerID,
			"target_id": upd.TargetID,
			"type":      string(upd.Type),
			"message":   messageToValue(upd.Message),
		},
	})
}

func (s *UpdatesStorage) presenceChangedToProtobuf(upd *models.PresenceChanged) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"meta": metaToMap(upd.UpdateMeta),
		"presence_changed": map[string]interface{}{
			"user_id": upd.UserID,
			"type":    string(upd.Type),
		},
	})
}

// ChatListUpdated is keyed by owner so that updates of one list stay ordered
// within a partition. Group updates have no owner and are keyed by the group id.
func (s *UpdatesStorage) ChatListUpdated(upd *models.ChatListUpdated) error {
	update, err := s.chatListUpdatedToProtobuf(upd)
	if err != nil {
		return err
	}
	key := upd.OwnerID
	if key == "" {
		key = upd.TargetID
	}
	return s.putUpdate(s.cfg.UpdatesTopic, key, update)
}

func (s *UpdatesStorage) PresenceChanged(upd *models.PresenceChanged) error {
	update, err := s.presenceChangedToProtobuf(upd)
	if err != nil {
		return err
	}
	return s.putUpdate(s.cfg.UpdatesTopic, upd.UserID, update)
}

// NopUpdatesStore drops every update. It is used when no brokers are configured.
type NopUpdatesStore struct{}

func (NopUpdatesStore) ChatListUpdated(*models.ChatListUpdated) error { return nil }

func (NopUpdatesStore) PresenceChanged(*models.PresenceChanged) error { return nil }
