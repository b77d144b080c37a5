package config

import (
	"fmt"
	"github.com/spf13/viper"
	"strings"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Storage        string
	DatabaseDSN    string
	MigrateOnStart bool
	KafkaBrokers   []string
	UpdatesTopic   string
	PresenceBuffer int

	GroupID           string
	GroupUnread       bool
	ReuseReverseEntry bool

	// MemoryUsers seeds the in-memory user directory, "id=name" per item.
	MemoryUsers []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORAGE", StoragePostgres)
	v.SetDefault("DB_DSN", "")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("UPDATES_TOPIC", "chat-list-updates")
	v.SetDefault("PRESENCE_BUFFER", 16)
	v.SetDefault("GROUP_ID", "1")
	v.SetDefault("GROUP_UNREAD", false)
	v.SetDefault("REUSE_REVERSE_ENTRY", false)
	v.SetDefault("MEMORY_USERS", "")
}

// Load reads the configuration from the environment.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Storage:           strings.ToLower(v.GetString("STORAGE")),
		DatabaseDSN:       v.GetString("DB_DSN"),
		MigrateOnStart:    v.GetBool("MIGRATE_ON_START"),
		KafkaBrokers:      splitList(v.GetString("KAFKA_BROKERS"), ","),
		UpdatesTopic:      v.GetString("UPDATES_TOPIC"),
		PresenceBuffer:    v.GetInt("PRESENCE_BUFFER"),
		GroupID:           v.GetString("GROUP_ID"),
		GroupUnread:       v.GetBool("GROUP_UNREAD"),
		ReuseReverseEntry: v.GetBool("REUSE_REVERSE_ENTRY"),
		MemoryUsers:       strings.Fields(v.GetString("MEMORY_USERS")),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DB_DSN must be defined for %s storage", StoragePostgres)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.GroupID == "" {
		return fmt.Errorf("GROUP_ID can't be empty")
	}
	if c.PresenceBuffer <= 0 {
		return fmt.Errorf("PRESENCE_BUFFER must be positive, got %d", c.PresenceBuffer)
	}
	if len(c.KafkaBrokers) > 0 && c.UpdatesTopic == "" {
		return fmt.Errorf("UPDATES_TOPIC must be defined when KAFKA_BROKERS is set")
	}
	return nil
}

// ParseMemoryUsers turns "id=name" items into an id -> name map.
func ParseMemoryUsers(items []string) (map[string]string, error) {
	users := make(map[string]string, len(items))
	for _, item := range items {
		id, name, ok := strings.Cut(item, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed MEMORY_USERS item %q", item)
		}
		users[id] = name
	}
	return users, nil
}

func splitList(raw, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
