package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/chatlist-service/internal/config"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	"github.com/practice-sem-2/chatlist-service/internal/server"
	storage "github.com/practice-sem-2/chatlist-service/internal/storages"
	usecase "github.com/practice-sem-2/chatlist-service/internal/usecases"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func initLogger(level string) *logrus.Logger {

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		PrettyPrint: true,
	})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		logger.
			WithField("log_level", level).
			Warning("specified invalid log level")
	} else {
		logger.SetLevel(logLevel)
		logger.
			WithField("log_level", level).
			Infof("specified %s log level", logLevel.String())
	}

	return logger
}

func initDB(dsn string, logger *logrus.Logger) *sqlx.DB {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		logger.Fatalf("can't connect to database: %s", err.Error())
	}

	err = db.Ping()

	if err != nil {
		logger.Fatalf("database ping failed: %s", err.Error())
	}

	logger.Info("successfully connected to database")
	return db
}

func initServer(address string, c *usecase.ChatListUsecase, p *usecase.PresenceUsecase, v *validator.Validate, presenceBuffer int, logger *logrus.Logger) (*grpc.Server, net.Listener) {

	listener, err := net.Listen("tcp", address)
	logger.Infof("start listening on %s", address)

	if err != nil {
		logger.Fatalf("can't listen to address: %s", err.Error())
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.UnaryLoggingInterceptor(logger)),
		grpc.StreamInterceptor(server.StreamLoggingInterceptor(logger)),
	)
	server.RegisterChatListServer(grpcServer, server.NewChatListServer(c, p, v, logger, presenceBuffer))

	return grpcServer, listener
}

func initProducer(brokers []string, logger *logrus.Logger) sarama.SyncProducer {
	config := sarama.NewConfig()
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Timeout = 10 * time.Second
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, config)

	if err != nil {
		logger.WithError(err).Fatalf("can't create producer")
	}

	return producer
}

func initUpdates(cfg *config.Config, logger *logrus.Logger) (storage.UpdatesStore, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS is not defined, chat list updates won't be published")
		return storage.NopUpdatesStore{}, func() {}
	}

	producer := initProducer(cfg.KafkaBrokers, logger)
	updates := storage.NewUpdatesStore(producer, &storage.UpdatesStoreConfig{
		UpdatesTopic: cfg.UpdatesTopic,
	})
	return updates, func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("can't close kafka producer")
		}
	}
}

func initMemoryRegistry(cfg *config.Config, updates storage.UpdatesStore, logger *logrus.Logger) *storage.MemoryRegistry {
	users, err := config.ParseMemoryUsers(cfg.MemoryUsers)
	if err != nil {
		logger.WithError(err).Fatal("can't seed memory directory")
	}

	directory := storage.NewMemoryDirectory()
	directory.PutGroup(models.TargetInfo{ID: cfg.GroupID, Name: "General"})
	for id, name := range users {
		directory.PutUser(models.TargetInfo{ID: id, Name: name})
	}

	logger.
		WithField("users", len(users)).
		Warn("using in-memory storage, chat lists are lost on restart")
	return storage.NewMemoryRegistry(directory, updates)
}

func main() {
	ctx := context.Background()

	var host string
	var port int
	var logLevel string

	flag.IntVar(&port, "port", 80, "port on which server will be started")
	flag.StringVar(&host, "host", "0.0.0.0", "host on which server will be started")
	flag.StringVar(&logLevel, "log", "info", "log level")

	flag.Parse()

	logger := initLogger(logLevel)

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Fatalf("invalid configuration: %s", err.Error())
	}

	updates, closeUpdates := initUpdates(cfg, logger)
	defer closeUpdates()

	var registry storage.Registry
	if cfg.Storage == config.StorageMemory {
		registry = initMemoryRegistry(cfg, updates, logger)
	} else {
		db := initDB(cfg.DatabaseDSN, logger)
		defer func(db *sqlx.DB) {
			err := db.Close()
			if err != nil {
				logger.Errorf("during db connection close an error occurred: %s", err.Error())
			}
		}(db)

		if cfg.MigrateOnStart {
			version, err := storage.Migrate(db)
			if err != nil {
				logger.Fatalf("can't migrate database: %s", err.Error())
			}
			logger.WithField("version", version).Info("database schema is up to date")
		}

		registry = storage.NewRegistry(db, updates)
	}

	chatsUsecase := usecase.NewChatListUsecase(registry, usecase.ChatListConfig{
		GroupID:           cfg.GroupID,
		GroupUnread:       cfg.GroupUnread,
		ReuseReverseEntry: cfg.ReuseReverseEntry,
	})
	presenceUsecase := usecase.NewPresenceUsecase(registry, logger)
	defer presenceUsecase.Close()

	validate := validator.New()
	address := fmt.Sprintf("%s:%d", host, port)
	srv, lis := initServer(address, chatsUsecase, presenceUsecase, validate, cfg.PresenceBuffer, logger)
	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	go func(ctx context.Context) {
		select {
		case sig := <-osSignal:
			logger.Infof("%s caught. Gracefully shutdown", sig.String())
			presenceUsecase.Close()

			// Presence streams live as long as their clients, don't wait for them forever.
			stopped := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(10 * time.Second):
				srv.Stop()
			}
		case <-ctx.Done():
			return
		}
	}(ctx)

	err = srv.Serve(lis)
	if err != nil {
		logger.Fatalf("grpc serving error: %s", err.Error())
	}
}
