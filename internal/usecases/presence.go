package usecases

import (
	"context"
	"errors"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	storage "github.com/practice-sem-2/chatlist-service/internal/storages"
	"github.com/sirupsen/logrus"
	"sort"
	"sync"
	"time"
)

var ErrPresenceClosed = errors.New("presence registry is closed")

// PresenceQueueSize bounds the presence updates waiting to be published.
const PresenceQueueSize = 1024

// Connection is a client connection owned by the transport layer.
type Connection interface {
	Notify(n models.Notification) error
}

// PresenceUsecase tracks connected users and tells every connection when a user
// goes online or offline. A user with several connections is online from the
// first connect until the last disconnect.
type PresenceUsecase struct {
	registry storage.Registry
	logger   logrus.FieldLogger
	now      func() time.Time

	// events serializes registry changes together with their broadcast so that
	// clients see a user's online and offline notifications in order.
	events sync.Mutex
	mu     sync.RWMutex
	conns  map[string]map[Connection]struct{}
	closed bool

	// published is drained by a single worker so a slow broker never holds events.
	published chan *models.PresenceChanged
	done      chan struct{}
}

func NewPresenceUsecase(r storage.Registry, logger logrus.FieldLogger) *PresenceUsecase {
	p := &PresenceUsecase{
		registry: r,
		logger:   logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
		conns:     make(map[string]map[Connection]struct{}),
		published: make(chan *models.PresenceChanged, PresenceQueueSize),
		done:      make(chan struct{}),
	}
	go p.publish()
	return p
}

func (p *PresenceUsecase) OnConnect(ctx context.Context, userId string, conn Connection) error {
	if err := validateIDs(userId); err != nil {
		return err
	}

	info, err := p.registry.GetDirectoryStore().GetUserByID(ctx, userId)
	if err != nil {
		return err
	}

	p.events.Lock()
	defer p.events.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPresenceClosed
	}
	userConns, ok := p.conns[userId]
	if !ok {
		userConns = make(map[Connection]struct{})
		p.conns[userId] = userConns
	}
	userConns[conn] = struct{}{}
	first := len(userConns) == 1
	p.mu.Unlock()

	if first {
		p.broadcast(models.NotificationOnline, *info)
	}
	return nil
}

func (p *PresenceUsecase) OnDisconnect(ctx context.Context, userId string, conn Connection) {
	p.events.Lock()
	defer p.events.Unlock()

	p.mu.Lock()
	userConns, ok := p.conns[userId]
	if ok {
		_, ok = userConns[conn]
	}
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(userConns, conn)
	last := len(userConns) == 0
	if last {
		delete(p.conns, userId)
	}
	p.mu.Unlock()

	if !last {
		return
	}

	info, err := p.registry.GetDirectoryStore().GetUserByID(ctx, userId)
	if err != nil {
		p.logger.
			WithError(err).
			WithField("user_id", userId).
			Warn("can't resolve user going offline")
		info = &models.TargetInfo{ID: userId}
	}
	p.broadcast(models.NotificationOffline, *info)
}

func (p *PresenceUsecase) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.conns))
	for userId := range p.conns {
		users = append(users, userId)
	}
	sort.Strings(users)
	return users
}

// Close forgets every connection and waits until queued presence updates are
// published. Later OnConnect calls fail with ErrPresenceClosed.
func (p *PresenceUsecase) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.conns = make(map[string]map[Connection]struct{})
		close(p.published)
	}
	p.mu.Unlock()

	<-p.done
}

func (p *PresenceUsecase) broadcast(t models.NotificationType, user models.TargetInfo) {
	n := models.Notification{
		Type: t,
		Time: p.now(),
		User: user,
	}

	p.mu.RLock()
	targets := make([]Connection, 0, len(p.conns))
	for _, userConns := range p.conns {
		for conn := range userConns {
			targets = append(targets, conn)
		}
	}
	p.mu.RUnlock()

	for _, conn := range targets {
		p.notify(conn, n)
	}

	p.enqueue(&models.PresenceChanged{
		UpdateMeta: models.UpdateMeta{
			Timestamp: n.Time,
		},
		UserID: user.ID,
		Type:   t,
	})
}

func (p *PresenceUsecase) enqueue(upd *models.PresenceChanged) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.published <- upd:
	default:
		p.logger.
			WithField("user_id", upd.UserID).
			WithField("notification", string(upd.Type)).
			Error("presence update queue is full, update dropped")
	}
}

func (p *PresenceUsecase) publish() {
	defer close(p.done)

	for upd := range p.published {
		if err := p.registry.GetUpdatesStore().PresenceChanged(upd); err != nil {
			p.logger.
				WithError(err).
				WithField("user_id", upd.UserID).
				Error("can't publish presence update")
		}
	}
}

func (p *PresenceUsecase) notify(conn Connection, n models.Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.
				WithField("user_id", n.User.ID).
				Errorf("presence notification panicked: %v", r)
		}
	}()

	if err := conn.Notify(n); err != nil {
		p.logger.
			WithError(err).
			WithField("user_id", n.User.ID).
			WithField("notification", string(n.Type)).
			Warn("presence notification not delivered")
	}
}
