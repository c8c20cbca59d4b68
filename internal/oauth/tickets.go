// Package oauth runs the platform OAuth flows that connect social accounts.
// The state parameter of every flow is a single-use ticket naming the owner
// who started it.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// DefaultTicketTTL bounds how long a started flow may take
const DefaultTicketTTL = 10 * time.Minute

const ticketKeyPrefix = "citizenconnect:oauth:ticket:"

// ErrTicketNotFound is returned for unknown, expired or already redeemed states
var ErrTicketNotFound = errors.New("oauth state is invalid or expired")

// Ticket is the server-side half of an OAuth flow in progress
type Ticket struct {
	OwnerID   uint            `json:"owner_id"`
	Platform  models.Platform `json:"platform"`
	Verifier  string          `json:"verifier,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TicketStore keeps tickets until they are redeemed or expire
type TicketStore interface {
	// Issue stores the ticket and returns the state that redeems it
	Issue(ctx context.Context, ticket Ticket) (string, error)
	// Redeem returns the ticket of state and forgets it
	Redeem(ctx context.Context, state string) (Ticket, error)
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// MemoryTicketStore keeps tickets in process memory
type MemoryTicketStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	tickets map[string]Ticket
}

// NewMemoryTicketStore creates an in-memory store whose tickets live for ttl
func NewMemoryTicketStore(ttl time.Duration) *MemoryTicketStore {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &MemoryTicketStore{ttl: ttl, now: time.Now, tickets: make(map[string]Ticket)}
}

// Issue implements TicketStore
func (s *MemoryTicketStore) Issue(_ context.Context, ticket Ticket) (string, error) {
	state, err := newState()
	if err != nil {
		return "", err
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.tickets {
		if s.expired(t) {
			delete(s.tickets, k)
		}
	}
	s.tickets[state] = ticket
	return state, nil
}

// Redeem implements TicketStore
func (s *MemoryTicketStore) Redeem(_ context.Context, state string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[state]
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	delete(s.tickets, state)
	if s.expired(ticket) {
		return Ticket{}, ErrTicketNotFound
	}
	return ticket, nil
}

func (s *MemoryTicketStore) expired(t Ticket) bool {
	return s.now().Sub(t.CreatedAt) > s.ttl
}

// RedisTicketStore keeps tickets in redis with a TTL, so any replica can
// finish a flow another one started
type RedisTicketStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTicketStore creates a store on client whose tickets live for ttl
func NewRedisTicketStore(client *redis.Client, ttl time.Duration) *RedisTicketStore {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &RedisTicketStore{client: client, ttl: ttl}
}

// Issue implements TicketStore
func (s *RedisTicketStore) Issue(ctx context.Context, ticket Ticket) (string, error) {
	state, err := newState()
	if err != nil {
		return "", err
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	data, err := json.Marshal(ticket)
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth ticket: %w", err)
	}
	if err := s.client.Set(ctx, ticketKeyPrefix+state, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth ticket: %w", err)
	}
	return state, nil
}

// Redeem implements TicketStore. GETDEL makes the ticket single use.
func (s *RedisTicketStore) Redeem(ctx context.Context, state string) (Ticket, error) {
	data, err := s.client.GetDel(ctx, ticketKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("failed to redeem oauth ticket: %w", err)
	}
	var ticket Ticket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return Ticket{}, fmt.Errorf("failed to decode oauth ticket: %w", err)
	}
	return ticket, nil
}

// RedisConfig holds the redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ErrEmptyRedisAddress is returned when no redis address is configured
var ErrEmptyRedisAddress = errors.New("redis address is required")

const redisConnectTimeout = 5 * time.Second

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyRedisAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
