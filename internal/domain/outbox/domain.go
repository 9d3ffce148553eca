package outbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

type Kind int

const (
	KindUserCreated    Kind = 1
	KindSessionIssued  Kind = 2
	KindSessionRevoked Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindUserCreated:
		return "user.created"
	case KindSessionIssued:
		return "session.issued"
	case KindSessionRevoked:
		return "session.revoked"
	default:
		return "unknown"
	}
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Tracestate     string
	Traceparent    string
	Baggage        string
}

// AuthEvent is the JSON body of every auth audit message.
type AuthEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

//go:generate mockgen -source=domain.go -destination=../../mocks/mock_outbox.go -package=mocks

// Sink is the write side used inside business transactions.
type Sink interface {
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error
}

type Repository interface {
	Sink

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)

	MarkSuccess(ctx context.Context, keys []string) error
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
