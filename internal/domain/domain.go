package domain

import (
	"context"
	"errors"
)

const (
	MinParticipants = 3
	MinWishLength   = 2
	MaxWishLength   = 500
)

var (
	ErrInsufficientParticipants = errors.New("at least 3 participants required")
	ErrAlreadyDrawn             = errors.New("draw already exists")
	ErrNoDraw                   = errors.New("no draw yet")
	ErrNotAdmin                 = errors.New("administrator rights required")
	ErrWishTooShort             = errors.New("wish is too short")
	ErrWishTooLong              = errors.New("wish is too long")
	ErrParticipantNotFound      = errors.New("participant not found")
	ErrNoPendingConfirmation    = errors.New("no pending confirmation")
)

type Participant struct {
	UserID int64
	Name   string
	Wish   string
}

// ParticipantSummary is the roster view: the wish text itself is not exposed.
type ParticipantSummary struct {
	UserID  int64
	Name    string
	HasWish bool
}

type Assignment struct {
	GiverID    int64
	ReceiverID int64
}

// Storage is the durable backing for participants and the current draw.
// GetParticipant returns nil, nil for an unknown id.
type Storage interface {
	SaveParticipant(ctx context.Context, userID int64, name string) error
	GetParticipant(ctx context.Context, userID int64) (*Participant, error)
	GetAllParticipants(ctx context.Context) ([]*Participant, error)
	DeleteParticipant(ctx context.Context, userID int64) error
	SaveWish(ctx context.Context, userID int64, wish string) error
	GetAllAssignments(ctx context.Context) (map[int64]int64, error)
	ReplaceAssignments(ctx context.Context, assignments []Assignment) error
	DeleteAllAssignments(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
