package service

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"secret-santa-bot/internal/domain"

	"go.uber.org/zap"
)

// ParticipantRegistry owns participant records and their wishes.
type ParticipantRegistry struct {
	storage domain.Storage
	log     *zap.Logger
}

func NewParticipantRegistry(storage domain.Storage, log *zap.Logger) *ParticipantRegistry {
	return &ParticipantRegistry{storage: storage, log: log}
}

// Upsert registers the participant or refreshes their name. The wish is left as is.
func (r *ParticipantRegistry) Upsert(ctx context.Context, userID int64, name string) error {
	if err := r.storage.SaveParticipant(ctx, userID, name); err != nil {
		return err
	}
	r.log.Info("participant saved", zap.Int64("user_id", userID), zap.String("name", name))
	return nil
}

// Ensure registers the participant only if they are not known yet.
func (r *ParticipantRegistry) Ensure(ctx context.Context, userID int64, name string) error {
	existing, err := r.storage.GetParticipant(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return r.Upsert(ctx, userID, name)
}

// ValidateWish checks the length bounds, counted in characters.
func ValidateWish(text string) error {
	n := utf8.RuneCountInString(text)
	switch {
	case n < domain.MinWishLength:
		return domain.ErrWishTooShort
	case n > domain.MaxWishLength:
		return domain.ErrWishTooLong
	}
	return nil
}

// SetWish stores text verbatim, replacing any previous wish.
func (r *ParticipantRegistry) SetWish(ctx context.Context, userID int64, text string) error {
	if err := ValidateWish(text); err != nil {
		return err
	}
	if err := r.storage.SaveWish(ctx, userID, text); err != nil {
		return err
	}
	r.log.Info("wish saved", zap.Int64("user_id", userID), zap.Int("length", utf8.RuneCountInString(text)))
	return nil
}

// GetWish returns the stored wish, or "" for no wish or an unknown id.
func (r *ParticipantRegistry) GetWish(ctx context.Context, userID int64) (string, error) {
	p, err := r.storage.GetParticipant(ctx, userID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", nil
	}
	return p.Wish, nil
}

func (r *ParticipantRegistry) Get(ctx context.Context, userID int64) (*domain.Participant, error) {
	p, err := r.storage.GetParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}

// Participants returns every record ordered by name, then id.
func (r *ParticipantRegistry) Participants(ctx context.Context) ([]*domain.Participant, error) {
	all, err := r.storage.GetAllParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].UserID < all[j].UserID
	})
	return all, nil
}

// List is the admin roster view.
func (r *ParticipantRegistry) List(ctx context.Context) ([]domain.ParticipantSummary, error) {
	all, err := r.Participants(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]domain.ParticipantSummary, len(all))
	for i, p := range all {
		list[i] = domain.ParticipantSummary{
			UserID:  p.UserID,
			Name:    p.Name,
			HasWish: p.Wish != "",
		}
	}
	return list, nil
}

// Remove deletes the record. It does not touch the draw; callers coordinate that.
func (r *ParticipantRegistry) Remove(ctx context.Context, userID int64) error {
	existing, err := r.storage.GetParticipant(ctx, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrParticipantNotFound
	}
	if err := r.storage.DeleteParticipant(ctx, userID); err != nil {
		return err
	}
	r.log.Info("participant removed", zap.Int64("user_id", userID))
	return nil
}
