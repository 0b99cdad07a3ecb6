// File: internal/usecase/user_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/infra/logging"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// PiLoginInput is the SDK token exchange request.
type PiLoginInput struct {
	AccessToken string
	UID         string
	Username    string
	Sandbox     bool
}

type UserUseCase interface {
	// PiLogin verifies an SDK token, registers the user on first sight and
	// returns a backend session.
	PiLogin(ctx context.Context, in PiLoginInput) (*model.UserSession, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

type userUC struct {
	users        repository.UserRepository
	pi           adapter.PiPlatform
	tokens       adapter.TokenIssuer
	allowSandbox bool
	log          *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, pi adapter.PiPlatform, tokens adapter.TokenIssuer, allowSandbox bool, logger *zerolog.Logger) *userUC {
	l := logger.With().Str("component", "UserUseCase").Logger()
	return &userUC{users: users, pi: pi, tokens: tokens, allowSandbox: allowSandbox, log: &l}
}

func (u *userUC) PiLogin(ctx context.Context, in PiLoginInput) (*model.UserSession, error) {
	defer logging.TraceDuration(u.log, "UserUseCase.PiLogin")()

	if in.AccessToken == "" {
		return nil, domain.ErrInvalidArgument
	}

	var auth *model.SDKAuth
	if in.Sandbox {
		if !u.allowSandbox {
			return nil, fmt.Errorf("%w: sandbox login is disabled", domain.ErrForbidden)
		}
		auth = &model.SDKAuth{AccessToken: in.AccessToken, UID: in.UID, Username: in.Username}
	} else {
		me, err := u.pi.Me(ctx, in.AccessToken)
		if err != nil {
			return nil, err
		}
		if in.UID != "" && in.UID != me.UID {
			return nil, fmt.Errorf("%w: uid does not match token", domain.ErrUnauthenticated)
		}
		auth = me
	}

	user, err := model.NewUser(auth.UID, auth.Username)
	if err != nil {
		return nil, err
	}
	if err := u.users.Upsert(ctx, repository.NoTX, user); err != nil {
		return nil, err
	}
	tok, err := u.tokens.Mint(user)
	if err != nil {
		return nil, err
	}

	u.log.Info().Str("user_id", strconv.FormatInt(user.ID, 10)).Bool("sandbox", in.Sandbox).Msg("pi login")
	return &model.UserSession{Username: user.Username, AccessToken: tok, PiID: user.PiID, Role: user.Role}, nil
}

func (u *userUC) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		u.log.Error().Err(err).Int64("user_id", id).Msg("find user failed")
	}
	return user, err
}
