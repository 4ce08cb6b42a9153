package service

import (
	"context"
	"errors"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg"
	"Lee_Timeline/internal/repository/mysql"
	"Lee_Timeline/internal/repository/redis"
)

var (
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrSessionReplaced = errors.New("account has been logged in elsewhere")
)

// SessionService 签发和校验 access token，每个登录名只保留最新的一个
type SessionService struct {
	users    *mysql.UserRepository
	sessions *redis.SessionRepository
	jwt      *pkg.JWTManager
}

func NewSessionService(users *mysql.UserRepository, sessions *redis.SessionRepository, jwt *pkg.JWTManager) *SessionService {
	return &SessionService{users: users, sessions: sessions, jwt: jwt}
}

// IssueToken 签发新 token 并写入 redis，旧 token 随之失效
func (s *SessionService) IssueToken(ctx context.Context, login string) (string, error) {
	u, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrTargetNotFound
	}
	token, err := s.jwt.Generate(u.Login)
	if err != nil {
		return "", err
	}
	if err := s.sessions.Save(ctx, u.Login, token); err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate 校验签名和 redis 里的当前 token，通过后续期并返回用户
func (s *SessionService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.jwt.Parse(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	current, err := s.sessions.Get(ctx, claims.Login)
	if errors.Is(err, redis.ErrSessionNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if current != token {
		return nil, ErrSessionReplaced
	}
	u, err := s.users.FindByLogin(ctx, claims.Login)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidToken
	}
	if err := s.sessions.Extend(ctx, u.Login); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SessionService) Logout(ctx context.Context, login string) error {
	return s.sessions.Delete(ctx, login)
}

// Deactivate 停用账号并作废会话，之后的写操作返回 ErrUserDeactivated
func (s *SessionService) Deactivate(ctx context.Context, login string) error {
	if err := s.users.SetActivated(ctx, login, false); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ErrTargetNotFound
		}
		return err
	}
	return s.sessions.Delete(ctx, login)
}
