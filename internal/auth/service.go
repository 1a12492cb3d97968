package auth

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Session: результат успешного входа.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   domain.Account
}

// Service объединяет справочник аккаунтов и выпуск токенов.
type Service struct {
	directory *Directory
	tokens    *Tokens
	logger    *log.Entry
}

// NewService создаёт сервис аутентификации.
func NewService(directory *Directory, tokens *Tokens, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "auth")
	}
	return &Service{directory: directory, tokens: tokens, logger: logger}
}

// Login проверяет учётные данные и выпускает токен.
func (s *Service) Login(email, password string) (Session, error) {
	account, err := s.directory.Authenticate(email, password)
	if err != nil {
		s.logger.WithField("email", email).Warn("login rejected")
		return Session{}, err
	}

	token, expiresAt, err := s.tokens.Issue(account)
	if err != nil {
		return Session{}, err
	}

	s.logger.WithFields(log.Fields{"email": account.Email, "role": account.Role}).Info("login succeeded")
	return Session{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// Verify разбирает токен и проверяет, что аккаунт всё ещё существует.
func (s *Service) Verify(token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if _, ok := s.directory.Lookup(claims.Email); !ok {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Tokens возвращает генератор токенов для middleware.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}
