// Package auth реализует демонстрационную аутентификацию витрины:
// захардкоженные аккаунты, bcrypt-хэши паролей и JWT-токены сессии.
// Это не production-авторизация.
package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DemoCredential описывает демо-аккаунт с паролем в открытом виде.
type DemoCredential struct {
	Email    string
	Name     string
	Password string
	Role     domain.Role
}

// DemoCredentials: аккаунты, доступные на демо-стенде.
func DemoCredentials() []DemoCredential {
	return []DemoCredential{
		{Email: "admin@shop.local", Name: "Store Admin", Password: "admin123", Role: domain.RoleAdmin},
		{Email: "user@shop.local", Name: "Demo Customer", Password: "user123", Role: domain.RoleCustomer},
	}
}

// Directory хранит аккаунты в памяти; пароли хранятся только в виде bcrypt-хэшей.
type Directory struct {
	accounts map[string]domain.Account
}

// NewDirectory хэширует пароли и строит справочник аккаунтов.
// cost <= 0 означает bcrypt.DefaultCost.
func NewDirectory(creds []DemoCredential, cost int) (*Directory, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	d := &Directory{accounts: make(map[string]domain.Account, len(creds))}
	for _, c := range creds {
		hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", c.Email, err)
		}
		email := normalizeEmail(c.Email)
		d.accounts[email] = domain.Account{
			Email:        email,
			Name:         c.Name,
			Role:         c.Role,
			PasswordHash: hash,
		}
	}
	return d, nil
}

// Authenticate проверяет пару email/пароль.
func (d *Directory) Authenticate(email, password string) (domain.Account, error) {
	account, ok := d.accounts[normalizeEmail(email)]
	if !ok {
		// сравниваем с фиктивным хэшем, чтобы время ответа не выдавало наличие аккаунта
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	return account, nil
}

// Lookup возвращает аккаунт по email.
func (d *Directory) Lookup(email string) (domain.Account, bool) {
	account, ok := d.accounts[normalizeEmail(email)]
	return account, ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("storefront-dummy"), bcrypt.MinCost)
