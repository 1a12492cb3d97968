package domain

// Role определяет права демо-аккаунта.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Account: учётная запись витрины.
type Account struct {
	Email        string
	Name         string
	Role         Role
	PasswordHash []byte
}

// IsAdmin сообщает, есть ли у аккаунта доступ к back-office.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}
