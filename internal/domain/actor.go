package domain

// Role — роль пользователя, пришедшая в токене.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Actor — аутентифицированный пользователь, от имени которого выполняется операция.
type Actor struct {
	UserID int64
	Email  string
	Name   string
	Role   Role
}

// IsAdmin сообщает, является ли пользователь привилегированным.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess проверяет доступ к заказу: администратор видит всё, покупатель — только свои.
func (a Actor) CanAccess(order Order) bool {
	return a.IsAdmin() || order.OwnedBy(a.UserID)
}
