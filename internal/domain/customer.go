package domain

import "time"

// Customer — клиент, от имени которого оформляется заказ.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}
