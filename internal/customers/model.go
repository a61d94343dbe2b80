// Package customers keeps customer records and their linked contacts.
package customers

import "time"

type Customer struct {
	Name         string    `json:"name" db:"name"`
	CustomerName string    `json:"customer_name" db:"customer_name"`
	Email        *string   `json:"email,omitempty" db:"email"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	Territory    *string   `json:"territory,omitempty" db:"territory"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Contact is a person linked to a customer with their primary channels.
type Contact struct {
	DocName     string  `json:"docname" db:"name"`
	Contact     string  `json:"contact" db:"contact"`
	Designation *string `json:"designation" db:"designation"`
	Mobile      *string `json:"mobile" db:"mobile"`
	Email       *string `json:"email" db:"email"`
}
