package customers

type SaveCustomerRequest struct {
	CustomerName string  `json:"customer_name" validate:"required,max=200"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Territory    *string `json:"territory,omitempty" validate:"omitempty,max=100"`
}
