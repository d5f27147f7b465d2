package customers

type CreateCustomerRequest struct {
	CompanyID int64   `json:"company_id" validate:"required,gt=0"`
	Name      string  `json:"name" validate:"required,max=200"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	TaxID     *string `json:"tax_id,omitempty" validate:"omitempty,max=40"`
}

type UpdateCustomerRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	TaxID    *string `json:"tax_id,omitempty" validate:"omitempty,max=40"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type ListCustomersRequest struct {
	CompanyID int64
	Search    string
	Limit     int
	Offset    int
}
