package controllers

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DeductRequest is the body of POST /credits/deduct.
type DeductRequest struct {
	Amount      int            `json:"amount" validate:"gt=0"`
	APIEndpoint string         `json:"api_endpoint" validate:"required,max=255"`
	Description string         `json:"description" validate:"max=500"`
	Metadata    map[string]any `json:"metadata"`
}

func (r *DeductRequest) Validate() error {
	return validate.Struct(r)
}

// TransferRequest is the body of POST /credits/transfer.
type TransferRequest struct {
	ToUserID uint   `json:"to_user_id" validate:"required"`
	Amount   int    `json:"amount" validate:"gt=0"`
	Note     string `json:"note" validate:"max=255"`
}

func (r *TransferRequest) Validate() error {
	return validate.Struct(r)
}

// GrantRequest is the body of POST /admin/credits/grant. Either PackageID or
// a positive Amount is required.
type GrantRequest struct {
	UserID    uint   `json:"user_id" validate:"required"`
	PackageID *uint  `json:"package_id" validate:"omitempty,gt=0"`
	Amount    int    `json:"amount" validate:"gte=0,required_without=PackageID"`
	Reason    string `json:"reason" validate:"max=255"`
}

func (r *GrantRequest) Validate() error {
	return validate.Struct(r)
}
