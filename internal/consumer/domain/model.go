package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
)

var (
	ErrConsumerNotFound   = errors.New("consumer_not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidAccountNo   = errors.New("invalid_account_no")
	ErrInvalidAccountType = errors.New("invalid_account_type")
	ErrDuplicateAccountNo = errors.New("duplicate_account_no")
)

type AccountType string

const (
	AccountTypeResidential AccountType = "residential"
	AccountTypeCommercial  AccountType = "commercial"
	AccountTypeIndustrial  AccountType = "industrial"
	AccountTypeGovernment  AccountType = "government"
)

// NormalizeAccountType turns labels such as "Semi Commercial" into "semi-commercial".
func NormalizeAccountType(raw string) AccountType {
	return AccountType(slug.Make(strings.TrimSpace(raw)))
}

type Consumer struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	AccountNo      string        `json:"account_no" gorm:"type:text;not null;uniqueIndex"`
	FirstName      string        `json:"first_name" gorm:"type:text;not null"`
	LastName       string        `json:"last_name" gorm:"type:text;not null"`
	Address        string        `json:"address" gorm:"type:text"`
	AccountType    AccountType   `json:"account_type" gorm:"type:text;not null;index"`
	Email          string        `json:"email" gorm:"type:text"`
	Phone          string        `json:"phone" gorm:"type:text"`
	UserID         *snowflake.ID `json:"user_id,omitempty" gorm:"index"`
	IsDisconnected bool          `json:"is_disconnected" gorm:"not null;default:false"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"not null"`
}

func (Consumer) TableName() string { return "consumers" }

func (c Consumer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c Consumer) HasLinkedUser() bool {
	return c.UserID != nil && *c.UserID != 0
}
