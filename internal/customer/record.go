// Package customer 管理客户记录以及按人类语言线索定位记录的解析逻辑。
package customer

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	xerrors "AgentDesk/internal/errors"
)

// Status 表示客户所处阶段。
type Status string

const (
	StatusLead     Status = "lead"
	StatusProspect Status = "prospect"
	StatusCustomer Status = "customer"
	StatusChurned  Status = "churned"
)

// Record 是一条客户记录。ID 是唯一稳定的引用，姓名和邮箱只是查找线索。
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name" validate:"required"`
	Email        string    `json:"email" validate:"required,email"`
	Company      string    `json:"company" validate:"required"`
	Phone        string    `json:"phone,omitempty"`
	Status       Status    `json:"status" validate:"oneof=lead prospect customer churned"`
	Notes        string    `json:"notes,omitempty"`
	CustomField1 string    `json:"custom_field_1,omitempty"`
	CustomField2 string    `json:"custom_field_2,omitempty"`
	CustomField3 string    `json:"custom_field_3,omitempty"`
	CustomField4 string    `json:"custom_field_4,omitempty"`
	CustomField5 string    `json:"custom_field_5,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Filter 是精确匹配条件，空字段不参与过滤。
type Filter struct {
	Name    string
	Email   string
	Company string
	Phone   string
	Status  Status
	// NameContains 做不区分大小写的姓名子串匹配，仅用于姓名回退查询。
	NameContains string
}

// Empty 判断是否没有任何条件。
func (f Filter) Empty() bool {
	return f.Name == "" && f.Email == "" && f.Company == "" && f.Phone == "" && f.Status == "" && f.NameContains == ""
}

// OnlyName 判断是否只提供了姓名。
func (f Filter) OnlyName() bool {
	return f.Name != "" && f.Email == "" && f.Company == "" && f.Phone == "" && f.Status == "" && f.NameContains == ""
}

// Criteria 返回非空条件的数量，用于日志。
func (f Filter) Criteria() int {
	n := 0
	for _, v := range []string{f.Name, f.Email, f.Company, f.Phone, string(f.Status), f.NameContains} {
		if v != "" {
			n++
		}
	}
	return n
}

// Matches 判断记录是否满足过滤条件。邮箱比较忽略大小写。
func (f Filter) Matches(r Record) bool {
	if f.Name != "" && r.Name != f.Name {
		return false
	}
	if f.Email != "" && !strings.EqualFold(r.Email, f.Email) {
		return false
	}
	if f.Company != "" && r.Company != f.Company {
		return false
	}
	if f.Phone != "" && r.Phone != f.Phone {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	return true
}

var validate = validator.New()

// Validate 校验记录字段。
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid customer record"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		case "email":
			parts = append(parts, fmt.Sprintf("%q is not a valid email", fe.Value()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", strings.ToLower(fe.Field()), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field())))
		}
	}
	return strings.Join(parts, "; ")
}
