// Package crm 把客户记录存储暴露为 manage_crm 工具。
package crm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"AgentDesk/internal/adapter"
	"AgentDesk/internal/customer"
	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

const notProvided = "not provided"

// Adapter 执行客户管理操作。
type Adapter struct {
	store    customer.Store
	resolver *customer.Resolver
}

// New 创建客户管理适配器。
func New(resolver *customer.Resolver) *Adapter {
	return &Adapter{store: resolver.Store(), resolver: resolver}
}

// Invoke 实现 adapter.Adapter。
func (a *Adapter) Invoke(ctx context.Context, call tool.Call) (string, error) {
	args, ok := call.CRM()
	if !ok {
		return "", adapter.WrongArguments(call)
	}

	switch call.Action {
	case tool.ActionSearchCustomers:
		return a.search(ctx, args)
	case tool.ActionGetCustomerByID:
		return a.get(ctx, args)
	case tool.ActionCreateCustomer:
		return a.create(ctx, args)
	case tool.ActionUpdateCustomer:
		return a.update(ctx, args)
	case tool.ActionDeleteCustomer:
		return a.delete(ctx, args)
	case tool.ActionListRecentCustomers:
		return a.recent(ctx)
	default:
		return "", adapter.UnsupportedAction(call)
	}
}

func (a *Adapter) search(ctx context.Context, args *tool.CRMArguments) (string, error) {
	result, err := a.resolver.Search(ctx, criteria(args), args.Limit)
	if err != nil {
		return "", err
	}
	if len(result.Records) == 1 {
		return "Found 1 customer:\n\n" + detail(result.Records[0]), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d customers:\n\n", result.Total)
	b.WriteString(list(result.Records))
	if result.Total > len(result.Records) {
		fmt.Fprintf(&b, "\n(showing the first %d)", len(result.Records))
	}
	return b.String(), nil
}

func (a *Adapter) get(ctx context.Context, args *tool.CRMArguments) (string, error) {
	record, err := a.store.Get(ctx, args.CustomerID)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeNotFound {
			return fmt.Sprintf("No customer found with id %s.", args.CustomerID), nil
		}
		return "", err
	}
	return "Customer details:\n\n" + detail(record), nil
}

func (a *Adapter) create(ctx context.Context, args *tool.CRMArguments) (string, error) {
	record, err := a.store.Create(ctx, customer.Record{
		Name:         args.Name,
		Email:        args.Email,
		Company:      args.Company,
		Phone:        args.Phone,
		Status:       customer.Status(args.Status),
		Notes:        args.Notes,
		CustomField1: args.CustomField1,
		CustomField2: args.CustomField2,
		CustomField3: args.CustomField3,
		CustomField4: args.CustomField4,
		CustomField5: args.CustomField5,
	})
	if err != nil {
		return "", err
	}
	audit("create", record)
	return fmt.Sprintf("New customer created:\nName: %s\nID: %s", record.Name, record.ID), nil
}

func (a *Adapter) update(ctx context.Context, args *tool.CRMArguments) (string, error) {
	patch, err := customer.ParsePatch(args.DataToUpdate)
	if err != nil {
		return "", err
	}
	target, err := a.resolver.ResolveOne(ctx, customer.Query{
		ID:     args.CustomerID,
		Filter: criteria(args),
	})
	if err != nil {
		return "", err
	}
	updated, err := a.store.Update(ctx, target.ID, patch)
	if err != nil {
		return "", err
	}
	audit("update", updated, slog.Any("fields", patch.Fields()))
	return fmt.Sprintf("Customer %s (id: %s) updated: %s.", updated.Name, updated.ID, strings.Join(patch.Fields(), ", ")), nil
}

func (a *Adapter) delete(ctx context.Context, args *tool.CRMArguments) (string, error) {
	target, err := a.resolver.ResolveOne(ctx, customer.Query{
		ID:     args.CustomerID,
		Filter: criteria(args),
	})
	if err != nil {
		return "", err
	}
	if err := a.store.Delete(ctx, target.ID); err != nil {
		return "", err
	}
	audit("delete", target)
	return fmt.Sprintf("Customer %s (id: %s) deleted.", target.Name, target.ID), nil
}

func (a *Adapter) recent(ctx context.Context) (string, error) {
	records, err := a.store.Recent(ctx, customer.RecentLimit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "There are no customers in the system yet.", nil
	}
	return fmt.Sprintf("The %d most recently updated customers:\n\n%s", len(records), list(records)), nil
}

// criteria 由调用中出现的 name、email、company、phone、status 组成精确过滤条件，
// 搜索、更新和删除共用同一套条件。
func criteria(args *tool.CRMArguments) customer.Filter {
	return customer.Filter{
		Name:    args.Name,
		Email:   args.Email,
		Company: args.Company,
		Phone:   args.Phone,
		Status:  customer.Status(args.Status),
	}
}

func detail(r customer.Record) string {
	return fmt.Sprintf("Name: %s\nEmail: %s\nPhone: %s\nCompany: %s\nStatus: %s\nID: %s",
		r.Name, r.Email, orDefault(r.Phone), orDefault(r.Company), orDefault(string(r.Status)), r.ID)
}

func list(records []customer.Record) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("- Name: %s, Company: %s, Phone: %s, ID: %s",
			r.Name, orDefault(r.Company), orDefault(r.Phone), r.ID))
	}
	return strings.Join(lines, "\n")
}

func orDefault(value string) string {
	if strings.TrimSpace(value) == "" {
		return notProvided
	}
	return value
}

func audit(op string, r customer.Record, attrs ...any) {
	args := append([]any{
		slog.String("operation", op),
		slog.String("customer_id", r.ID),
	}, attrs...)
	logger.Audit().Info("customer mutated", args...)
}

var _ adapter.Adapter = (*Adapter)(nil)
