package tool

import "strings"

// Name 是工具的封闭枚举标识，只有注册表边界可以把原始字符串转换为 Name。
type Name string

const (
	NameCRM      Name = "manage_crm"
	NameGmail    Name = "manage_gmail"
	NameCalendar Name = "manage_calendar"
	NameDrive    Name = "manage_drive"
	NameSheets   Name = "manage_sheets"
	NameDocs     Name = "manage_docs"
)

var knownNames = map[Name]struct{}{
	NameCRM:      {},
	NameGmail:    {},
	NameCalendar: {},
	NameDrive:    {},
	NameSheets:   {},
	NameDocs:     {},
}

// ParseName 将补全服务返回的工具名转换为枚举值。
func ParseName(raw string) (Name, bool) {
	name := Name(strings.TrimSpace(raw))
	_, ok := knownNames[name]
	return name, ok
}

// Integration 是会话级别可开关的集成标签。
type Integration string

const (
	IntegrationCRM      Integration = "crm"
	IntegrationGmail    Integration = "gmail"
	IntegrationCalendar Integration = "calendar"
	IntegrationDrive    Integration = "drive"
	IntegrationSheets   Integration = "sheets"
	IntegrationDocs     Integration = "docs"
	// IntegrationGoogle 是捆绑开关，展开为全部 Google 服务标签。
	IntegrationGoogle Integration = "google"
)

// ParseIntegrations 解析逗号分隔或切片形式的集成标签。
func ParseIntegrations(values ...string) []Integration {
	var out []Integration
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			out = append(out, Integration(part))
		}
	}
	return out
}

// Action 是工具内部的具体操作。
type Action string

const (
	ActionSearchCustomers     Action = "search_customers"
	ActionGetCustomerByID     Action = "get_customer_by_id"
	ActionCreateCustomer      Action = "create_customer"
	ActionUpdateCustomer      Action = "update_customer"
	ActionDeleteCustomer      Action = "delete_customer"
	ActionListRecentCustomers Action = "list_recent_customers"

	ActionSendEmail    Action = "send_email"
	ActionSearchEmails Action = "search_emails"
	ActionReadEmail    Action = "read_email"

	ActionCreateEvent       Action = "create_event"
	ActionListEvents        Action = "list_events"
	ActionCheckAvailability Action = "check_availability"

	ActionSearchFiles Action = "search_files"
	ActionReadFile    Action = "read_file"
	ActionCreateFile  Action = "create_file"

	ActionReadRange Action = "read_range"
	ActionAppendRow Action = "append_row"

	ActionCreateDocument Action = "create_document"
	ActionReadDocument   Action = "read_document"
	ActionAppendText     Action = "append_text"
)
