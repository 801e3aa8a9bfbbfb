package tool

// Arguments 是经过校验的结构化工具参数。
type Arguments interface {
	ToolName() Name
}

// Call 是通过校验、可以交给适配器执行的工具调用。
type Call struct {
	Tool      Name
	Action    Action
	Arguments Arguments
	// Raw 保存归一化后的原始参数，供需要透传 JSON 的适配器使用。
	Raw map[string]any
}

// CRMArguments 对应 manage_crm。
type CRMArguments struct {
	Action       Action         `json:"action"`
	CustomerID   string         `json:"customer_id,omitempty"`
	Name         string         `json:"name,omitempty"`
	Email        string         `json:"email,omitempty"`
	Company      string         `json:"company,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Status       string         `json:"status,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	CustomField1 string         `json:"custom_field_1,omitempty"`
	CustomField2 string         `json:"custom_field_2,omitempty"`
	CustomField3 string         `json:"custom_field_3,omitempty"`
	CustomField4 string         `json:"custom_field_4,omitempty"`
	CustomField5 string         `json:"custom_field_5,omitempty"`
	DataToUpdate map[string]any `json:"data_to_update,omitempty"`
	Limit        int            `json:"limit,omitempty"`
}

func (CRMArguments) ToolName() Name { return NameCRM }

// MailArguments 对应 manage_gmail。
type MailArguments struct {
	Action    Action `json:"action"`
	To        string `json:"to,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`
	Query     string `json:"query,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

func (MailArguments) ToolName() Name { return NameGmail }

// CalendarArguments 对应 manage_calendar。
type CalendarArguments struct {
	Action         Action   `json:"action"`
	Summary        string   `json:"summary,omitempty"`
	Description    string   `json:"description,omitempty"`
	StartTime      string   `json:"start_time,omitempty"`
	EndTime        string   `json:"end_time,omitempty"`
	AttendeeEmails []string `json:"attendee_emails,omitempty"`
}

func (CalendarArguments) ToolName() Name { return NameCalendar }

// DriveArguments 对应 manage_drive。
type DriveArguments struct {
	Action   Action `json:"action"`
	Query    string `json:"query,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Content  string `json:"content,omitempty"`
}

func (DriveArguments) ToolName() Name { return NameDrive }

// SheetsArguments 对应 manage_sheets。
type SheetsArguments struct {
	Action        Action   `json:"action"`
	SpreadsheetID string   `json:"spreadsheet_id"`
	Range         string   `json:"range"`
	Values        []string `json:"values,omitempty"`
}

func (SheetsArguments) ToolName() Name { return NameSheets }

// DocsArguments 对应 manage_docs。
type DocsArguments struct {
	Action     Action `json:"action"`
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
	InsertText string `json:"insert_text,omitempty"`
}

func (DocsArguments) ToolName() Name { return NameDocs }

func newArguments(name Name) Arguments {
	switch name {
	case NameCRM:
		return &CRMArguments{}
	case NameGmail:
		return &MailArguments{}
	case NameCalendar:
		return &CalendarArguments{}
	case NameDrive:
		return &DriveArguments{}
	case NameSheets:
		return &SheetsArguments{}
	case NameDocs:
		return &DocsArguments{}
	default:
		return nil
	}
}

// CRM 返回客户管理参数。
func (c Call) CRM() (*CRMArguments, bool) {
	args, ok := c.Arguments.(*CRMArguments)
	return args, ok
}

// Mail 返回邮件参数。
func (c Call) Mail() (*MailArguments, bool) {
	args, ok := c.Arguments.(*MailArguments)
	return args, ok
}

// Calendar 返回日历参数。
func (c Call) Calendar() (*CalendarArguments, bool) {
	args, ok := c.Arguments.(*CalendarArguments)
	return args, ok
}

// Drive 返回文件参数。
func (c Call) Drive() (*DriveArguments, bool) {
	args, ok := c.Arguments.(*DriveArguments)
	return args, ok
}

// Sheets 返回表格参数。
func (c Call) Sheets() (*SheetsArguments, bool) {
	args, ok := c.Arguments.(*SheetsArguments)
	return args, ok
}

// Docs 返回文档参数。
func (c Call) Docs() (*DocsArguments, bool) {
	args, ok := c.Arguments.(*DocsArguments)
	return args, ok
}
