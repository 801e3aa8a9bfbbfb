package tool

// CustomerStatuses 是客户记录允许的状态值。
var CustomerStatuses = []string{"lead", "prospect", "customer", "churned"}

// Builtin 返回内置的六个工具描述。
func Builtin() []Descriptor {
	return []Descriptor{
		crmDescriptor(),
		gmailDescriptor(),
		calendarDescriptor(),
		driveDescriptor(),
		sheetsDescriptor(),
		docsDescriptor(),
	}
}

func withAction(description string, rules []ActionRule, args ...Argument) []Argument {
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, string(rule.Action))
	}
	action := Argument{
		Name:        "action",
		Type:        TypeString,
		Description: description,
		Required:    true,
		Enum:        names,
	}
	return append([]Argument{action}, args...)
}

func str(name, description string) Argument {
	return Argument{Name: name, Type: TypeString, Description: description}
}

// customerReference 是更新与删除定位客户时可用的线索，至少需要其一。
var customerReference = []string{"customer_id", "name", "email", "company", "phone", "status"}

func crmDescriptor() Descriptor {
	rules := []ActionRule{
		{Action: ActionSearchCustomers, Description: "search with names or other text", AnyOf: []string{"name", "email", "company", "phone", "status"}},
		{Action: ActionGetCustomerByID, Description: "only when a raw identifier is known", Required: []string{"customer_id"}},
		{Action: ActionCreateCustomer, Required: []string{"name", "email", "company"}},
		{Action: ActionUpdateCustomer, Required: []string{"data_to_update"}, AnyOf: customerReference},
		{Action: ActionDeleteCustomer, AnyOf: customerReference},
		{Action: ActionListRecentCustomers},
	}
	args := withAction(
		"Action to perform. CRITICAL RULE: search_customers is for searching with text or names; get_customer_by_id is ONLY for a clear raw identifier.",
		rules,
		str("customer_id", "Unique customer identifier. Optional: when unknown use name or email to locate the customer."),
		str("name", "Customer name, full or partial. Any part of a name finds matches when searching; a full name is required for creation."),
		str("email", "Customer email address. Exact match."),
		str("company", "Company name."),
		str("phone", "Customer phone number in any format (050-1234567, +972-50-1234567)."),
		Argument{
			Name:        "status",
			Type:        TypeString,
			Description: "lead = potential customer, prospect = in sales process, customer = existing client, churned = left.",
			Enum:        CustomerStatuses,
		},
		Argument{
			Name:        "data_to_update",
			Type:        TypeObject,
			Description: "Fields to update: name, email, company, phone, status, notes, custom_field_1..custom_field_5. Example: {\"phone\": \"050-9999999\", \"status\": \"customer\"}.",
		},
		str("notes", "Notes about the customer."),
		str("custom_field_1", "Custom field 1"),
		str("custom_field_2", "Custom field 2"),
		str("custom_field_3", "Custom field 3"),
		str("custom_field_4", "Custom field 4"),
		str("custom_field_5", "Custom field 5"),
		Argument{
			Name:        "limit",
			Type:        TypeInteger,
			Description: "Maximum number of search results (1-20). Default: 5.",
			Default:     5,
		},
	)
	return Descriptor{
		Name:        NameCRM,
		Description: "Customer relationship management: your single tool for every customer-related operation (search, lookup, create, update, delete, recent list).",
		Integration: IntegrationCRM,
		Arguments:   args,
		Actions:     rules,
	}
}

func gmailDescriptor() Descriptor {
	rules := []ActionRule{
		{Action: ActionSendEmail, Required: []string{"to", "subject", "body"}},
		{Action: ActionSearchEmails, Required: []string{"query"}},
		{Action: ActionReadEmail, Required: []string{"message_id"}},
	}
	return Descriptor{
		Name:        NameGmail,
		Description: "Gmail account management: send an email, search emails, read the content of a specific email.",
		Integration: IntegrationGmail,
		Arguments: withAction("Action to perform: send_email, search_emails, read_email.", rules,
			str("to", "Recipient address (send_email)."),
			str("subject", "Email subject (send_email)."),
			str("body", "Email body (send_email)."),
			str("query", "Search query, e.g. 'from:example@email.com subject:invoice' (search_emails)."),
			str("message_id", "Unique id of the email to read (read_email)."),
		),
		Actions: rules,
	}
}

func calendarDescriptor() Descriptor {
	rules := []ActionRule{
		{Action: ActionCreateEvent, Required: []string{"summary", "start_time", "end_time"}},
		{Action: ActionListEvents},
		{Action: ActionCheckAvailability, Required: []string{"start_time", "end_time"}},
	}
	return Descriptor{
		Name:        NameCalendar,
		Description: "Google Calendar: create meetings, check availability and list upcoming events.",
		Integration: IntegrationCalendar,
		Arguments: withAction("Action type: create_event, list_events, check_availability.", rules,
			str("summary", "Event title (required for create_event)."),
			str("description", "Event description (optional)."),
			str("start_time", "Start time in ISO 8601, e.g. 2024-01-15T14:00:00."),
			str("end_time", "End time in ISO 8601, e.g. 2024-01-15T15:00:00."),
			Argument{Name: "attendee_emails", Type: TypeArray, Items: TypeString, Description: "Attendee email addresses (optional)."},
		),
		Actions: rules,
	}
}

func driveDescriptor() Descriptor {
	rules := []ActionRule{
		{Action: ActionSearchFiles, Required: []string{"query"}},
		{Action: ActionReadFile, Required: []string{"file_id"}},
		{Action: ActionCreateFile, Required: []string{"file_name", "content"}},
	}
	return Descriptor{
		Name:        NameDrive,
		Description: "Google Drive files: search, read and create files.",
		Integration: IntegrationDrive,
		Arguments: withAction("Action to perform: search_files, read_file, create_file.", rules,
			str("query", "Text to search in file names (search_files)."),
			str("file_id", "Id of the file to read (read_file)."),
			str("file_name", "Name of the file to create (create_file)."),
			str("content", "Content written to the new file (create_file)."),
		),
		Actions: rules,
	}
}

func sheetsDescriptor() Descriptor {
	rules := []ActionRule{
		{Action: ActionReadRange},
		{Action: ActionAppendRow, Required: []string{"values"}},
	}
	args := withAction("Action to perform: read_range, append_row.", rules,
		Argument{Name: "spreadsheet_id", Type: TypeString, Required: true, Description: "Spreadsheet id (required)."},
		Argument{Name: "range", Type: TypeString, Required: true, Description: "Range to read or sheet name to append to, e.g. 'Sheet1!A1:B5' or 'Sheet1'."},
		Argument{Name: "values", Type: TypeArray, Items: TypeString, Description: "Values appended as a new row (append_row)."},
	)
	return Descriptor{
		Name:        NameSheets,
		Description: "Google Sheets: read data and append new rows.",
		Integration: IntegrationSheets,
		Arguments:   args,
		Actions:     rules,
	}
}

func docsDescriptor() Descriptor {
	rules := []ActionRule{
		{Action: ActionCreateDocument, Required: []string{"title"}},
		{Action: ActionReadDocument, Required: []string{"document_id"}},
		{Action: ActionAppendText, Required: []string{"document_id", "insert_text"}},
	}
	return Descriptor{
		Name:        NameDocs,
		Description: "Google Docs: create new documents, read existing documents and append text.",
		Integration: IntegrationDocs,
		Arguments: withAction("Action to perform: create_document, read_document, append_text.", rules,
			str("document_id", "Document id (read_document and append_text)."),
			str("title", "Title of the new document (create_document)."),
			str("content", "Initial content of the new document (optional)."),
			str("insert_text", "Text appended to the document (append_text)."),
		),
		Actions: rules,
	}
}
