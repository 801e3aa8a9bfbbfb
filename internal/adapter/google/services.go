package google

import (
	"context"
	"fmt"
	"strings"

	"AgentDesk/internal/adapter"
	"AgentDesk/internal/tool"
)

// Gmail 实现 manage_gmail。
type Gmail struct{ client *Client }

// Calendar 实现 manage_calendar。
type Calendar struct{ client *Client }

// Drive 实现 manage_drive。
type Drive struct{ client *Client }

// Sheets 实现 manage_sheets。
type Sheets struct{ client *Client }

// Docs 实现 manage_docs。
type Docs struct{ client *Client }

// Register 把五个服务适配器注册到集合中。
func Register(set *adapter.Set, client *Client) {
	set.Register(tool.NameGmail, &Gmail{client: client})
	set.Register(tool.NameCalendar, &Calendar{client: client})
	set.Register(tool.NameDrive, &Drive{client: client})
	set.Register(tool.NameSheets, &Sheets{client: client})
	set.Register(tool.NameDocs, &Docs{client: client})
}

func (g *Gmail) Invoke(ctx context.Context, call tool.Call) (string, error) {
	args, ok := call.Mail()
	if !ok {
		return "", adapter.WrongArguments(call)
	}
	env, err := g.client.call(ctx, "gmail", call)
	if err != nil {
		return "", err
	}

	switch call.Action {
	case tool.ActionSendEmail:
		return fmt.Sprintf("Email sent to %s.", args.To), nil
	case tool.ActionSearchEmails:
		if len(env.Emails) == 0 {
			return fmt.Sprintf("No emails found for %q.", args.Query), nil
		}
		lines := make([]string, 0, len(env.Emails))
		for _, m := range env.Emails {
			lines = append(lines, fmt.Sprintf("- %s (from: %s, id: %s)", m.Subject, m.From, m.ID))
		}
		return fmt.Sprintf("Found %d emails:\n\n%s", len(env.Emails), strings.Join(lines, "\n")), nil
	case tool.ActionReadEmail:
		if env.Email == nil {
			return fmt.Sprintf("Email %s has no content.", args.MessageID), nil
		}
		m := env.Email
		return fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n%s", m.From, m.To, m.Subject, m.Body), nil
	default:
		return "", adapter.UnsupportedAction(call)
	}
}

func (c *Calendar) Invoke(ctx context.Context, call tool.Call) (string, error) {
	args, ok := call.Calendar()
	if !ok {
		return "", adapter.WrongArguments(call)
	}
	env, err := c.client.call(ctx, "calendar", call)
	if err != nil {
		return "", err
	}

	switch call.Action {
	case tool.ActionCreateEvent:
		text := fmt.Sprintf("Event created: %s\nStart: %s\nEnd: %s", args.Summary, args.StartTime, args.EndTime)
		if env.Event != nil && env.Event.HTMLLink != "" {
			text += "\nLink: " + env.Event.HTMLLink
		}
		return text, nil
	case tool.ActionListEvents:
		if len(env.Events) == 0 {
			return "No upcoming events.", nil
		}
		lines := make([]string, 0, len(env.Events))
		for _, e := range env.Events {
			lines = append(lines, fmt.Sprintf("- %s (%s - %s)", e.Summary, e.Start, e.End))
		}
		return fmt.Sprintf("Upcoming events:\n\n%s", strings.Join(lines, "\n")), nil
	case tool.ActionCheckAvailability:
		if env.Available != nil && *env.Available {
			return fmt.Sprintf("You are free between %s and %s.", args.StartTime, args.EndTime), nil
		}
		return fmt.Sprintf("You are busy between %s and %s.", args.StartTime, args.EndTime), nil
	default:
		return "", adapter.UnsupportedAction(call)
	}
}

func (d *Drive) Invoke(ctx context.Context, call tool.Call) (string, error) {
	args, ok := call.Drive()
	if !ok {
		return "", adapter.WrongArguments(call)
	}
	env, err := d.client.call(ctx, "drive", call)
	if err != nil {
		return "", err
	}

	switch call.Action {
	case tool.ActionSearchFiles:
		if len(env.Files) == 0 {
			return fmt.Sprintf("No files found for %q.", args.Query), nil
		}
		lines := make([]string, 0, len(env.Files))
		for _, f := range env.Files {
			lines = append(lines, fmt.Sprintf("- %s (ID: %s)", f.Name, f.ID))
		}
		return fmt.Sprintf("Found %d files:\n\n%s", len(env.Files), strings.Join(lines, "\n")), nil
	case tool.ActionReadFile:
		return "File content:\n\n" + env.Content, nil
	case tool.ActionCreateFile:
		name := args.FileName
		link := ""
		if env.File != nil {
			if env.File.Name != "" {
				name = env.File.Name
			}
			link = env.File.WebViewLink
		}
		if link == "" {
			return fmt.Sprintf("File created: %s", name), nil
		}
		return fmt.Sprintf("File created: %s\nLink: %s", name, link), nil
	default:
		return "", adapter.UnsupportedAction(call)
	}
}

func (s *Sheets) Invoke(ctx context.Context, call tool.Call) (string, error) {
	args, ok := call.Sheets()
	if !ok {
		return "", adapter.WrongArguments(call)
	}
	env, err := s.client.call(ctx, "sheets", call)
	if err != nil {
		return "", err
	}

	switch call.Action {
	case tool.ActionReadRange:
		if len(env.Values) == 0 {
			return fmt.Sprintf("No data in %s.", args.Range), nil
		}
		rows := make([]string, 0, len(env.Values))
		for _, row := range env.Values {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				cells = append(cells, fmt.Sprint(cell))
			}
			rows = append(rows, strings.Join(cells, ", "))
		}
		return fmt.Sprintf("Data from %s:\n\n%s", args.Range, strings.Join(rows, "\n")), nil
	case tool.ActionAppendRow:
		return fmt.Sprintf("Row appended to %s.", args.Range), nil
	default:
		return "", adapter.UnsupportedAction(call)
	}
}

func (d *Docs) Invoke(ctx context.Context, call tool.Call) (string, error) {
	args, ok := call.Docs()
	if !ok {
		return "", adapter.WrongArguments(call)
	}
	env, err := d.client.call(ctx, "docs", call)
	if err != nil {
		return "", err
	}

	switch call.Action {
	case tool.ActionCreateDocument:
		doc := document{Title: args.Title}
		if env.Document != nil {
			doc = *env.Document
			if doc.Title == "" {
				doc.Title = args.Title
			}
		}
		text := fmt.Sprintf("Document created: %s\nID: %s", doc.Title, doc.ID)
		if doc.URL != "" {
			text += "\nLink: " + doc.URL
		}
		return text, nil
	case tool.ActionReadDocument:
		title, content := args.DocumentID, env.Content
		if env.Document != nil {
			if env.Document.Title != "" {
				title = env.Document.Title
			}
			if content == "" {
				content = env.Document.Content
			}
		}
		return fmt.Sprintf("Document %q:\n\n%s", title, content), nil
	case tool.ActionAppendText:
		return fmt.Sprintf("Text appended to document %s.", args.DocumentID), nil
	default:
		return "", adapter.UnsupportedAction(call)
	}
}

var (
	_ adapter.Adapter = (*Gmail)(nil)
	_ adapter.Adapter = (*Calendar)(nil)
	_ adapter.Adapter = (*Drive)(nil)
	_ adapter.Adapter = (*Sheets)(nil)
	_ adapter.Adapter = (*Docs)(nil)
)
