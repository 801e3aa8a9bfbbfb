package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	xerrors "AgentDesk/internal/errors"
)

// Validate 校验参数并转换为结构化调用。
//
// 检查顺序固定：必填参数缺失、未知字段、类型与枚举、action 级别的参数组合。
// 任一检查失败都不会触达适配器。
func (r *Registry) Validate(desc Descriptor, raw map[string]any) (Call, error) {
	args, err := normalize(raw)
	if err != nil {
		return Call{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "arguments are not valid JSON")
	}

	for _, arg := range desc.Arguments {
		if arg.Required && !present(args, arg.Name) {
			return Call{}, missing(desc.Name, arg.Name)
		}
	}

	var unknown []string
	for key := range args {
		if _, ok := desc.Argument(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Call{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("unknown argument(s) for %s: %s", desc.Name, strings.Join(unknown, ", ")),
			xerrors.WithMetadata("tool", string(desc.Name)))
	}

	if schema := r.schema(desc.Name); schema != nil {
		if err := schema.Validate(args); err != nil {
			return Call{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
				fmt.Sprintf("invalid arguments for %s", desc.Name),
				xerrors.WithMetadata("tool", string(desc.Name)))
		}
	}

	action := Action(fmt.Sprint(args["action"]))
	rule, ok := desc.Rule(action)
	if !ok {
		return Call{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("unsupported action %q for %s", action, desc.Name))
	}
	for _, name := range rule.Required {
		if !present(args, name) {
			return Call{}, missing(desc.Name, name)
		}
	}
	if len(rule.AnyOf) > 0 {
		found := false
		for _, name := range rule.AnyOf {
			if present(args, name) {
				found = true
				break
			}
		}
		if !found {
			return Call{}, xerrors.New(xerrors.CodeMissingArgument,
				fmt.Sprintf("%s requires at least one of: %s", action, strings.Join(rule.AnyOf, ", ")),
				xerrors.WithMetadata("tool", string(desc.Name)),
				xerrors.WithMetadata("action", string(action)))
		}
	}

	for _, arg := range desc.Arguments {
		if arg.Default == nil {
			continue
		}
		if _, ok := args[arg.Name]; !ok {
			args[arg.Name] = arg.Default
		}
	}

	typed := newArguments(desc.Name)
	if typed == nil {
		return Call{}, xerrors.New(xerrors.CodeUnknownTool, fmt.Sprintf("unknown tool %q", desc.Name))
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return Call{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode arguments")
	}
	if err := json.Unmarshal(encoded, typed); err != nil {
		return Call{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("decode arguments for %s", desc.Name))
	}

	return Call{Tool: desc.Name, Action: action, Arguments: typed, Raw: args}, nil
}

func missing(name Name, arg string) error {
	return xerrors.New(xerrors.CodeMissingArgument,
		fmt.Sprintf("missing required argument: %s", arg),
		xerrors.WithMetadata("tool", string(name)),
		xerrors.WithMetadata("argument", arg))
}

// normalize 通过一次 JSON 往返把任意 Go 值转换为 schema 校验器可识别的形式，
// 并丢弃 null 与空白字符串。
func normalize(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	if len(raw) == 0 {
		return out, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var decoded map[string]any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	for key, value := range decoded {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
		}
		out[key] = value
	}
	return out, nil
}

func present(args map[string]any, name string) bool {
	value, ok := args[name]
	if !ok || value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
