package tool

// ArgumentType 对应 JSON Schema 的基础类型。
type ArgumentType string

const (
	TypeString  ArgumentType = "string"
	TypeInteger ArgumentType = "integer"
	TypeNumber  ArgumentType = "number"
	TypeBoolean ArgumentType = "boolean"
	TypeObject  ArgumentType = "object"
	TypeArray   ArgumentType = "array"
)

// Argument 描述单个工具参数。
type Argument struct {
	Name        string
	Type        ArgumentType
	Description string
	Required    bool
	Enum        []string
	Default     any
	Items       ArgumentType
}

// ActionRule 描述某个 action 额外要求的参数。
//
// Required 中的参数必须全部存在且非空；AnyOf 非空时至少存在其中一个。
type ActionRule struct {
	Action      Action
	Description string
	Required    []string
	AnyOf       []string
}

// Descriptor 是不可变的工具描述，加载一次后只读。
type Descriptor struct {
	Name        Name
	Description string
	Integration Integration
	Arguments   []Argument
	Actions     []ActionRule
}

// Argument 按名称查找参数定义。
func (d Descriptor) Argument(name string) (Argument, bool) {
	for _, arg := range d.Arguments {
		if arg.Name == name {
			return arg, true
		}
	}
	return Argument{}, false
}

// Rule 返回指定 action 的参数规则。
func (d Descriptor) Rule(action Action) (ActionRule, bool) {
	for _, rule := range d.Actions {
		if rule.Action == action {
			return rule, true
		}
	}
	return ActionRule{}, false
}

// ActionNames 按声明顺序返回全部 action。
func (d Descriptor) ActionNames() []string {
	names := make([]string, 0, len(d.Actions))
	for _, rule := range d.Actions {
		names = append(names, string(rule.Action))
	}
	return names
}

// Schema 返回面向补全服务的参数 JSON Schema。
func (d Descriptor) Schema() map[string]any {
	properties := make(map[string]any, len(d.Arguments))
	var required []string
	for _, arg := range d.Arguments {
		properties[arg.Name] = arg.schema(true)
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// validationSchema 只约束类型与枚举；缺失与未知字段由 Validate 单独分类。
func (d Descriptor) validationSchema() map[string]any {
	properties := make(map[string]any, len(d.Arguments))
	for _, arg := range d.Arguments {
		properties[arg.Name] = arg.schema(false)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func (a Argument) schema(withDocs bool) map[string]any {
	prop := map[string]any{"type": string(a.Type)}
	if len(a.Enum) > 0 {
		enum := make([]any, 0, len(a.Enum))
		for _, value := range a.Enum {
			enum = append(enum, value)
		}
		prop["enum"] = enum
	}
	if a.Type == TypeArray {
		items := a.Items
		if items == "" {
			items = TypeString
		}
		prop["items"] = map[string]any{"type": string(items)}
	}
	if withDocs {
		if a.Description != "" {
			prop["description"] = a.Description
		}
		if a.Default != nil {
			prop["default"] = a.Default
		}
	}
	return prop
}
