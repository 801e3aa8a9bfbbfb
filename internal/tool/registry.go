package tool

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	xerrors "AgentDesk/internal/errors"
)

// DefaultBundles 返回默认的捆绑开关。gmail 开关沿用旧界面的语义，同样启用全部 Google 服务。
func DefaultBundles() map[Integration][]Integration {
	google := []Integration{IntegrationGmail, IntegrationCalendar, IntegrationDrive, IntegrationSheets, IntegrationDocs}
	return map[Integration][]Integration{
		IntegrationGoogle: google,
		IntegrationGmail:  google,
	}
}

// Registry 是静态工具目录，构造后只读，可在会话之间共享。
type Registry struct {
	order       []Name
	descriptors map[Name]Descriptor
	schemas     map[Name]*jsonschema.Schema
	bundles     map[Integration][]Integration
}

// RegistryOption 自定义注册表。
type RegistryOption func(*Registry)

// WithBundles 覆盖捆绑开关的展开规则。
func WithBundles(bundles map[Integration][]Integration) RegistryOption {
	return func(r *Registry) {
		if len(bundles) == 0 {
			return
		}
		r.bundles = make(map[Integration][]Integration, len(bundles))
		for tag, members := range bundles {
			r.bundles[tag] = append([]Integration(nil), members...)
		}
	}
}

// NewRegistry 根据描述构建注册表并编译参数 schema。
func NewRegistry(descriptors []Descriptor, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[Name]Descriptor, len(descriptors)),
		schemas:     make(map[Name]*jsonschema.Schema, len(descriptors)),
		bundles:     DefaultBundles(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	for _, desc := range descriptors {
		if _, ok := knownNames[desc.Name]; !ok {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("unsupported tool %q", desc.Name))
		}
		if _, dup := r.descriptors[desc.Name]; dup {
			return nil, xerrors.New(xerrors.CodeConflict, fmt.Sprintf("tool %q registered twice", desc.Name))
		}
		schema, err := compileSchema(desc)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("compile schema for %s", desc.Name))
		}
		r.order = append(r.order, desc.Name)
		r.descriptors[desc.Name] = desc
		r.schemas[desc.Name] = schema
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default 返回内置目录构成的注册表。
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = NewRegistry(Builtin())
	})
	return defaultRegistry, defaultErr
}

// MustDefault 与 Default 相同，失败时 panic，仅用于程序启动和测试。
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

func compileSchema(desc Descriptor) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(desc.validationSchema())
	if err != nil {
		return nil, err
	}
	url := "agentdesk://tools/" + string(desc.Name) + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Lookup 返回指定工具的描述。
func (r *Registry) Lookup(name Name) (Descriptor, bool) {
	desc, ok := r.descriptors[name]
	return desc, ok
}

// Descriptors 按注册顺序返回全部工具描述。
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Expand 展开捆绑开关，返回去重后的集成标签集合。
func (r *Registry) Expand(enabled []Integration) map[Integration]struct{} {
	set := make(map[Integration]struct{}, len(enabled))
	for _, tag := range enabled {
		set[tag] = struct{}{}
		for _, member := range r.bundles[tag] {
			set[member] = struct{}{}
		}
	}
	return set
}

func (r *Registry) schema(name Name) *jsonschema.Schema {
	return r.schemas[name]
}
