// Package knowledge 提供注入提示词的业务知识文档。
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// EmptyText 是没有任何知识文档时写入提示词的占位文本。
const EmptyText = "No knowledge base provided."

const defaultMaxResults = 5

// Provider 按用户输入检索知识文档。
type Provider interface {
	Query(utterance string) []Document
}

// Document 是一份知识文档。Keywords 与 Tags 都为空时，文档对任何输入都生效。
type Document struct {
	FileName string   `json:"file_name" yaml:"file_name"`
	Content  string   `json:"content" yaml:"content"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type entry struct {
	doc   Document
	terms []string
}

// StaticProvider 在内存中保存固定的文档集合，按关键词子串匹配。
type StaticProvider struct {
	entries    []entry
	maxResults int
}

// NewStaticProvider 创建静态知识库。maxResults 不大于 0 时使用默认值。
func NewStaticProvider(docs []Document, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	p := &StaticProvider{entries: make([]entry, 0, len(docs)), maxResults: maxResults}
	for _, doc := range docs {
		var terms []string
		for _, term := range slices.Concat(doc.Keywords, doc.Tags) {
			if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
				terms = append(terms, term)
			}
		}
		p.entries = append(p.entries, entry{doc: doc, terms: terms})
	}
	return p
}

// LoadStaticProvider 加载知识文档。
//
// path 为文件时按扩展名解析 YAML 或 JSON 文档列表；为目录时，
// 目录下每个 .md 或 .txt 文件成为一份不带关键词的文档。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库路径不能为空")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("读取知识库失败: %w", err)
	}
	var docs []Document
	if info.IsDir() {
		docs, err = loadDir(path)
	} else {
		docs, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return NewStaticProvider(docs, maxResults), nil
}

func loadFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	var docs []Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &docs)
	default:
		err = json.Unmarshal(data, &docs)
	}
	if err != nil {
		return nil, fmt.Errorf("解析知识库文件 %s 失败: %w", filepath.Base(path), err)
	}
	return docs, nil
}

func loadDir(dir string) ([]Document, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取知识库目录失败: %w", err)
	}
	var docs []Document
	for _, item := range items {
		ext := strings.ToLower(filepath.Ext(item.Name()))
		if item.IsDir() || (ext != ".md" && ext != ".txt") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, item.Name()))
		if err != nil {
			return nil, fmt.Errorf("读取知识文档 %s 失败: %w", item.Name(), err)
		}
		docs = append(docs, Document{FileName: item.Name(), Content: string(content)})
	}
	return docs, nil
}

// Query 按文档顺序返回匹配的文档，最多 maxResults 份。
func (p *StaticProvider) Query(utterance string) []Document {
	if p == nil {
		return nil
	}
	utterance = strings.ToLower(utterance)
	var out []Document
	for _, e := range p.entries {
		if len(out) == p.maxResults {
			break
		}
		if e.matches(utterance) {
			out = append(out, e.doc)
		}
	}
	return out
}

func (e entry) matches(utterance string) bool {
	if len(e.terms) == 0 {
		return true
	}
	return slices.ContainsFunc(e.terms, func(term string) bool {
		return strings.Contains(utterance, term)
	})
}

// Render 把文档拼接为提示词中的知识段落。
func Render(docs []Document) string {
	if len(docs) == 0 {
		return EmptyText
	}
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "File: %s\nContent: %s", strings.TrimSpace(doc.FileName), strings.TrimSpace(doc.Content))
	}
	return b.String()
}

var _ Provider = (*StaticProvider)(nil)
