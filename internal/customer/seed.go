package customer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSeed 读取 JSON 或 YAML 格式的客户记录列表，用于初始化内存存储。
// 每条记录都会经过与 Create 相同的校验。
func LoadSeed(path string) ([]Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取客户种子文件失败: %w", err)
	}

	var records []Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw []map[string]any
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("解析客户种子文件失败: %w", err)
		}
		// 记录只声明了 json 标签，经一次 JSON 往返复用同一套字段名。
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		err = json.Unmarshal(encoded, &records)
		if err != nil {
			return nil, fmt.Errorf("解析客户种子文件失败: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &records); err != nil {
			return nil, fmt.Errorf("解析客户种子文件失败: %w", err)
		}
	}

	for i := range records {
		if records[i].Status == "" {
			records[i].Status = StatusLead
		}
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("客户种子第 %d 条无效: %w", i+1, err)
		}
	}
	return records, nil
}
