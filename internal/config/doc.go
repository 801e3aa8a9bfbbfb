// Package config 加载 AgentDesk 的启动配置。文件可以是 JSON 或 YAML，
// 加载后补齐默认值并做结构校验。
package config
