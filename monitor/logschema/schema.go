package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"monitor_state": {
		Event:    "monitor_state",
		Required: []string{"state"},
	},
	"file_changed": {
		Event:    "file_changed",
		Required: []string{"path"},
	},
	"files_deleted": {
		Event:    "files_deleted",
		Required: []string{"count"},
	},
	"reload_result": {
		Event:    "reload_result",
		Required: []string{"unit", "result"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsKnown reports whether event has a schema.
func IsKnown(event string) bool {
	_, ok := schemas[event]
	return ok
}

// Validate 检查字段是否包含 schema 中要求的 key。未知事件不校验。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}
