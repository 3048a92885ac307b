package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个订单日志事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

// 所有订单事件都带 event 与 order_key
var common = []string{"event", "order_key"}

var schemas = map[string]Schema{
	"posted": {
		Event:    "posted",
		Required: []string{"order", "broker_id"},
	},
	"rejected": {
		Event:    "rejected",
		Required: []string{"order", "reason"},
	},
	"execution": {
		Event:    "execution",
		Required: []string{"quantity", "price", "filled"},
	},
	"filled": {
		Event:    "filled",
		Required: []string{"order", "quantity", "value", "commission"},
	},
	"canceled": {
		Event:    "canceled",
		Required: []string{"order", "transactions"},
	},
	"archived": {
		Event:    "archived",
		Required: []string{"state"},
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

// Validate 检查日志字段是否包含事件要求的 key。未知事件返回错误。
func Validate(fields map[string]interface{}) error {
	event, _ := fields["event"].(string)
	s, ok := schemas[event]
	if !ok {
		return fmt.Errorf("unknown event %q", event)
	}
	var missing []string
	for _, list := range [][]string{common, s.Required} {
		for _, key := range list {
			if _, exists := fields[key]; !exists {
				missing = append(missing, key)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}
