package analytics

const exportSchemaName = "session_export"

var exportSchema = map[string]interface{}{
	"type": "object",
	"required": []interface{}{
		"session_id", "start_time", "end_time", "discovered_signals",
		"qualification_tier", "conversation_state", "tool_calls",
	},
	"properties": map[string]interface{}{
		"session_id":       map[string]interface{}{"type": "string", "minLength": 1},
		"user_email":       map[string]interface{}{"type": "string"},
		"start_time":       map[string]interface{}{"type": "string", "format": "date-time"},
		"end_time":         map[string]interface{}{"type": "string", "format": "date-time"},
		"duration_seconds": map[string]interface{}{"type": "number", "minimum": 0},
		"discovered_signals": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"team_size":      map[string]interface{}{"type": []interface{}{"integer", "null"}, "minimum": 0},
				"monthly_volume": map[string]interface{}{"type": []interface{}{"integer", "null"}, "minimum": 0},
				"integration_needs": map[string]interface{}{
					"type":  []interface{}{"array", "null"},
					"items": map[string]interface{}{"type": "string"},
				},
			},
		},
		"qualification_tier": map[string]interface{}{"enum": []interface{}{"sales_ready", "self_serve"}},
		"conversation_state": map[string]interface{}{
			"enum": []interface{}{
				"GREETING", "DISCOVERY", "VALUE_DEMO", "QUALIFICATION",
				"NEXT_STEPS", "FRICTION_RESCUE", "CLOSING",
			},
		},
		"state_history": map[string]interface{}{"type": []interface{}{"array", "null"}},
		"tool_calls": map[string]interface{}{
			"type": []interface{}{"array", "null"},
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"tool", "success"},
			},
		},
		"hot_lead": map[string]interface{}{"type": "boolean"},
	},
}
