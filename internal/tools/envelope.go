// Package tools serves the voice agent's tool webhooks.
package tools

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Internal tool names.
const (
	ToolManageAppointment  = "manage_appointment"
	ToolConfirmBooking     = "confirm_booking"
	ToolLookupPatient      = "lookup_patient"
	ToolSendMessage        = "send_message"
	ToolCancelOrReschedule = "cancel_or_reschedule"
	ToolRouteLive          = "route_live"
)

// retellNames maps agent-facing function names to internal tool names.
// Names not listed pass through unchanged.
var retellNames = map[string]string{
	"Find-Earliest":           ToolManageAppointment,
	"Find-By-Preference":      ToolManageAppointment,
	"Find-Reschedule-Options": ToolManageAppointment,
	"Confirm-Booking":         ToolConfirmBooking,
	"Lookup-Patient":          ToolLookupPatient,
	"Send-Message":            ToolSendMessage,
	"Route-Live":              ToolRouteLive,
}

// Call is a normalised tool invocation.
type Call struct {
	Tool      string
	Arguments map[string]any
}

// ToolName maps an agent-facing name to the internal one.
func ToolName(name string) string {
	name = strings.TrimSpace(name)
	if mapped, ok := retellNames[name]; ok {
		return mapped
	}
	return name
}

// Normalize extracts a tool call from the shapes the agent platform sends:
//
//	{"tool_name": "...", "arguments": {...}}
//	{"name": "...", "args": {...}} or {"name": "...", "arguments": {...}}
//	bare manage arguments (action_type with caller_name or appointment_id)
//	bare confirm arguments (hold_id and slot_id)
//
// Any of these may be nested inside other objects or arrays. Nested values
// are searched depth-first with object keys in sorted order, and the first
// match wins.
func Normalize(body map[string]any) (Call, bool) {
	if body == nil {
		return Call{}, false
	}

	if name, ok := body["tool_name"]; ok {
		if args, ok := body["arguments"]; ok {
			return Call{Tool: ToolName(stringify(name)), Arguments: asArgs(args)}, true
		}
	}

	if name, ok := body["name"]; ok {
		args, hasArguments := body["arguments"]
		if a, hasArgs := body["args"]; hasArgs && (!hasArguments || isEmpty(args)) {
			args = a
			hasArguments = true
		}
		if hasArguments {
			return Call{Tool: ToolName(stringify(name)), Arguments: asArgs(args)}, true
		}
	}

	if has(body, "action_type", "caller_name") || has(body, "action_type", "appointment_id") {
		return Call{Tool: ToolManageAppointment, Arguments: body}, true
	}
	if has(body, "hold_id", "slot_id") {
		return Call{Tool: ToolConfirmBooking, Arguments: body}, true
	}

	for _, key := range slices.Sorted(maps.Keys(body)) {
		switch nested := body[key].(type) {
		case map[string]any:
			if call, ok := Normalize(nested); ok {
				return call, true
			}
		case []any:
			for _, item := range nested {
				if m, ok := item.(map[string]any); ok {
					if call, ok := Normalize(m); ok {
						return call, true
					}
				}
			}
		}
	}
	return Call{}, false
}

func has(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func asArgs(v any) map[string]any {
	if m, ok := v.(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
