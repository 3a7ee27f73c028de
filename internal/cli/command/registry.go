package command

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "submission",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/submissions",
			Summary:      "queue source code for judging",
			Fields: []Field{
				{Name: "source_code", Aliases: []string{"code"}, Prompt: "source_code", Type: FieldString, Required: true, FileParam: "source_file"},
				{Name: "language_id", Aliases: []string{"lang"}, Prompt: "language_id", Type: FieldInt, Required: true},
				{Name: "stdin", Type: FieldString, FileParam: "stdin_file"},
				{Name: "expected_output", Aliases: []string{"expected"}, Type: FieldString, FileParam: "expected_file"},
				{Name: "compiler_options", Aliases: []string{"cflags"}, Type: FieldString},
				{Name: "command_line_arguments", Aliases: []string{"args"}, Type: FieldString},
				{Name: "cpu_time_limit", Aliases: []string{"cpu"}, Type: FieldFloat},
				{Name: "cpu_extra_time", Type: FieldFloat},
				{Name: "wall_time_limit", Aliases: []string{"wall"}, Type: FieldFloat},
				{Name: "memory_limit", Aliases: []string{"memory"}, Type: FieldInt},
				{Name: "stack_limit", Aliases: []string{"stack"}, Type: FieldInt},
				{Name: "max_processes_and_or_threads", Aliases: []string{"max_processes"}, Type: FieldInt},
				{Name: "max_file_size", Type: FieldInt},
				{Name: "enable_per_process_and_thread_time_limit", Aliases: []string{"per_process_time"}, Type: FieldBool},
				{Name: "enable_per_process_and_thread_memory_limit", Aliases: []string{"per_process_memory"}, Type: FieldBool},
				{Name: "redirect_stderr_to_stdout", Aliases: []string{"merge_stderr"}, Type: FieldBool},
				{Name: "enable_network", Aliases: []string{"network"}, Type: FieldBool},
			},
		},
		{
			Service:      "submission",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/submissions/:token",
			Summary:      "show a submission (defaults to the last created)",
			Fields: []Field{
				{Name: "token", Prompt: "token", Type: FieldString, Required: true, InPath: true},
			},
		},
		{
			Service:      "submission",
			Action:       "wait",
			Method:       "GET",
			PathTemplate: "/submissions/:token",
			Summary:      "poll a submission until it is finished",
			Fields: []Field{
				{Name: "token", Prompt: "token", Type: FieldString, Required: true, InPath: true},
			},
		},
		{
			Service:      "language",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/languages",
			Summary:      "list supported languages",
		},
		{
			Service:      "language",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/languages/:id",
			Summary:      "show one language",
			Fields: []Field{
				{Name: "id", Prompt: "language_id", Type: FieldInt, Required: true, InPath: true},
			},
		},
		{
			Service:      "status",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/statuses",
			Summary:      "list verdict statuses",
		},
		{
			Service:      "server",
			Action:       "health",
			Method:       "GET",
			PathTemplate: "/health",
			Summary:      "check the server is up",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys returns registry keys in sorted order.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest resolves the method, path and JSON body for cmd.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}

	return RequestSpec{
		Method: cmd.Method,
		Path:   path,
		Body:   body,
	}, nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	for _, field := range cmd.Fields {
		if !field.InPath {
			continue
		}
		value := strings.TrimSpace(params.Get(field.Name))
		if value == "" {
			return "", fmt.Errorf("missing path parameter: %s", field.Name)
		}
		if field.Type == FieldInt {
			if _, err := ParseInt(value); err != nil {
				return "", fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
		path = strings.ReplaceAll(path, ":"+field.Name, value)
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(cmd.Fields))
	for _, field := range cmd.Fields {
		if field.InPath {
			continue
		}
		present := params.Has(field.Name) || (field.FileParam != "" && params.Has(field.FileParam))
		if !present {
			if field.Required {
				return nil, fmt.Errorf("%s is required", field.Name)
			}
			continue
		}
		raw, err := params.Resolve(field)
		if err != nil {
			return nil, err
		}
		switch field.Type {
		case FieldString:
			if field.Required && raw == "" {
				return nil, fmt.Errorf("%s is required", field.Name)
			}
			payload[field.Name] = raw
		case FieldInt:
			n, err := ParseInt(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = n
		case FieldFloat:
			f, err := ParseFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = f
		case FieldBool:
			b, err := ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = b
		}
	}
	return payload, nil
}
