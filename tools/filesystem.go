package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepbridge/llm-bridge/bridge"
)

// fileSystemDefinition describes the filesystem tool: read/write files and
// list directories, with path traversal prevention.
var fileSystemDefinition = bridge.ToolDefinition{
	Name:        "filesystem",
	Description: "File system operations: read, write, list files and directories",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type":        "string",
				"description": "Operation: read_file, write_file, append_file, delete_file, list_directory, file_exists, create_directory",
			},
			"path":    map[string]interface{}{"type": "string", "description": "File or directory path"},
			"content": map[string]interface{}{"type": "string", "description": "Content to write/append"},
		},
		"required": []interface{}{"operation", "path"},
	},
}

func fileSystemHandler(ctx context.Context, call bridge.ToolCall, execCtx bridge.ToolExecutionContext) (interface{}, error) {
	var params struct {
		Operation string `json:"operation"`
		Path      string `json:"path"`
		Content   string `json:"content"`
	}
	if err := decodeParams(call.Parameters, &params); err != nil {
		return nil, err
	}

	cleanPath, err := sanitizePath(params.Path)
	if err != nil {
		return nil, err
	}

	switch params.Operation {
	case "read_file":
		return readFile(cleanPath)
	case "write_file":
		return writeFile(cleanPath, params.Content)
	case "append_file":
		return appendFile(cleanPath, params.Content)
	case "delete_file":
		return deleteFile(cleanPath)
	case "list_directory":
		return listDirectory(cleanPath)
	case "file_exists":
		return fileExists(cleanPath)
	case "create_directory":
		return createDirectory(cleanPath)
	default:
		return nil, bridge.NewValidationError("filesystem: unknown operation " + params.Operation)
	}
}

// sanitizePath rejects path traversal attempts and resolves relative
// paths against the current working directory.
func sanitizePath(path string) (string, error) {
	if path == "" {
		return "", bridge.NewValidationError("filesystem: path cannot be empty")
	}
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return "", bridge.NewValidationError("filesystem: path traversal rejected for " + path)
	}
	if !filepath.IsAbs(cleanPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", bridge.NewProviderError("filesystem: failed to resolve working directory", err)
		}
		cleanPath = filepath.Join(cwd, cleanPath)
	}
	return cleanPath, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", bridge.NewProviderError("filesystem: failed to read file", err)
	}
	return fmt.Sprintf("File content (%d bytes):\n%s", len(data), string(data)), nil
}

func writeFile(path, content string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", bridge.NewProviderError("filesystem: failed to create directory", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", bridge.NewProviderError("filesystem: failed to write file", err)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

func appendFile(path, content string) (string, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", bridge.NewProviderError("filesystem: failed to open file", err)
	}
	defer f.Close()
	n, err := f.WriteString(content)
	if err != nil {
		return "", bridge.NewProviderError("filesystem: failed to append to file", err)
	}
	return fmt.Sprintf("Successfully appended %d bytes to %s", n, path), nil
}

func deleteFile(path string) (string, error) {
	if err := os.Remove(path); err != nil {
		return "", bridge.NewProviderError("filesystem: failed to delete file", err)
	}
	return fmt.Sprintf("Successfully deleted %s", path), nil
}

func listDirectory(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", bridge.NewProviderError("filesystem: failed to read directory", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("Directory %s is empty", path), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Directory %s (%d items):\n", path, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		kind := "FILE"
		if entry.IsDir() {
			kind = "DIR "
		}
		fmt.Fprintf(&sb, "  [%s] %s (%d bytes)\n", kind, entry.Name(), info.Size())
	}
	return sb.String(), nil
}

func fileExists(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Sprintf("Path does not exist: %s", path), nil
	}
	if err != nil {
		return "", bridge.NewProviderError("filesystem: failed to check path", err)
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("Path exists: %s (%s, %d bytes)", path, kind, info.Size()), nil
}

func createDirectory(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", bridge.NewProviderError("filesystem: failed to create directory", err)
	}
	return fmt.Sprintf("Successfully created directory: %s", path), nil
}
