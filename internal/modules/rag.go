package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/graniet/kheish/internal/rag"
)

// VectorStoreModule indexes and searches documents in the task's vector
// store. Large module results are also indexed here when they exceed
// the inline size limit.
type VectorStoreModule struct{}

func NewVectorStoreModule() *VectorStoreModule { return &VectorStoreModule{} }

func (m *VectorStoreModule) Name() string { return "rag" }

func (m *VectorStoreModule) HandleAction(ctx context.Context, store rag.VectorStore, action string, params []string) (string, error) {
	if store == nil {
		return "", errors.New("no vector store configured for this task")
	}
	switch action {
	case "search":
		if len(params) == 0 {
			return "", errors.New("missing query. Usage: rag search <query>")
		}
		query := strings.Join(params, " ")
		results, err := store.SearchDocuments(ctx, query, 5)
		if err != nil {
			return "", fmt.Errorf("search failed: %w", err)
		}
		if len(results) == 0 {
			return "No relevant documents found.", nil
		}
		var sb strings.Builder
		sb.WriteString("Documents found:\n")
		for i, doc := range results {
			fmt.Fprintf(&sb, "%d: %s\n", i+1, doc.Content)
		}
		return strings.TrimRight(sb.String(), "\n"), nil

	case "index":
		if len(params) == 0 {
			return "", errors.New("missing path. Usage: rag index <file_path>")
		}
		path := params[0]
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s failed: %w", path, err)
		}
		if _, err := store.AddDocument(ctx, string(content)); err != nil {
			return "", fmt.Errorf("indexing failed: %w", err)
		}
		return fmt.Sprintf("File %s indexed successfully, use rag search to search its content.", path), nil

	case "index_multiple":
		if len(params) == 0 {
			return "", errors.New("missing paths. Usage: rag index_multiple <path1,path2,...>")
		}
		paths := strings.Split(params[0], ",")
		indexed := make([]string, 0, len(paths))
		for _, path := range paths {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("reading %s failed: %w", path, err)
			}
			if _, err := store.AddDocument(ctx, string(content)); err != nil {
				return "", fmt.Errorf("indexing failed: %w", err)
			}
			indexed = append(indexed, path)
		}
		return fmt.Sprintf("Files %s indexed successfully, use rag search to search their content.", strings.Join(indexed, ", ")), nil

	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (m *VectorStoreModule) Actions() []Action {
	return []Action{
		{Name: "search", ArgCount: 1, Description: "Search indexed documents. Usage: rag search <query>"},
		{Name: "index", ArgCount: 1, Description: "Index a file's content. Usage: rag index <file_path>"},
		{Name: "index_multiple", ArgCount: 1, Description: "Index several files at once. Usage: rag index_multiple <path1,path2,...>"},
	}
}
