package modules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graniet/kheish/internal/rag"
)

// MemoriesModule stores durable notes in the vector store under the
// "mem" id prefix so recall can tell them apart from regular
// documents.
type MemoriesModule struct{}

func NewMemoriesModule() *MemoriesModule { return &MemoriesModule{} }

func (m *MemoriesModule) Name() string { return "memories" }

func (m *MemoriesModule) HandleAction(ctx context.Context, store rag.VectorStore, action string, params []string) (string, error) {
	if store == nil {
		return "", errors.New("no vector store configured for this task")
	}
	switch action {
	case "insert":
		if len(params) == 0 {
			return "", errors.New("missing content. Usage: memories insert <content>")
		}
		content := strings.Join(params, " ")
		if _, err := store.AddDocumentWithID(ctx, "mem", content); err != nil {
			return "", fmt.Errorf("memory insert failed: %w", err)
		}
		return "Memory inserted successfully.", nil

	case "recall":
		if len(params) == 0 {
			return "", errors.New("missing query. Usage: memories recall <query>")
		}
		query := strings.Join(params, " ")
		results, err := store.SearchDocuments(ctx, query, 5)
		if err != nil {
			return "", fmt.Errorf("memory recall failed: %w", err)
		}
		var memories []string
		for _, doc := range results {
			if strings.Contains(doc.ID, "mem") {
				memories = append(memories, doc.Content)
			}
		}
		if len(memories) == 0 {
			return "No relevant memories found.", nil
		}
		var sb strings.Builder
		sb.WriteString("Memories found:\n")
		for i, content := range memories {
			fmt.Fprintf(&sb, "%d: %s\n", i+1, content)
		}
		return strings.TrimRight(sb.String(), "\n"), nil

	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (m *MemoriesModule) Actions() []Action {
	return []Action{
		{Name: "insert", ArgCount: 1, Description: "Store a memory for later runs. Usage: memories insert <content>"},
		{Name: "recall", ArgCount: 1, Description: "Recall stored memories. Usage: memories recall <query>"},
	}
}
